package storagetest

import (
	"context"
	"database/sql"
)

func (s *Store) GetKV(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT kv_value FROM kv WHERE kv_key=?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get kv", err)
	}
	return value, true, nil
}

func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (kv_key,kv_value) VALUES (?,?) ON CONFLICT(kv_key) DO UPDATE SET kv_value=excluded.kv_value",
		key, value)
	return wrap("set kv", err)
}

func (s *Store) GetCatalogKV(ctx context.Context, catalogID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT kv_value FROM kv_catalog WHERE catalog_id=? AND kv_key=?", catalogID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get catalog kv", err)
	}
	return value, true, nil
}

// SetCatalogKV is a test-only helper for seeding kv_catalog rows; production
// code only reads per-catalog settings via GetCatalogKV.
func (s *Store) SetCatalogKV(ctx context.Context, catalogID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv_catalog (catalog_id,kv_key,kv_value) VALUES (?,?,?) "+
			"ON CONFLICT(catalog_id,kv_key) DO UPDATE SET kv_value=excluded.kv_value",
		catalogID, key, value)
	return wrap("set catalog kv", err)
}
