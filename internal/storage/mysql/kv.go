package mysql

import (
	"context"
	"database/sql"
)

// GetKV and SetKV back the kv table used for feed-reader checkpoints
// (the WDRC reconciler's per-feed last-processed timestamp/line), grounded
// on storage_mysql.rs's get_kv_value/set_kv_value.
func (s *Store) GetKV(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT `kv_value` FROM `kv` WHERE `kv_key`=?", key).Scan(&value)
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
		"INSERT INTO `kv` (`kv_key`,`kv_value`) VALUES (?,?) ON DUPLICATE KEY UPDATE `kv_value`=?",
		key, value, value)
	return wrap("set kv", err)
}

// GetCatalogKV backs the kv_catalog table: per-catalog settings such as
// the coordinate matcher's location_distance/location_force_same_type and
// allow_location_match/create permissions, grounded on
// coordinate_matcher.rs's load_permissions.
func (s *Store) GetCatalogKV(ctx context.Context, catalogID int64, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT `kv_value` FROM `kv_catalog` WHERE `catalog_id`=? AND `kv_key`=?", catalogID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get catalog kv", err)
	}
	return value, true, nil
}
