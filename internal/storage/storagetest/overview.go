package storagetest

import (
	"context"
	"database/sql"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

func (s *Store) GetOverview(ctx context.Context, catalogID int64) (*model.Overview, error) {
	var o model.Overview
	o.CatalogID = catalogID
	err := s.db.QueryRowContext(ctx,
		"SELECT total_entries,noq,autoq,na,manual,nowd,multi_match FROM overview WHERE catalog=?",
		catalogID).Scan(&o.Total, &o.NoQ, &o.AutoQ, &o.NA, &o.Manual, &o.NoWD, &o.MultiMatch)
	if err == sql.ErrNoRows {
		return &o, nil
	}
	if err != nil {
		return nil, wrap("get overview", err)
	}
	return &o, nil
}

func (s *Store) UpdateOverviewTable(ctx context.Context, catalogID int64, oldUserID *int, oldQ *int64, newUserID *int, newQ *int64) error {
	oldColumn := model.OverviewColumn(oldUserID, oldQ)
	newColumn := model.OverviewColumn(newUserID, newQ)
	if oldColumn == newColumn {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO overview (catalog,"+newColumn+") VALUES (?,1) "+
			"ON CONFLICT(catalog) DO UPDATE SET "+newColumn+"="+newColumn+"+1",
		catalogID); err != nil {
		return wrap("update overview table: increment", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE overview SET "+oldColumn+"=MAX("+oldColumn+"-1,0) WHERE catalog=?",
		catalogID); err != nil {
		return wrap("update overview table: decrement", err)
	}
	return nil
}

func (s *Store) RefreshOverviewTable(ctx context.Context, catalogID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overview (catalog, total_entries, noq, autoq, na, manual, nowd, multi_match)
		SELECT
			?,
			COUNT(*),
			SUM(CASE WHEN q IS NULL THEN 1 ELSE 0 END),
			SUM(CASE WHEN user=0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN q=0 AND user IS NOT NULL AND user>0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN q>0 AND user IS NOT NULL AND user>0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN q=-1 AND user IS NOT NULL AND user>0 THEN 1 ELSE 0 END),
			(SELECT COUNT(*) FROM multi_match WHERE multi_match.catalog=?)
		FROM entry WHERE catalog=?
		ON CONFLICT(catalog) DO UPDATE SET
			total_entries=excluded.total_entries, noq=excluded.noq, autoq=excluded.autoq,
			na=excluded.na, manual=excluded.manual, nowd=excluded.nowd, multi_match=excluded.multi_match`,
		catalogID, catalogID, catalogID)
	return wrap("refresh overview table", err)
}
