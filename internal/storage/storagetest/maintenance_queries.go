package storagetest

import (
	"context"
	"database/sql"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// DistinctMatchedQs grounds on maintenance.rs's get_items.
func (s *Store) DistinctMatchedQs(ctx context.Context, catalogID int64, state model.MatchState, offset, batchSize int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT q FROM entry WHERE catalog=?"+state.SQLFragment()+" LIMIT ? OFFSET ?",
		catalogID, batchSize, offset)
	if err != nil {
		return nil, wrap("distinct matched qs", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var q int64
		if err := rows.Scan(&q); err != nil {
			return nil, wrap("distinct matched qs: scan", err)
		}
		out = append(out, q)
	}
	return out, wrap("distinct matched qs: rows", rows.Err())
}

// ReplaceMatchedQ grounds on maintenance.rs's fix_redirected_items_batch.
func (s *Store) ReplaceMatchedQ(ctx context.Context, from, to int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE entry SET q=? WHERE q=?", to, from)
	return wrap("replace matched q", err)
}

// UnlinkMatchedQs grounds on maintenance.rs's unlink_item_matches.
func (s *Store) UnlinkMatchedQs(ctx context.Context, qs []int64) error {
	if len(qs) == 0 {
		return nil
	}
	args := make([]any, len(qs))
	for i, q := range qs {
		args[i] = q
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE entry SET q=NULL,user=NULL,timestamp=NULL WHERE q IN ("+placeholderList(len(qs))+")", args...)
	return wrap("unlink matched qs", err)
}

// MaintenanceAutomatchCandidates grounds on storage_mysql.rs's
// maintenance_automatch SQL (global, not scoped to a catalog). See the
// mysql implementation for the preserved "e2.type IS NOT NULL" quirk.
func (s *Store) MaintenanceAutomatchCandidates(ctx context.Context) ([]storage.MaintenanceAutomatchRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT e1.id,e2.q FROM entry e1,entry e2
		WHERE e1.ext_name=e2.ext_name AND e1.id!=e2.id
		AND e1.type='Q5' AND e2.type='Q5'
		AND e1.q IS NULL
		AND e2.type IS NOT NULL AND e2.user>0
		AND (SELECT count(DISTINCT q) FROM entry e3 WHERE e3.ext_name=e2.ext_name AND e3.type=e2.type AND e3.q IS NOT NULL AND e3.user>0)=1
		LIMIT 500`)
	if err != nil {
		return nil, wrap("maintenance automatch candidates", err)
	}
	defer rows.Close()
	var out []storage.MaintenanceAutomatchRow
	for rows.Next() {
		var r storage.MaintenanceAutomatchRow
		if err := rows.Scan(&r.EntryID, &r.QNumeric); err != nil {
			return nil, wrap("maintenance automatch candidates: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("maintenance automatch candidates: rows", rows.Err())
}

// ApplyMaintenanceAutomatch grounds on storage_mysql.rs's
// maintenance_automatch UPDATE, which deliberately has no AvoidAutoMatch
// check.
func (s *Store) ApplyMaintenanceAutomatch(ctx context.Context, entryID, qNumeric int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE entry SET q=?,user=0,timestamp=? WHERE id=? AND q IS NULL",
		qNumeric, model.Now(), entryID)
	if err != nil {
		return false, wrap("apply maintenance automatch", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrap("apply maintenance automatch: rows affected", err)
	}
	return affected > 0, nil
}

// MaintenanceSyncRedirects mirrors the mysql backend.
func (s *Store) MaintenanceSyncRedirects(ctx context.Context, redirects map[int64]int64) error {
	for oldQ, newQ := range redirects {
		if _, err := s.db.ExecContext(ctx, "UPDATE entry SET q=? WHERE q=?", newQ, oldQ); err != nil {
			return wrap("maintenance sync redirects", err)
		}
	}
	return nil
}

// MaintenanceApplyDeletions mirrors the mysql backend.
func (s *Store) MaintenanceApplyDeletions(ctx context.Context, qs []int64) ([]int64, error) {
	if len(qs) == 0 {
		return nil, nil
	}
	args := make([]any, len(qs))
	for i, q := range qs {
		args[i] = q
	}
	placeholders := placeholderList(len(qs))
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT catalog FROM entry WHERE q IN ("+placeholders+")", args...)
	if err != nil {
		return nil, wrap("maintenance apply deletions: select catalogs", err)
	}
	var catalogIDs []int64
	for rows.Next() {
		var catalogID int64
		if err := rows.Scan(&catalogID); err != nil {
			rows.Close()
			return nil, wrap("maintenance apply deletions: scan", err)
		}
		catalogIDs = append(catalogIDs, catalogID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrap("maintenance apply deletions: rows", err)
	}
	rows.Close()
	_, err = s.db.ExecContext(ctx,
		"UPDATE entry SET q=NULL,user=NULL,timestamp=NULL WHERE q IN ("+placeholders+")", args...)
	if err != nil {
		return nil, wrap("maintenance apply deletions: unlink", err)
	}
	return catalogIDs, nil
}

// MaintenanceProp2CatalogIDs mirrors the mysql backend.
func (s *Store) MaintenanceProp2CatalogIDs(ctx context.Context) ([]storage.PropCatalogRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id,wd_prop FROM catalog WHERE wd_prop IS NOT NULL AND wd_qual IS NULL AND active=1")
	if err != nil {
		return nil, wrap("maintenance prop2catalog ids", err)
	}
	defer rows.Close()
	var out []storage.PropCatalogRow
	for rows.Next() {
		var r storage.PropCatalogRow
		if err := rows.Scan(&r.CatalogID, &r.Property); err != nil {
			return nil, wrap("maintenance prop2catalog ids: scan", err)
		}
		out = append(out, r)
	}
	return out, wrap("maintenance prop2catalog ids: rows", rows.Err())
}

// MaintenanceSyncProperty mirrors the mysql backend.
func (s *Store) MaintenanceSyncProperty(ctx context.Context, catalogIDs []int64, extIDs []string) ([]storage.SyncPropertyRow, error) {
	if len(catalogIDs) == 0 || len(extIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(catalogIDs)+len(extIDs))
	for _, c := range catalogIDs {
		args = append(args, c)
	}
	for _, id := range extIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id,ext_id,user,q FROM entry WHERE catalog IN ("+placeholderList(len(catalogIDs))+
			") AND ext_id IN ("+placeholderList(len(extIDs))+")", args...)
	if err != nil {
		return nil, wrap("maintenance sync property", err)
	}
	defer rows.Close()
	var out []storage.SyncPropertyRow
	for rows.Next() {
		var r storage.SyncPropertyRow
		var userID, qNumeric sql.NullInt64
		if err := rows.Scan(&r.EntryID, &r.ExtID, &userID, &qNumeric); err != nil {
			return nil, wrap("maintenance sync property: scan", err)
		}
		if userID.Valid {
			v := int(userID.Int64)
			r.UserID = &v
		}
		if qNumeric.Valid {
			v := qNumeric.Int64
			r.QNumeric = &v
		}
		out = append(out, r)
	}
	return out, wrap("maintenance sync property: rows", rows.Err())
}
