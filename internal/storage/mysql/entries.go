package mysql

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

const entrySelectColumns = "`id`,`catalog`,`ext_id`,`ext_url`,`ext_name`,`ext_desc`,`q`,`user`,`timestamp`,if(isnull(`random`),rand(),`random`) as `random`,`type`"

func scanEntry(row interface {
	Scan(dest ...any) error
}) (*model.Entry, error) {
	var e model.Entry
	var q, userID sql.NullInt64
	var timestamp, typeName sql.NullString
	if err := row.Scan(&e.ID, &e.CatalogID, &e.ExtID, &e.ExtURL, &e.ExtName, &e.ExtDesc, &q, &userID, &timestamp, &e.Random, &typeName); err != nil {
		return nil, err
	}
	if q.Valid {
		v := q.Int64
		e.Q = &v
	}
	if userID.Valid {
		v := int(userID.Int64)
		e.UserID = &v
	}
	if timestamp.Valid {
		v := timestamp.String
		e.Timestamp = &v
	}
	if typeName.Valid {
		v := typeName.String
		e.Type = &v
	}
	return &e, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID int64) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entrySelectColumns+" FROM `entry` WHERE `id`=?", entryID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, wrap("get entry", err)
	}
	return e, nil
}

func (s *Store) GetEntryByExtID(ctx context.Context, catalogID int64, extID string) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entrySelectColumns+" FROM `entry` WHERE `catalog`=? AND `ext_id`=?", catalogID, extID)
	e, err := scanEntry(row)
	if err != nil {
		return nil, wrap("get entry by ext id", err)
	}
	return e, nil
}

func (s *Store) CreateEntry(ctx context.Context, e *model.Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO `entry` (`catalog`,`ext_id`,`ext_url`,`ext_name`,`ext_desc`,`type`) VALUES (?,?,?,?,?,?)",
		e.CatalogID, e.ExtID, e.ExtURL, e.ExtName, e.ExtDesc, e.Type)
	if err != nil {
		return 0, wrap("create entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("create entry: last insert id", err)
	}
	return id, nil
}

// SetMatch mirrors entry.rs's set_match: a single conditional UPDATE that
// only writes when the target state differs from the current row, so
// repeated calls with the same (q, user) are no-ops rather than churn. For
// automatic matches (userID==model.UserAuto) it additionally consults
// AvoidAutoMatch (rule B) and restricts the WHERE clause to
// not-fully-matched rows (rule A), so an automatcher can never clobber a
// human-confirmed match.
func (s *Store) SetMatch(ctx context.Context, entryID int64, qNumeric int64, userID int) (bool, error) {
	if userID == model.UserAuto {
		avoid, err := s.AvoidAutoMatch(ctx, entryID, &qNumeric)
		if err != nil {
			return false, wrap("set match: avoid auto match", err)
		}
		if avoid {
			return false, nil
		}
	}

	catalogID, oldUserID, oldQ, err := s.entryOverviewState(ctx, entryID)
	if err != nil {
		return false, wrap("set match: load entry", err)
	}

	timestamp := model.Now()
	sqlStr := "UPDATE `entry` SET `q`=?,`user`=?,`timestamp`=? WHERE `id`=? AND (`q` IS NULL OR `q`!=? OR `user`!=?)"
	args := []any{qNumeric, userID, timestamp, entryID, qNumeric, userID}
	if userID == model.UserAuto {
		sqlStr += model.NotFullyMatched().SQLFragment()
	}

	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, wrap("set match", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrap("set match: rows affected", err)
	}
	if affected == 0 {
		return false, nil
	}

	newUserID := userID
	if err := s.UpdateOverviewTable(ctx, catalogID, oldUserID, oldQ, &newUserID, &qNumeric); err != nil {
		return false, wrap("set match: update overview table", err)
	}

	isFullMatch := userID > 0 && qNumeric > 0
	if err := s.SetMatchStatus(ctx, entryID, "UNKNOWN", isFullMatch); err != nil {
		return false, err
	}
	if userID != model.UserAuto {
		if err := s.RemoveMultiMatch(ctx, entryID); err != nil {
			return false, err
		}
	}
	if err := s.QueueReferenceFixer(ctx, qNumeric); err != nil {
		return false, err
	}
	return true, nil
}

// entryOverviewState loads the (catalog, user, q) an entry carries right
// before a SetMatch/Unmatch write, the "old" side of the overview delta
// entry.rs's set_match passes to update_overview_table (the in-memory
// Entry's pre-update fields, since Go has no cached struct to read them
// from).
func (s *Store) entryOverviewState(ctx context.Context, entryID int64) (catalogID int64, userID *int, q *int64, err error) {
	var user, qv sql.NullInt64
	err = s.db.QueryRowContext(ctx, "SELECT `catalog`,`user`,`q` FROM `entry` WHERE `id`=?", entryID).Scan(&catalogID, &user, &qv)
	if err != nil {
		return 0, nil, nil, err
	}
	if user.Valid {
		v := int(user.Int64)
		userID = &v
	}
	if qv.Valid {
		v := qv.Int64
		q = &v
	}
	return catalogID, userID, q, nil
}

func (s *Store) Unmatch(ctx context.Context, entryID int64) error {
	catalogID, oldUserID, oldQ, err := s.entryOverviewState(ctx, entryID)
	if err != nil {
		return wrap("unmatch: load entry", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE `entry` SET `q`=NULL,`user`=NULL,`timestamp`=NULL WHERE `id`=?", entryID); err != nil {
		return wrap("unmatch", err)
	}
	if err := s.UpdateOverviewTable(ctx, catalogID, oldUserID, oldQ, nil, nil); err != nil {
		return wrap("unmatch: update overview table", err)
	}
	return s.SetMatchStatus(ctx, entryID, "UNKNOWN", false)
}

// SetMatchStatus fans the match/unmatch transition out to the satellite
// tables that track "is this entry currently matched" independently of the
// main entry row (spec §4.3). Grounded on entry.rs's set_match_status.
func (s *Store) SetMatchStatus(ctx context.Context, entryID int64, status string, isMatched bool) error {
	matched := 0
	if isMatched {
		matched = 1
	}
	timestamp := model.Now()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO `wd_matches` (`entry_id`,`status`,`timestamp`,`catalog`) VALUES (?,?,?,(SELECT `catalog` FROM `entry` WHERE `id`=?)) ON DUPLICATE KEY UPDATE `status`=?,`timestamp`=?",
		entryID, status, timestamp, entryID, status, timestamp); err != nil {
		return wrap("set match status: wd_matches", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE `person_dates` SET `is_matched`=? WHERE `entry_id`=?", matched, entryID); err != nil {
		return wrap("set match status: person_dates", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE `auxiliary` SET `entry_is_matched`=? WHERE `entry_id`=?", matched, entryID); err != nil {
		return wrap("set match status: auxiliary", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE `statement_text` SET `entry_is_matched`=? WHERE `entry_id`=?", matched, entryID); err != nil {
		return wrap("set match status: statement_text", err)
	}
	return nil
}

func (s *Store) GetMultiMatch(ctx context.Context, entryID int64) ([]int64, error) {
	var candidates string
	err := s.db.QueryRowContext(ctx, "SELECT `candidates` FROM `multi_match` WHERE `entry_id`=?", entryID).Scan(&candidates)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get multi match", err)
	}
	parts := strings.Split(candidates, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// SetMultiMatch replaces an entry's candidate list. A list outside
// [1, model.MaxMultiMatchCandidates] removes the row instead, mirroring
// entry.rs's set_multi_match.
func (s *Store) SetMultiMatch(ctx context.Context, entryID int64, candidates []int64) error {
	if len(candidates) < 1 || len(candidates) > model.MaxMultiMatchCandidates {
		return s.RemoveMultiMatch(ctx, entryID)
	}
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = strconv.FormatInt(c, 10)
	}
	joined := strings.Join(parts, ",")
	_, err := s.db.ExecContext(ctx,
		"REPLACE INTO `multi_match` (`entry_id`,`catalog`,`candidates`,`candidate_count`) VALUES (?,(SELECT `catalog` FROM `entry` WHERE `id`=?),?,?)",
		entryID, entryID, joined, len(candidates))
	return wrap("set multi match", err)
}

func (s *Store) RemoveMultiMatch(ctx context.Context, entryID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM `multi_match` WHERE `entry_id`=?", entryID)
	return wrap("remove multi match", err)
}

// PurgeAutomatches grounds on automatch.rs's purge_automatches: clear q/
// user/timestamp on every auto-matched (user=0) entry of the catalog and
// drop its multi_match rows, leaving user>0 (confirmed) matches alone.
func (s *Store) PurgeAutomatches(ctx context.Context, catalogID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE `entry` SET `q`=NULL,`user`=NULL,`timestamp`=NULL WHERE `catalog`=? AND `user`=0", catalogID); err != nil {
		return wrap("purge automatches: entry", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM `multi_match` WHERE `catalog`=?", catalogID); err != nil {
		return wrap("purge automatches: multi match", err)
	}
	return nil
}

// AvoidAutoMatch reports whether the removal log already records a human
// taking this match away from this entry (rule B). When qNumeric is given,
// only a log entry naming that exact item (or no item) blocks the
// automatcher; a log entry about a different item does not.
func (s *Store) AvoidAutoMatch(ctx context.Context, entryID int64, qNumeric *int64) (bool, error) {
	sqlStr := "SELECT `id` FROM `log` WHERE `entry_id`=?"
	args := []any{entryID}
	if qNumeric != nil {
		sqlStr += " AND (`q` IS NULL OR `q`=?)"
		args = append(args, *qNumeric)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return false, wrap("avoid auto match", err)
	}
	defer rows.Close()
	return rows.Next(), wrap("avoid auto match", rows.Err())
}

func (s *Store) LogRemovedMatch(ctx context.Context, entryID int64, qNumeric *int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO `log` (`entry_id`,`q`,`timestamp`) VALUES (?,?,?)", entryID, qNumeric, model.Now())
	return wrap("log removed match", err)
}

func (s *Store) QueueReferenceFixer(ctx context.Context, qNumeric int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO `reference_fixer` (`q`,`done`) VALUES (?,0) ON DUPLICATE KEY UPDATE `done`=0", qNumeric)
	return wrap("queue reference fixer", err)
}
