package storagetest

import (
	"context"
)

// GetAutoscrapeConfig, AutoscrapeStart and AutoscrapeFinish mirror the
// mysql backend; see its autoscrape.go for the grounding note.
func (s *Store) GetAutoscrapeConfig(ctx context.Context, catalogID int64) (int64, string, error) {
	var id int64
	var configJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT id,json FROM autoscrape WHERE catalog=? LIMIT 1", catalogID).Scan(&id, &configJSON)
	if err != nil {
		return 0, "", wrap("get autoscrape config", err)
	}
	return id, configJSON, nil
}

func (s *Store) AutoscrapeStart(ctx context.Context, autoscrapeID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE autoscrape SET status='RUNNING',last_run_min=NULL,last_run_urls=NULL WHERE id=?", autoscrapeID)
	return wrap("autoscrape start", err)
}

func (s *Store) AutoscrapeFinish(ctx context.Context, autoscrapeID int64, lastRunURLs int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE autoscrape SET status='OK',last_run_min=NULL,last_run_urls=? WHERE id=?", lastRunURLs, autoscrapeID)
	return wrap("autoscrape finish", err)
}

// SetAutoscrapeConfig is a test-only helper for seeding autoscrape rows.
func (s *Store) SetAutoscrapeConfig(ctx context.Context, catalogID int64, configJSON string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO autoscrape (catalog,json,status) VALUES (?,?,'OK')", catalogID, configJSON)
	if err != nil {
		return 0, wrap("set autoscrape config", err)
	}
	return res.LastInsertId()
}
