package mysql

import (
	"context"
)

// GetAutoscrapeConfig, AutoscrapeStart and AutoscrapeFinish back the
// autoscrape table, grounded on storage_mysql.rs's
// autoscrape_get_for_catalog/autoscrape_start/autoscrape_finish.
// GetAutoscrapeConfig returns storage.ErrNotFound (via wrap) when catalogID
// has no row.
func (s *Store) GetAutoscrapeConfig(ctx context.Context, catalogID int64) (int64, string, error) {
	var id int64
	var configJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT `id`,`json` FROM `autoscrape` WHERE `catalog`=? LIMIT 1", catalogID).Scan(&id, &configJSON)
	if err != nil {
		return 0, "", wrap("get autoscrape config", err)
	}
	return id, configJSON, nil
}

func (s *Store) AutoscrapeStart(ctx context.Context, autoscrapeID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE `autoscrape` SET `status`='RUNNING',`last_run_min`=NULL,`last_run_urls`=NULL WHERE `id`=?",
		autoscrapeID)
	return wrap("autoscrape start", err)
}

func (s *Store) AutoscrapeFinish(ctx context.Context, autoscrapeID int64, lastRunURLs int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE `autoscrape` SET `status`='OK',`last_run_min`=NULL,`last_run_urls`=? WHERE `id`=?",
		lastRunURLs, autoscrapeID)
	return wrap("autoscrape finish", err)
}
