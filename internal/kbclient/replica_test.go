package kbclient

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestReplica opens a private in-memory SQLite database shaped like the
// slice of the KB replica schema these queries touch (page/redirect/
// linktarget/pagelinks), mirroring internal/storage/storagetest's pattern
// of a throwaway schema applied fresh per test.
func newTestReplica(t *testing.T) *Client {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=private")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE page (page_id INTEGER PRIMARY KEY, page_namespace INTEGER, page_title TEXT, page_is_redirect INTEGER);
	CREATE TABLE redirect (rd_from INTEGER, rd_namespace INTEGER, rd_title TEXT);
	CREATE TABLE linktarget (lt_id INTEGER PRIMARY KEY, lt_namespace INTEGER, lt_title TEXT);
	CREATE TABLE pagelinks (pl_from INTEGER, pl_target_id INTEGER);
	CREATE TABLE wb_items_per_site (ips_site_id TEXT, ips_site_page TEXT, ips_item_id INTEGER);
	CREATE TABLE statements (item INTEGER, property INTEGER, timestamp TEXT);
	`
	_, err = db.ExecContext(context.Background(), schema)
	require.NoError(t, err)

	c, err := New(Config{RequestsPerSecond: 1000})
	require.NoError(t, err)
	c.replica = db
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGetRedirectedItems(t *testing.T) {
	ctx := context.Background()
	c := newTestReplica(t)

	_, err := c.replica.ExecContext(ctx, `INSERT INTO page (page_id,page_namespace,page_title,page_is_redirect) VALUES (1,0,'Q1',1),(2,0,'Q2',0)`)
	require.NoError(t, err)
	_, err = c.replica.ExecContext(ctx, `INSERT INTO redirect (rd_from,rd_namespace,rd_title) VALUES (1,0,'Q99')`)
	require.NoError(t, err)

	got, err := c.GetRedirectedItems(ctx, []string{"Q1", "Q2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Q1": "Q99"}, got)
}

func TestGetDeletedItems(t *testing.T) {
	ctx := context.Background()
	c := newTestReplica(t)

	_, err := c.replica.ExecContext(ctx, `INSERT INTO page (page_id,page_namespace,page_title,page_is_redirect) VALUES (1,0,'Q1',0)`)
	require.NoError(t, err)

	got, err := c.GetDeletedItems(ctx, []string{"Q1", "Q2", "Q3"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Q2", "Q3"}, got)
}

func TestGetMetaItemsAndRemoveMetaItems(t *testing.T) {
	ctx := context.Background()
	c := newTestReplica(t)

	_, err := c.replica.ExecContext(ctx, `INSERT INTO linktarget (lt_id,lt_namespace,lt_title) VALUES (10,0,'Q4167410')`)
	require.NoError(t, err)
	_, err = c.replica.ExecContext(ctx, `INSERT INTO page (page_id,page_namespace,page_title,page_is_redirect) VALUES (1,0,'Q1',0),(2,0,'Q3522',0),(3,0,'Q2',0)`)
	require.NoError(t, err)
	_, err = c.replica.ExecContext(ctx, `INSERT INTO pagelinks (pl_from,pl_target_id) VALUES (2,10)`)
	require.NoError(t, err)

	meta, err := c.GetMetaItems(ctx, []string{"Q1", "Q3522", "Q2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q3522"}, meta)

	// TestRemoveMetaItems mirrors wikidata.rs's test_remove_meta_items:
	// ["Q1","Q3522","Q2"] -> ["Q1","Q2"].
	kept, err := c.RemoveMetaItems(ctx, []string{"Q1", "Q3522", "Q2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1", "Q2"}, kept)
}

func TestGetItemsForSitelinks(t *testing.T) {
	ctx := context.Background()
	c := newTestReplica(t)

	_, err := c.replica.ExecContext(ctx,
		`INSERT INTO wb_items_per_site (ips_site_id,ips_site_page,ips_item_id) VALUES ('enwiki','Douglas Adams',42),('enwiki','Other Page',7)`)
	require.NoError(t, err)

	got, err := c.GetItemsForSitelinks(ctx, "enwiki", []string{"Douglas Adams", "Missing Page"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Douglas Adams": 42}, got)
}

func TestGetItemPropertyTimestamps(t *testing.T) {
	ctx := context.Background()
	c := newTestReplica(t)

	_, err := c.replica.ExecContext(ctx,
		`INSERT INTO statements (item,property,timestamp) VALUES
			(1,569,'20260101000000'),(2,569,'20260201000000'),(3,214,'20260301000000')`)
	require.NoError(t, err)

	got, err := c.GetItemPropertyTimestamps(ctx, []int64{569}, "20260115000000")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ItemPropertyTimestamp{Item: 2, Property: 569, Timestamp: "20260201000000"}, got[0])

	empty, err := c.GetItemPropertyTimestamps(ctx, nil, "20260101000000")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
