package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// TestSetMatchUpdatesOverviewIncrementally covers the spec §8 invariant that
// every confirmed match updates the overview row's counters, not only the
// bulk WDRC-deletions path (internal/wdrc/deletions.go calls
// RefreshOverviewTable, a full recompute; SetMatch/Unmatch must keep the
// counters in step incrementally instead).
func TestSetMatchUpdatesOverviewIncrementally(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	catalogID, err := s.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)

	e := model.Entry{CatalogID: catalogID, ExtID: "e1"}
	entryID, err := s.CreateEntry(ctx, &e)
	require.NoError(t, err)

	before, err := s.GetOverview(ctx, catalogID)
	require.NoError(t, err)
	assert.Zero(t, before.Manual)
	assert.Zero(t, before.AutoQ)

	ok, err := s.SetMatch(ctx, entryID, 100, model.UserFirstHuman)
	require.NoError(t, err)
	require.True(t, ok)

	afterMatch, err := s.GetOverview(ctx, catalogID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), afterMatch.Manual)
	assert.Zero(t, afterMatch.NoQ)

	require.NoError(t, s.Unmatch(ctx, entryID))

	afterUnmatch, err := s.GetOverview(ctx, catalogID)
	require.NoError(t, err)
	assert.Zero(t, afterUnmatch.Manual)
	assert.Equal(t, int64(1), afterUnmatch.NoQ)
}

// TestSetMatchOverviewDeltaFromAutoToManual covers a match transitioning
// from one non-empty bucket to another (autoq -> manual), not just from the
// unset noq bucket.
func TestSetMatchOverviewDeltaFromAutoToManual(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	catalogID, err := s.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)

	e := model.Entry{CatalogID: catalogID, ExtID: "e1"}
	entryID, err := s.CreateEntry(ctx, &e)
	require.NoError(t, err)

	ok, err := s.SetMatch(ctx, entryID, 100, model.UserAuto)
	require.NoError(t, err)
	require.True(t, ok)

	mid, err := s.GetOverview(ctx, catalogID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mid.AutoQ)
	assert.Zero(t, mid.Manual)

	ok, err = s.SetMatch(ctx, entryID, 100, model.UserFirstHuman)
	require.NoError(t, err)
	require.True(t, ok)

	after, err := s.GetOverview(ctx, catalogID)
	require.NoError(t, err)
	assert.Zero(t, after.AutoQ)
	assert.Equal(t, int64(1), after.Manual)
}
