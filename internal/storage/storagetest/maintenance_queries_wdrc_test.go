package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

func TestMaintenanceSyncRedirects(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	catalogID, err := s.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)

	e := model.Entry{CatalogID: catalogID, ExtID: "e1"}
	entryID, err := s.CreateEntry(ctx, &e)
	require.NoError(t, err)
	_, err = s.SetMatch(ctx, entryID, 100, model.UserFirstHuman)
	require.NoError(t, err)

	require.NoError(t, s.MaintenanceSyncRedirects(ctx, map[int64]int64{100: 200}))

	got, err := s.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(200), *got.Q)
}

func TestMaintenanceApplyDeletions(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	catalogID, err := s.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)

	e := model.Entry{CatalogID: catalogID, ExtID: "e1"}
	entryID, err := s.CreateEntry(ctx, &e)
	require.NoError(t, err)
	_, err = s.SetMatch(ctx, entryID, 100, model.UserFirstHuman)
	require.NoError(t, err)

	catalogIDs, err := s.MaintenanceApplyDeletions(ctx, []int64{100, 999})
	require.NoError(t, err)
	assert.Equal(t, []int64{catalogID}, catalogIDs)

	got, err := s.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, got.IsUnmatched())
}

func TestMaintenanceApplyDeletionsEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.MaintenanceApplyDeletions(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMaintenanceProp2CatalogIDs(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	direct, err := s.InsertCatalog(ctx, model.Catalog{Active: true, WDProp: int64Ptr(214)})
	require.NoError(t, err)
	_, err = s.InsertCatalog(ctx, model.Catalog{Active: false, WDProp: int64Ptr(213)})
	require.NoError(t, err)
	qualified := model.Catalog{Active: true, WDProp: int64Ptr(215), WDQual: int64Ptr(1)}
	_, err = s.InsertCatalog(ctx, qualified)
	require.NoError(t, err)
	_, err = s.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)

	rows, err := s.MaintenanceProp2CatalogIDs(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, storage.PropCatalogRow{CatalogID: direct, Property: 214}, rows[0])
}

func TestMaintenanceSyncProperty(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	catalogID, err := s.InsertCatalog(ctx, model.Catalog{Active: true, WDProp: int64Ptr(214)})
	require.NoError(t, err)

	matched := model.Entry{CatalogID: catalogID, ExtID: "12345"}
	matchedID, err := s.CreateEntry(ctx, &matched)
	require.NoError(t, err)
	_, err = s.SetMatch(ctx, matchedID, 42, model.UserFirstHuman)
	require.NoError(t, err)

	unmatched := model.Entry{CatalogID: catalogID, ExtID: "67890"}
	unmatchedID, err := s.CreateEntry(ctx, &unmatched)
	require.NoError(t, err)

	rows, err := s.MaintenanceSyncProperty(ctx, []int64{catalogID}, []string{"12345", "67890", "missing"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := make(map[int64]storage.SyncPropertyRow, len(rows))
	for _, r := range rows {
		byID[r.EntryID] = r
	}
	require.NotNil(t, byID[matchedID].QNumeric)
	assert.Equal(t, int64(42), *byID[matchedID].QNumeric)
	assert.Nil(t, byID[unmatchedID].QNumeric)
}

func TestMaintenanceSyncPropertyEmptyInputs(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.MaintenanceSyncProperty(ctx, nil, []string{"x"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func int64Ptr(v int64) *int64 { return &v }
