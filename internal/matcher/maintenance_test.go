package matcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

func TestMaintenanceAutomatchLinksUniqueNameMatch(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionMaintenanceAutomatch)

	matched := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Ada Lovelace", Type: strPtr("Q5")}
	matchedID, err := store.CreateEntry(ctx, &matched)
	require.NoError(t, err)
	ok, err := store.SetMatch(ctx, matchedID, 7186, model.UserFirstHuman)
	require.NoError(t, err)
	require.True(t, ok)

	unmatched := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e2", ExtName: "Ada Lovelace", Type: strPtr("Q5")}
	unmatchedID, err := store.CreateEntry(ctx, &unmatched)
	require.NoError(t, err)

	require.NoError(t, MaintenanceAutomatch{}.Run(ctx, jc))

	got, err := store.GetEntry(ctx, unmatchedID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(7186), *got.Q)
	require.NotNil(t, got.UserID)
	assert.Equal(t, model.UserAuto, *got.UserID)
}

func TestMaintenanceAutomatchIgnoresNonUniqueNameMatch(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionMaintenanceAutomatch)

	for i, q := range []int64{111, 222} {
		e := model.Entry{CatalogID: jc.Catalog.ID, ExtID: fmt.Sprintf("match%d", i), ExtName: "Douglas Adams", Type: strPtr("Q5")}
		id, err := store.CreateEntry(ctx, &e)
		require.NoError(t, err)
		ok, err := store.SetMatch(ctx, id, q, model.UserFirstHuman)
		require.NoError(t, err)
		require.True(t, ok)
	}

	unmatched := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e3", ExtName: "Douglas Adams", Type: strPtr("Q5")}
	unmatchedID, err := store.CreateEntry(ctx, &unmatched)
	require.NoError(t, err)

	require.NoError(t, MaintenanceAutomatch{}.Run(ctx, jc))

	got, err := store.GetEntry(ctx, unmatchedID)
	require.NoError(t, err)
	assert.True(t, got.IsUnmatched())
}

// Without a configured KB replica, GetRedirectedItems/GetMetaItems return
// (nil, nil) (internal/kbclient/replica.go), so these sweeps must complete
// as no-ops rather than erroring.
func TestFixRedirectedItemsInCatalogNoopWithoutReplica(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionFixRedirectedItemsInCatalog)

	entry := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Some Item"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	ok, err := store.SetMatch(ctx, entryID, 100000067, model.UserFirstHuman)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, FixRedirectedItemsInCatalog{}.Run(ctx, jc))

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(100000067), *got.Q)
}

func TestFixDisambigNoopWithoutReplica(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionFixDisambig)

	entry := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Some Item"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	ok, err := store.SetMatch(ctx, entryID, 16456, model.UserFirstHuman)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, FixDisambig{}.Run(ctx, jc))

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
}
