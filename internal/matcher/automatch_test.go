package matcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/storagetest"
)

func newTestJobContext(t *testing.T, apiHandler http.Handler, catalog model.Catalog, action string) (*JobContext, *storagetest.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalogID, err := store.InsertCatalog(ctx, catalog)
	require.NoError(t, err)
	catalog.ID = catalogID

	var apiURL string
	if apiHandler != nil {
		srv := httptest.NewServer(apiHandler)
		t.Cleanup(srv.Close)
		apiURL = srv.URL
	}
	kb, err := kbclient.New(kbclient.Config{APIURL: apiURL, SPARQLURL: apiURL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	jobID, err := store.QueueSimpleJob(ctx, catalogID, action, nil)
	require.NoError(t, err)
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)

	return &JobContext{Job: job, Catalog: catalog, Store: store, KB: kb}, store
}

func TestBySearchMatchesUniqueCandidate(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[{"title":"Q42"}]}}`))
	})
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionAutomatchBySearch)

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Douglas Adams"})
	require.NoError(t, err)

	require.NoError(t, BySearch{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, entry.Q)
	require.Equal(t, int64(42), *entry.Q)
	require.NotNil(t, entry.UserID)
	require.Equal(t, model.UserAuto, *entry.UserID)
}

func TestBySearchNoCandidatesLeavesEntryUnmatched(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[]}}`))
	})
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionAutomatchBySearch)

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Nobody"})
	require.NoError(t, err)

	require.NoError(t, BySearch{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.True(t, entry.IsUnmatched())
}

func TestFromOtherCatalogsAppliesResolvedQ(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionAutomatchFromOtherCatalogs)

	otherCatalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Shared Name", Type: strPtr("Q5")})
	require.NoError(t, err)
	_, err = store.CreateEntry(ctx, &model.Entry{CatalogID: otherCatalogID, ExtID: "o1", ExtName: "Shared Name", Type: strPtr("Q5")})
	require.NoError(t, err)
	other, err := store.GetEntryByExtID(ctx, otherCatalogID, "o1")
	require.NoError(t, err)
	_, err = store.SetMatch(ctx, other.ID, 100, model.UserFirstHuman)
	require.NoError(t, err)

	require.NoError(t, FromOtherCatalogs{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, entry.Q)
	require.Equal(t, int64(100), *entry.Q)
}

func TestPurgeAutomatchesKeepsConfirmedMatches(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionPurgeAutomatches)

	autoID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Auto"})
	require.NoError(t, err)
	_, err = store.SetMatch(ctx, autoID, 1, model.UserAuto)
	require.NoError(t, err)

	humanID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e2", ExtName: "Human"})
	require.NoError(t, err)
	_, err = store.SetMatch(ctx, humanID, 2, model.UserFirstHuman)
	require.NoError(t, err)

	require.NoError(t, PurgeAutomatches{}.Run(ctx, jc))

	auto, err := store.GetEntry(ctx, autoID)
	require.NoError(t, err)
	require.True(t, auto.IsUnmatched())

	human, err := store.GetEntry(ctx, humanID)
	require.NoError(t, err)
	require.NotNil(t, human.Q)
	require.Equal(t, int64(2), *human.Q)
}

func TestSimpleMatchesSingleCandidate(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[{"title":"Q7"}]}}`))
	})
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionAutomatch)

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Ada Lovelace"})
	require.NoError(t, err)

	require.NoError(t, Simple{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, entry.Q)
	require.Equal(t, int64(7), *entry.Q)
	require.NotNil(t, entry.UserID)
	require.Equal(t, model.UserAuto, *entry.UserID)
}

func TestSimpleMultipleCandidatesLeavesEntryUnmatched(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[{"title":"Q7"},{"title":"Q8"}]}}`))
	})
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionAutomatch)

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Ambiguous"})
	require.NoError(t, err)

	require.NoError(t, Simple{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.True(t, entry.IsUnmatched())
}

func strPtr(s string) *string { return &s }
