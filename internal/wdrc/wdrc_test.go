package wdrc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/storagetest"
)

func TestSyncRunsAllThreeFeedsAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	defer store.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(""))
	}))
	defer srv.Close()

	kb, err := kbclient.New(kbclient.Config{ChangeFeedURL: srv.URL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	defer kb.Close()

	r := &Reconciler{Store: store, KB: kb}
	require.NoError(t, r.Sync(ctx))

	for _, key := range []string{kvRedirects, kvDeletions} {
		_, ok, err := store.GetKV(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "checkpoint %s must be set", key)
	}
}

// TestSyncPropertyUpdatesUnmatchedEntry exercises syncProperty end to end
// against a fake wbgetentities endpoint, grounded on wdrc.rs's
// sync_property: an entry whose ext_id matches the KB item's unique P214
// value gets set_match'd.
func TestSyncPropertyUpdatesUnmatchedEntry(t *testing.T) {
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	defer store.Close()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true, WDProp: int64Ptr(214)})
	require.NoError(t, err)
	entry := model.Entry{CatalogID: catalogID, ExtID: "12345"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entities":{"Q42":{"claims":{"P214":[{"mainsnak":{"datavalue":{"value":"12345"}}}]}}}}`))
	}))
	defer srv.Close()

	kb, err := kbclient.New(kbclient.Config{APIURL: srv.URL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	defer kb.Close()

	r := &Reconciler{Store: store, KB: kb}
	chunk := []kbclient.ItemPropertyTimestamp{{Item: 42, Property: 214, Timestamp: "20270101000000"}}
	require.NoError(t, r.syncProperty(ctx, 214, chunk, []int64{catalogID}))

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(42), *got.Q)
	require.NotNil(t, got.UserID)
	assert.Equal(t, model.UserAuxMatch, *got.UserID)
}

func TestSyncPropertySkipsAlreadyHumanMatchedEntry(t *testing.T) {
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	defer store.Close()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true, WDProp: int64Ptr(214)})
	require.NoError(t, err)
	entry := model.Entry{CatalogID: catalogID, ExtID: "12345"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	_, err = store.SetMatch(ctx, entryID, 99, model.UserFirstHuman)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entities":{"Q42":{"claims":{"P214":[{"mainsnak":{"datavalue":{"value":"12345"}}}]}}}}`))
	}))
	defer srv.Close()

	kb, err := kbclient.New(kbclient.Config{APIURL: srv.URL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	defer kb.Close()

	r := &Reconciler{Store: store, KB: kb}
	chunk := []kbclient.ItemPropertyTimestamp{{Item: 42, Property: 214, Timestamp: "20270101000000"}}
	require.NoError(t, r.syncProperty(ctx, 214, chunk, []int64{catalogID}))

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(99), *got.Q, "human match must not be overwritten")
}

func TestBatchSizeDefault(t *testing.T) {
	r := &Reconciler{}
	assert.Equal(t, DefaultPropertyBatchSize, r.batchSize())
	r.PropertyBatchSize = 3
	assert.Equal(t, 3, r.batchSize())
}

func int64Ptr(v int64) *int64 { return &v }
