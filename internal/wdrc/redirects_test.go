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

func TestFilterRedirects(t *testing.T) {
	got := filterRedirects(map[int64]int64{
		1: 2,
		0: 5,
		5: 0,
		3: 3,
		7: 8,
	})
	assert.Equal(t, map[int64]int64{1: 2, 7: 8}, got)
}

func TestSyncRedirectsAppliesAndCheckpoints(t *testing.T) {
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	defer store.Close()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	e := model.Entry{CatalogID: catalogID, ExtID: "e1"}
	entryID, err := store.CreateEntry(ctx, &e)
	require.NoError(t, err)
	_, err = store.SetMatch(ctx, entryID, 100, model.UserFirstHuman)
	require.NoError(t, err)

	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		w.Write([]byte(`{"item":"Q100","target":"Q200","timestamp":"20270105000000"}` + "\n"))
	}))
	defer srv.Close()

	kb, err := kbclient.New(kbclient.Config{ChangeFeedURL: srv.URL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	defer kb.Close()

	r := &Reconciler{Store: store, KB: kb}
	require.NoError(t, r.syncRedirects(ctx))
	assert.NotEmpty(t, gotSince)

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(200), *got.Q)

	ts, ok, err := store.GetKV(ctx, kvRedirects)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20270105000000", ts)
}

func TestSyncRedirectsNoEventsStillCheckpoints(t *testing.T) {
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
	require.NoError(t, r.syncRedirects(ctx))

	_, ok, err := store.GetKV(ctx, kvRedirects)
	require.NoError(t, err)
	assert.True(t, ok)
}
