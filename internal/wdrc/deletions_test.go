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

func TestApplyDeletionsUnlinksAndRefreshesOverview(t *testing.T) {
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

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "deletions", r.URL.Query().Get("action"))
		w.Write([]byte(`{"item":"Q100","timestamp":"20270105000000"}` + "\n" + `{"item":"Q100","timestamp":"20270106000000"}` + "\n"))
	}))
	defer srv.Close()

	kb, err := kbclient.New(kbclient.Config{ChangeFeedURL: srv.URL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	defer kb.Close()

	r := &Reconciler{Store: store, KB: kb}
	require.NoError(t, r.applyDeletions(ctx))

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, got.IsUnmatched())

	ov, err := store.GetOverview(ctx, catalogID)
	require.NoError(t, err)
	require.NotNil(t, ov)
	assert.Zero(t, ov.Manual)
	assert.Equal(t, int64(1), ov.NoQ)

	ts, ok, err := store.GetKV(ctx, kvDeletions)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "20270106000000", ts)
}

func TestApplyDeletionsNoEventsStillCheckpoints(t *testing.T) {
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
	require.NoError(t, r.applyDeletions(ctx))

	_, ok, err := store.GetKV(ctx, kvDeletions)
	require.NoError(t, err)
	assert.True(t, ok)
}
