package matcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/storagetest"
)

func addAuxiliaryRow(t *testing.T, ctx context.Context, store *storagetest.Store, entry model.Entry, property int64, value string) {
	t.Helper()
	_, err := store.UpsertExtendedEntry(ctx, model.ExtendedEntry{
		Entry: entry,
		Aux:   []model.AuxiliaryRow{{PropertyNumeric: property, Value: value}},
	})
	require.NoError(t, err)
}

func auxFakeKB(t *testing.T, searchTitle string, statementValue string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("action") == "query" && q.Get("list") == "search":
			if searchTitle == "" {
				w.Write([]byte(`{"query":{"search":[]}}`))
				return
			}
			w.Write([]byte(`{"query":{"search":[{"title":"` + searchTitle + `"}]}}`))
		default:
			sparql, _ := url.QueryUnescape(q.Get("query"))
			switch {
			case strings.Contains(sparql, "wikibase:ExternalId"):
				w.Write([]byte(`{"results":{"bindings":[{"p":{"value":"http://www.wikidata.org/prop/direct/P214"}}]}}`))
			case strings.Contains(sparql, "wikibase:WikibaseItem"):
				w.Write([]byte(`{"results":{"bindings":[]}}`))
			default: // statement-value confirmation query
				if statementValue == "" {
					w.Write([]byte(`{"results":{"bindings":[]}}`))
					return
				}
				w.Write([]byte(`{"results":{"bindings":[{"v":{"value":"` + statementValue + `"}}]}}`))
			}
		}
	})
}

func TestAuxMatchMatchesUniqueCandidate(t *testing.T) {
	ctx := context.Background()
	handler := auxFakeKB(t, "Q99", "12345-6")
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionAuxiliaryMatcher)

	entry := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Some Author"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	addAuxiliaryRow(t, ctx, store, entry, 214, "12345-6")

	require.NoError(t, AuxMatch{}.Run(ctx, jc))

	got, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, got.Q)
	assert.Equal(t, int64(99), *got.Q)
	require.NotNil(t, got.UserID)
	assert.Equal(t, model.UserAuxMatch, *got.UserID)
}

func TestAuxMatchNoSearchHitsLeavesUnmatched(t *testing.T) {
	ctx := context.Background()
	handler := auxFakeKB(t, "", "")
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionAuxiliaryMatcher)

	entry := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Nobody"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	addAuxiliaryRow(t, ctx, store, entry, 214, "00000-0")

	require.NoError(t, AuxMatch{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, entry.IsUnmatched())
}

func TestAuxMatchSkipsBlacklistedCatalog(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionAuxiliaryMatcher)

	entry := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Whoever"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	addAuxiliaryRow(t, ctx, store, entry, 214, "12345-6")

	jc.Catalog.ID = 506 // blacklisted catalog id, matched without touching storage

	require.NoError(t, AuxMatch{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, entry.IsUnmatched())
}

func TestAuxWriteBuildsSourcedStatement(t *testing.T) {
	ctx := context.Background()
	var editedData string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("action") == "query" && q.Get("type") == "login":
			w.Write([]byte(`{"query":{"tokens":{"logintoken":"LOGINTOKEN"}}}`))
		case q.Get("action") == "query" && q.Get("type") == "csrf":
			w.Write([]byte(`{"query":{"tokens":{"csrftoken":"EDITTOKEN"}}}`))
		case q.Get("action") == "query" && q.Get("list") == "search":
			w.Write([]byte(`{"query":{"search":[]}}`))
		case r.Method == http.MethodPost:
			require.NoError(t, r.ParseForm())
			switch r.PostForm.Get("action") {
			case "clientlogin":
				w.Write([]byte(`{"clientlogin":{"status":"PASS"}}`))
			case "wbeditentity":
				editedData = r.PostForm.Get("data")
				w.Write([]byte(`{"entity":{"id":"` + r.PostForm.Get("id") + `"}}`))
			default:
				t.Fatalf("unexpected action %q", r.PostForm.Get("action"))
			}
		default:
			sparql, _ := url.QueryUnescape(q.Get("query"))
			switch {
			case strings.Contains(sparql, "wikibase:ExternalId"):
				w.Write([]byte(`{"results":{"bindings":[{"p":{"value":"http://www.wikidata.org/prop/direct/P214"}}]}}`))
			case strings.Contains(sparql, "wikibase:WikibaseItem"):
				w.Write([]byte(`{"results":{"bindings":[]}}`))
			default:
				w.Write([]byte(`{"results":{"bindings":[]}}`))
			}
		}
	})
	jc, store := newAuxWriteJobContext(t, handler)

	entry := model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Some Author", ExtURL: "https://example.org/e1"}
	entryID, err := store.CreateEntry(ctx, &entry)
	require.NoError(t, err)
	matched, err := store.SetMatch(ctx, entryID, 99, model.UserFirstHuman)
	require.NoError(t, err)
	require.True(t, matched)
	addAuxiliaryRow(t, ctx, store, entry, 214, "12345-6")

	require.NoError(t, AuxWrite{}.Run(ctx, jc))

	assert.Contains(t, editedData, "P214")
	assert.Contains(t, editedData, "12345-6")
	assert.Contains(t, editedData, "P854")
	assert.Contains(t, editedData, "example.org/e1")

	rows, err := store.GetAuxiliary(ctx, entryID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// newAuxWriteJobContext mirrors newTestJobContext but configures bot
// credentials, since AuxWrite's ExecuteCommands call requires Login.
func newAuxWriteJobContext(t *testing.T, apiHandler http.Handler) (*JobContext, *storagetest.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	catalog, err := store.GetCatalog(ctx, catalogID)
	require.NoError(t, err)

	srv := httptest.NewServer(apiHandler)
	t.Cleanup(srv.Close)

	kb, err := kbclient.New(kbclient.Config{
		APIURL: srv.URL, SPARQLURL: srv.URL, RequestsPerSecond: 1000,
		BotName: "bot", BotPassword: "secret",
	})
	require.NoError(t, err)
	t.Cleanup(func() { kb.Close() })

	jobID, err := store.QueueSimpleJob(ctx, catalogID, model.ActionAux2WD, nil)
	require.NoError(t, err)
	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)

	return &JobContext{Job: job, Catalog: *catalog, Store: store, KB: kb}, store
}
