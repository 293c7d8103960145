package autoscrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfigJSON = `{
	"levels": [
		{"mode": "range", "start": 1, "end": 2, "step": 1}
	],
	"scraper": {
		"url": "%s/page/$1",
		"rx_entry": "<li>(\\d+)\\|([^<|]+)</li>",
		"resolve": {
			"id": {"use": "$1"},
			"name": {"use": "$2"},
			"type": {"use": "Q5"}
		}
	}
}`

func TestNewFromJSONParsesLevelsAndScraper(t *testing.T) {
	cfg := fmt.Sprintf(testConfigJSON, "http://example.org")
	a, err := NewFromJSON(42, cfg)
	require.NoError(t, err)
	require.Equal(t, int64(42), a.CatalogID)
	require.Len(t, a.Odometer.Levels, 1)
	require.Equal(t, "Q5", a.Scraper.ResolveType.UsePattern)
}

func TestAutoscrapeIterateOneFetchesAndExtracts(t *testing.T) {
	ctx := context.Background()
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.Path)
		fmt.Fprintf(w, "<li>%s|Person %s</li>", r.URL.Path[len("/page/"):], r.URL.Path[len("/page/"):])
	}))
	t.Cleanup(srv.Close)

	cfg := fmt.Sprintf(testConfigJSON, srv.URL)
	a, err := NewFromJSON(7, cfg)
	require.NoError(t, err)

	client := srv.Client()
	require.NoError(t, a.Init(ctx, client))

	entries1, done1, err := a.IterateOne(ctx, client)
	require.NoError(t, err)
	require.False(t, done1)
	require.Len(t, entries1, 1)
	require.Equal(t, "1", entries1[0].Entry.ExtID)
	require.Equal(t, "Person 1", entries1[0].Entry.ExtName)

	entries2, done2, err := a.IterateOne(ctx, client)
	require.NoError(t, err)
	require.True(t, done2)
	require.Len(t, entries2, 1)
	require.Equal(t, "2", entries2[0].Entry.ExtID)

	require.Equal(t, []string{"/page/1", "/page/2"}, requested)
}

func TestSubstituteLevelKeys(t *testing.T) {
	require.Equal(t, "https://x/a/b", substituteLevelKeys("https://x/$1/$2", []string{"a", "b"}))
}
