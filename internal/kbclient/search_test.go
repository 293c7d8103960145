package kbclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, apiURL string) *Client {
	t.Helper()
	c, err := New(Config{APIURL: apiURL, RequestsPerSecond: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// TestSearchEmptyQuery covers wikidata.rs's test_wd_search expectation that
// an empty query returns no results without hitting the network.
func TestSearchEmptyQuery(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	got, err := c.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchReturnsTitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Magnus Manske haswbstatement:P31=Q5", r.URL.Query().Get("srsearch"))
		w.Write([]byte(`{"query":{"search":[{"title":"Q13520818"}]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.Search(context.Background(), "Magnus Manske haswbstatement:P31=Q5")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q13520818"}, got)
}

// TestSearchWithTypeExcludesScholarlyArticleAndMetaItems mirrors
// search_with_type_api's query-construction: the type constraint, the
// scholarly-article exclusion, and every META_ITEMS exclusion appended.
func TestSearchWithTypeExcludesScholarlyArticleAndMetaItems(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("srsearch")
		w.Write([]byte(`{"query":{"search":[{"title":"Q13520818"}]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.SearchWithType(context.Background(), "Magnus Manske", "Q5")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q13520818"}, got)

	assert.Contains(t, gotQuery, "Magnus Manske haswbstatement:P31=Q5")
	assert.Contains(t, gotQuery, "-haswbstatement:P31="+ScholarlyArticle)
	for _, meta := range MetaItems {
		assert.Contains(t, gotQuery, "-haswbstatement:P31="+meta)
	}
}

// TestSearchWithTypeScholarlyArticleItselfNotExcluded covers the one
// exception: searching for Q13442814 itself must not exclude it.
func TestSearchWithTypeScholarlyArticleItselfNotExcluded(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("srsearch")
		w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.SearchWithType(context.Background(), "some article", ScholarlyArticle)
	require.NoError(t, err)
	assert.NotContains(t, gotQuery, "-haswbstatement:P31="+ScholarlyArticle)
}

func TestSearchWithTypeEmptyTypeFallsBackToPlainSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("srsearch")
		w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.SearchWithType(context.Background(), "plain query", "")
	require.NoError(t, err)
	assert.Equal(t, "plain query", gotQuery)
}

func TestDedupSorted(t *testing.T) {
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, dedupSorted([]string{"Q1", "Q2", "Q1", "Q3", "Q2"}))
}
