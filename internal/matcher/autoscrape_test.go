package matcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

const testAutoscrapeJSON = `{
	"levels": [
		{"mode": "range", "start": 1, "end": 2, "step": 1}
	],
	"scraper": {
		"url": "%s/page/$1",
		"rx_entry": "<li>(\\d+)\\|([^<|]+)</li>",
		"resolve": {
			"id": {"use": "$1"},
			"name": {"use": "$2"}
		}
	}
}`

func TestAutoscrapeRunCreatesEntriesAndFinishes(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Path[len("/page/"):]
		fmt.Fprintf(w, "<li>%s|Person %s</li>", page, page)
	}))
	t.Cleanup(srv.Close)

	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionAutoscrape)
	autoscrapeID, err := store.SetAutoscrapeConfig(ctx, jc.Catalog.ID, fmt.Sprintf(testAutoscrapeJSON, srv.URL))
	require.NoError(t, err)
	require.Positive(t, autoscrapeID)

	require.NoError(t, Autoscrape{}.Run(ctx, jc))

	e1, err := store.GetEntryByExtID(ctx, jc.Catalog.ID, "1")
	require.NoError(t, err)
	require.Equal(t, "Person 1", e1.ExtName)

	e2, err := store.GetEntryByExtID(ctx, jc.Catalog.ID, "2")
	require.NoError(t, err)
	require.Equal(t, "Person 2", e2.ExtName)

	job, err := store.GetJob(ctx, jc.Job.ID)
	require.NoError(t, err)
	require.Nil(t, job.JSON)
}
