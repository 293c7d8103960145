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

func TestBespokeRegistryKeysMatchCatalogID(t *testing.T) {
	for catalogID, scraper := range bespokeRegistry {
		require.Equal(t, catalogID, scraper.catalogID())
	}
}

func TestBespokeScraperUnknownCatalogErrors(t *testing.T) {
	ctx := context.Background()
	jc, _ := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionBespokeScraper)
	jc.Catalog.ID = 999999
	err := BespokeScraper{}.Run(ctx, jc)
	require.ErrorIs(t, err, errNoBespokeScraper)
}

func TestSikartParseDate(t *testing.T) {
	require.Equal(t, "1950-02-01", sikartParseDate("01.02.1950"))
	require.Equal(t, "", sikartParseDate("not a date"))
}

func TestSikartRecordToExtendedEntry(t *testing.T) {
	col := map[string]int{
		"HAUPTNR": 0, "LINK_RECHERCHEPORTAL": 1, "NAMIDENT": 2,
		"LEBENSDATEN": 3, "VITAZEILE": 4, "WIKIDATA_ID": 5,
		"GEBURTSDATUM": 6, "STERBEDATUM": 7,
	}
	record := []string{"123", "http://sikart.ch/123", "Hans Muster", "1900-1980", "Maler",
		"Q42", "01.02.1900", "03.04.1980"}

	ext, ok := sikartRecordToExtendedEntry(record, col)
	require.True(t, ok)
	require.Equal(t, int64(121), ext.Entry.CatalogID)
	require.Equal(t, "123", ext.Entry.ExtID)
	require.Equal(t, "http://sikart.ch/123", ext.Entry.ExtURL)
	require.Equal(t, "Hans Muster", ext.Entry.ExtName)
	require.Equal(t, "1900-1980; Maler", ext.Entry.ExtDesc)
	require.NotNil(t, ext.Entry.Type)
	require.Equal(t, "Q5", *ext.Entry.Type)
	require.NotNil(t, ext.Entry.Q)
	require.Equal(t, int64(42), *ext.Entry.Q)
	require.NotNil(t, ext.Dates)
	require.Equal(t, "1900-02-01", ext.Dates.Born)
	require.Equal(t, "1980-04-03", ext.Dates.Died)
}

func TestSikartRecordMissingRequiredColumnSkipped(t *testing.T) {
	col := map[string]int{"HAUPTNR": 0}
	_, ok := sikartRecordToExtendedEntry([]string{"123"}, col)
	require.False(t, ok)
}

func TestBespokeProcessCacheInsertsAndUpdates(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionBespokeScraper)

	existingID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Old Name"})
	require.NoError(t, err)

	batch := []model.ExtendedEntry{
		{Entry: model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "New Name", ExtURL: "http://x/e1"}},
		{Entry: model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e2", ExtName: "Fresh", ExtURL: "http://x/e2"}},
	}
	require.NoError(t, bespokeProcessCache(ctx, jc, false, batch))

	updated, err := store.GetEntry(ctx, existingID)
	require.NoError(t, err)
	require.Equal(t, "New Name", updated.ExtName)

	created, err := store.GetEntryByExtID(ctx, jc.Catalog.ID, "e2")
	require.NoError(t, err)
	require.Equal(t, "Fresh", created.ExtName)
}

func TestBespokeProcessCacheKeepsExistingName(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionBespokeScraper)

	existingID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Keep Me"})
	require.NoError(t, err)

	batch := []model.ExtendedEntry{
		{Entry: model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Scraped Name", ExtURL: "http://x/e1"}},
	}
	require.NoError(t, bespokeProcessCache(ctx, jc, true, batch))

	updated, err := store.GetEntry(ctx, existingID)
	require.NoError(t, err)
	require.Equal(t, "Keep Me", updated.ExtName)
}

func TestViafGndAuxScraperRun(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="http://viaf.org/viaf/12345">viaf</a></html>`)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionBespokeScraper)
	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "p1", ExtURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, viafGndAuxScraper{}.run(ctx, jc))

	aux, err := store.GetAuxiliary(ctx, entryID)
	require.NoError(t, err)
	require.Len(t, aux, 1)
	require.Equal(t, int64(214), aux[0].PropertyNumeric)
	require.Equal(t, "12345", aux[0].Value)
}

func TestViafGndAuxScraperSkipsAlreadyKnownValue(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><a href="http://viaf.org/viaf/12345">viaf</a></html>`)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionBespokeScraper)
	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "p1", ExtURL: srv.URL})
	require.NoError(t, err)
	_, err = store.UpsertExtendedEntry(ctx, model.ExtendedEntry{
		Entry: model.Entry{CatalogID: jc.Catalog.ID, ExtID: "p1"},
		Aux:   []model.AuxiliaryRow{{PropertyNumeric: 214, Value: "12345"}},
	})
	require.NoError(t, err)

	require.NoError(t, viafGndAuxScraper{}.run(ctx, jc))

	aux, err := store.GetAuxiliary(ctx, entryID)
	require.NoError(t, err)
	require.Len(t, aux, 1)
}
