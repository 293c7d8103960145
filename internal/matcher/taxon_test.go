package matcher

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

func TestRewriteTaxonName(t *testing.T) {
	assert.Equal(t, "Carphophis amoenus", rewriteTaxonName(0, "Carphophis amoenus"))
	assert.Equal(t, "Carphophis subsp. amoenus", rewriteTaxonName(0, "Carphophis ssp. amoenus"))
	assert.Equal(t, "Carphophis amoenus", rewriteTaxonName(169, "reptile; [Carphophis amoenus, foo bar]"))
}

func TestTaxonMatchesUniqueCandidateAndSetsTaxonRun(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[{"title":"Q2940133"}]}}`))
	})
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionTaxonMatcher)

	entryID, err := store.CreateEntry(ctx, &model.Entry{
		CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Carphophis amoenus", Type: strPtr("species"),
	})
	require.NoError(t, err)

	require.NoError(t, Taxon{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, entry.Q)
	assert.Equal(t, int64(2940133), *entry.Q)
	assert.Equal(t, model.UserAuxMatch, *entry.UserID)

	catalog, err := store.GetCatalog(ctx, jc.Catalog.ID)
	require.NoError(t, err)
	assert.True(t, catalog.TaxonRun)
}
