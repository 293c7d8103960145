package matcher

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

func TestMaxDistanceKMParsesCatalogSetting(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionMatchByCoordinates)

	km, err := jc.maxDistanceKM(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.1, km)

	require.NoError(t, store.SetCatalogKV(ctx, jc.Catalog.ID, "location_distance", "2km"))
	km, err = jc.maxDistanceKM(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.002, km)
}

func TestCoordinateMatchesUniqueCandidate(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":{"bindings":[
			{"place":{"value":"http://www.wikidata.org/entity/Q64"},"distance":{"value":"0.01"}}
		]}}`)
	})
	jc, store := newTestJobContext(t, handler, model.Catalog{Active: true}, model.ActionMatchByCoordinates)
	require.NoError(t, store.SetCatalogKV(ctx, jc.Catalog.ID, "allow_location_match", "yes"))

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Berlin"})
	require.NoError(t, err)
	require.NoError(t, store.SetCoordinateLocation(ctx, entryID, model.CoordinateLocation{Lat: 52.52, Lon: 13.405}))

	require.NoError(t, Coordinate{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	require.NotNil(t, entry.Q)
	assert.Equal(t, int64(64), *entry.Q)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, model.UserLocationMatch, *entry.UserID)
}

func TestCoordinateSkipsWhenMatchNotAllowed(t *testing.T) {
	ctx := context.Background()
	jc, store := newTestJobContext(t, nil, model.Catalog{Active: true}, model.ActionMatchByCoordinates)

	entryID, err := store.CreateEntry(ctx, &model.Entry{CatalogID: jc.Catalog.ID, ExtID: "e1", ExtName: "Berlin"})
	require.NoError(t, err)
	require.NoError(t, store.SetCoordinateLocation(ctx, entryID, model.CoordinateLocation{Lat: 52.52, Lon: 13.405}))

	require.NoError(t, Coordinate{}.Run(ctx, jc))

	entry, err := store.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.True(t, entry.IsUnmatched())
}
