package wikidata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

func TestStringValueDatavalue(t *testing.T) {
	assert.Equal(t, map[string]any{"value": "test", "type": "string"}, StringValue("test").asDatavalue())
}

func TestItemValueDatavalue(t *testing.T) {
	assert.Equal(t, map[string]any{
		"value": map[string]any{"entity-type": "item", "numeric-id": int64(0), "id": "Q0"},
		"type":  "wikibase-entityid",
	}, ItemValue(0).asDatavalue())
}

func TestLocationValueDatavalue(t *testing.T) {
	loc := LocationValue(model.CoordinateLocation{Lat: 0, Lon: 0})
	assert.Equal(t, map[string]any{
		"value": map[string]any{"latitude": 0.0, "longitude": 0.0, "globe": "http://www.wikidata.org/entity/Q2"},
		"type":  "globecoordinate",
	}, loc.asDatavalue())
}

func TestSnak(t *testing.T) {
	got := snak(0, StringValue("test"))
	assert.Equal(t, map[string]any{
		"snaktype":  "value",
		"property":  "P0",
		"datavalue": map[string]any{"value": "test", "type": "string"},
	}, got)
}

func TestClaimWithQualifiersAndReferences(t *testing.T) {
	cmd := Command{
		ItemID:   42,
		Property: 31,
		Value:    ItemValue(5),
		Qualifiers: []PropertyValue{
			{Property: 580, Value: StringValue("2020")},
		},
		References: []ReferenceGroup{
			{{Property: 143, Value: ItemValue(328)}},
			{}, // empty groups are dropped
		},
	}
	claim := cmd.Claim()
	assert.Equal(t, "statement", claim["type"])
	assert.Equal(t, "normal", claim["rank"])

	qualifiers := claim["qualifiers"].(map[string][]map[string]any)
	assert.Len(t, qualifiers["P580"], 1)

	references := claim["references"].([]map[string]any)
	assert.Len(t, references, 1)
}

func TestClaimDefaultsToNormalRank(t *testing.T) {
	cmd := Command{Property: 31, Value: ItemValue(5)}
	assert.Equal(t, "normal", cmd.Claim()["rank"])
}

func TestClaimHonorsExplicitRank(t *testing.T) {
	cmd := Command{Property: 31, Value: ItemValue(5), Rank: RankPreferred}
	assert.Equal(t, "preferred", cmd.Claim()["rank"])
}

func TestAddClaimInitializesClaimsArray(t *testing.T) {
	entity := map[string]any{}
	AddClaim(entity, Command{Property: 31, Value: ItemValue(5)})
	claims := entity["claims"].([]any)
	assert.Len(t, claims, 1)

	AddClaim(entity, Command{Property: 21, Value: ItemValue(6)})
	claims = entity["claims"].([]any)
	assert.Len(t, claims, 2)
}
