// Package wikidata builds the JSON edit payloads the KB write API expects:
// one statement ("claim") per Command, with optional qualifiers and
// reference groups folded in by property. Grounded on
// original_source/src/wikidata_commands.rs's WikidataCommand family; the Rust
// enum-of-value-kinds becomes a small closed Value interface here since Go
// has no tagged union.
package wikidata

import (
	"strconv"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// Rank is a statement's rank (spec §4.2 edit API).
type Rank string

const (
	RankNormal     Rank = "normal"
	RankPreferred  Rank = "preferred"
	RankDeprecated Rank = "deprecated"
)

// Value is anything that can appear as a snak's datavalue: a string, an item
// reference, or a coordinate. Grounded on WikidataCommandValue's three
// variants (String, Item, Location); the Rust enum's commented-out
// Time/SomeValue/NoValue variants are not reproduced since nothing in this
// system ever needs them.
type Value interface {
	asDatavalue() map[string]any
}

// StringValue is a plain string datavalue (e.g. an external-id statement).
type StringValue string

func (v StringValue) asDatavalue() map[string]any {
	return map[string]any{"value": string(v), "type": "string"}
}

// ItemValue references another KB item by its numeric id.
type ItemValue int64

func (v ItemValue) asDatavalue() map[string]any {
	return map[string]any{
		"value": map[string]any{
			"entity-type": "item",
			"numeric-id":  int64(v),
			"id":          itemID(int64(v)),
		},
		"type": "wikibase-entityid",
	}
}

// LocationValue is a globe-coordinate datavalue, always on Earth (Q2).
type LocationValue model.CoordinateLocation

func (v LocationValue) asDatavalue() map[string]any {
	return map[string]any{
		"value": map[string]any{
			"latitude":  v.Lat,
			"longitude": v.Lon,
			"globe":     "http://www.wikidata.org/entity/Q2",
		},
		"type": "globecoordinate",
	}
}

func itemID(q int64) string {
	return "Q" + itoa(q)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// PropertyValue pairs a property id with the value to snak-encode it as;
// used both as a qualifier and inside a reference group.
type PropertyValue struct {
	Property int64
	Value    Value
}

// ReferenceGroup is one reference (a set of property/value snaks cited
// together); a Command can carry several independent reference groups.
type ReferenceGroup []PropertyValue

// Command describes one statement to add to an item: the property/value
// pair, its qualifiers, its reference groups, an optional edit summary
// comment, and its rank. Grounded on WikidataCommand; EditEntity renders it
// into the "claims" array of a wbeditentity payload the way
// wikidata_commands.rs's edit_entity does.
type Command struct {
	ItemID     int64
	Property   int64
	Value      Value
	Qualifiers []PropertyValue
	References []ReferenceGroup
	Comment    string
	Rank       Rank
}

func (c Command) rank() Rank {
	if c.Rank == "" {
		return RankNormal
	}
	return c.Rank
}

func snak(property int64, value Value) map[string]any {
	return map[string]any{
		"snaktype":  "value",
		"property":  "P" + itoa(property),
		"datavalue": value.asDatavalue(),
	}
}

// Claim renders the command as one "claims" array entry: mainsnak, type,
// rank, and (if present) qualifiers and references grouped by property.
func (c Command) Claim() map[string]any {
	claim := map[string]any{
		"mainsnak": snak(c.Property, c.Value),
		"type":     "statement",
		"rank":     string(c.rank()),
	}
	if len(c.Qualifiers) > 0 {
		claim["qualifiers"] = groupByProperty(c.Qualifiers)
	}
	if len(c.References) > 0 {
		var groups []map[string]any
		for _, ref := range c.References {
			if len(ref) == 0 {
				continue
			}
			groups = append(groups, map[string]any{"snaks": groupByProperty(ref)})
		}
		if len(groups) > 0 {
			claim["references"] = groups
		}
	}
	return claim
}

func groupByProperty(pvs []PropertyValue) map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, pv := range pvs {
		key := "P" + itoa(pv.Property)
		out[key] = append(out[key], snak(pv.Property, pv.Value))
	}
	return out
}

// AddClaim appends the command's claim to entity's "claims" array,
// initializing it if absent, mirroring edit_entity_add_claim.
func AddClaim(entity map[string]any, c Command) {
	claims, _ := entity["claims"].([]any)
	entity["claims"] = append(claims, c.Claim())
}
