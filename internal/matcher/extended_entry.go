package matcher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// Column-label patterns a scraped row's cell can carry, each recognized
// before falling back to the fixed label set below. Grounded verbatim on
// extended_entry.rs's RE_ALIAS/RE_DESCRIPTION/RE_PROPERTY/RE_TYPE/RE_DATE.
var (
	reExtEntryAlias       = regexp.MustCompile(`^A([a-z]+)$`)
	reExtEntryDescription = regexp.MustCompile(`^D([a-z]+)$`)
	reExtEntryProperty    = regexp.MustCompile(`^P(\d+)$`)
	reExtEntryType        = regexp.MustCompile(`^(Q\d+)$`)
	reExtEntryDate        = regexp.MustCompile(`^(\d{3,}|\d{3,4}-\d{2}|\d{3,4}-\d{2}-\d{2})$`)
	reExtEntryPoint       = regexp.MustCompile(`^\s*POINT\s*\(\s*(\S+?)[, ](\S+?)\s*\)\s*$`)
	reExtEntryLatLon      = regexp.MustCompile(`^(\S+)/(\S+)$`)
)

// extEntryLocationProperty is the one KB property process_cell special-cases
// into a CoordinateLocation instead of an auxiliary row. Grounded verbatim on
// extended_entry.rs's hard-coded 625 check ("TODO for all location
// properties, not only P625 hardcoded", left unresolved in the original).
const extEntryLocationProperty = 625

// ExtendedEntryBuilder accumulates one scraped record's fields as they are
// parsed, to be turned into a model.ExtendedEntry once the source row is
// exhausted. Grounded on extended_entry.rs's ExtendedEntry, split from the
// persistence-ready model.ExtendedEntry since the Rust struct conflates
// "being built from column labels" state (born/died as raw strings before
// validation) with the wire/storage shape; here that parsing state lives in
// the builder and Build converts it into model.ExtendedEntry's PersonDates/
// CoordinateLocation pointers.
type ExtendedEntryBuilder struct {
	Entry        model.Entry
	Aux          map[int64]string
	Aliases      []model.Alias
	Descriptions map[string]string
	Born, Died   string
	Location     *model.CoordinateLocation
}

// NewExtendedEntryBuilder starts a builder for one row of catalogID.
func NewExtendedEntryBuilder(catalogID int64, extID string) *ExtendedEntryBuilder {
	return &ExtendedEntryBuilder{
		Entry:        model.Entry{CatalogID: catalogID, ExtID: extID},
		Aux:          make(map[int64]string),
		Descriptions: make(map[string]string),
	}
}

// ProcessCell applies one (label, cell) pair from a scraped row, dispatching
// on label's shape: an alias/description/property pattern, else one of the
// fixed labels (id/name/desc/url/q/autoq/type/born/died). Grounded verbatim
// on extended_entry.rs's process_cell; unknown labels are ignored rather
// than erroring, since a bespoke scraper's column set is caller-defined and
// there is no shared registry of valid labels to validate against in Go.
func (b *ExtendedEntryBuilder) ProcessCell(label, cell string) {
	if m := reExtEntryAlias.FindStringSubmatch(label); m != nil {
		b.Aliases = append(b.Aliases, model.Alias{Language: m[1], Label: cell})
		return
	}
	if m := reExtEntryDescription.FindStringSubmatch(label); m != nil {
		b.Descriptions[m[1]] = cell
		return
	}
	if m := reExtEntryProperty.FindStringSubmatch(label); m != nil {
		property, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return
		}
		b.processProperty(property, cell)
		return
	}

	switch label {
	case "id":
		// already carried by Entry.ExtID
	case "name":
		b.Entry.ExtName = cell
	case "desc":
		b.Entry.ExtDesc = cell
	case "url":
		b.Entry.ExtURL = cell
	case "q", "autoq":
		b.setQ(cell)
	case "type":
		b.Entry.Type = ParseExtEntryType(cell)
	case "born":
		if d, ok := ParseExtEntryDate(cell); ok {
			b.Born = d
		}
	case "died":
		if d, ok := ParseExtEntryDate(cell); ok {
			b.Died = d
		}
	}
}

func (b *ExtendedEntryBuilder) setQ(cell string) {
	q, err := strconv.ParseInt(strings.TrimPrefix(cell, "Q"), 10, 64)
	if err != nil || q <= 0 {
		return
	}
	b.Entry.Q = &q
	userID := model.UserAuxMatch
	b.Entry.UserID = &userID
	ts := model.Now()
	b.Entry.Timestamp = &ts
}

// processProperty handles one Pnnn cell: a POINT(...) value for the
// location property is converted to "lat,lon" before the lat/lon split,
// everything else becomes an auxiliary value. Grounded verbatim on
// extended_entry.rs's parse_property.
func (b *ExtendedEntryBuilder) processProperty(property int64, cell string) {
	value := cell
	if m := reExtEntryPoint.FindStringSubmatch(cell); m != nil {
		value = m[1] + "," + m[2]
	}
	if property == extEntryLocationProperty {
		if m := reExtEntryLatLon.FindStringSubmatch(value); m != nil {
			lat, err1 := strconv.ParseFloat(m[1], 64)
			lon, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil {
				b.Location = &model.CoordinateLocation{Lat: lat, Lon: lon}
			}
		}
		return
	}
	b.Aux[property] = value
}

// Build converts the accumulated fields into a persistence-ready
// model.ExtendedEntry, for storage.UpsertExtendedEntry.
func (b *ExtendedEntryBuilder) Build() model.ExtendedEntry {
	ext := model.ExtendedEntry{
		Entry:        b.Entry,
		Aliases:      b.Aliases,
		Location:     b.Location,
	}
	for _, d := range sortedKeys(b.Descriptions) {
		ext.Descriptions = append(ext.Descriptions, model.Description{Language: d, Text: b.Descriptions[d]})
	}
	for _, p := range sortedInt64Keys(b.Aux) {
		ext.Aux = append(ext.Aux, model.AuxiliaryRow{PropertyNumeric: p, Value: b.Aux[p]})
	}
	if b.Born != "" || b.Died != "" {
		ext.Dates = &model.PersonDates{Born: b.Born, Died: b.Died}
	}
	return ext
}

// ParseExtEntryType validates a cell as a bare KB item id ("Q42"), the form
// extended_entry.rs's process_cell requires for the "type" column.
func ParseExtEntryType(cell string) *string {
	m := reExtEntryType.FindStringSubmatch(cell)
	if m == nil {
		return nil
	}
	return &m[1]
}

// ParseExtEntryDate validates cell as one of the three precisions
// process_cell accepts for born/died ("YYYY", "YYYY-MM", "YYYY-MM-DD").
// Grounded verbatim on extended_entry.rs's RE_DATE / parse_date.
func ParseExtEntryDate(cell string) (string, bool) {
	m := reExtEntryDate.FindStringSubmatch(cell)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInt64Keys(m map[int64]string) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
