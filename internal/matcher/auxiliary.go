package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
	"github.com/magnusmanske/mixnmatch-go/internal/wikidata"
)

// reAuxCoordinate grounds verbatim on auxiliary_matcher.rs's
// RE_COORDINATE_PATTERN.
var reAuxCoordinate = regexp.MustCompile(`^@?([0-9.\-]+)[,/]([0-9.\-]+)$`)

// auxBlacklistedCatalogs never run the aux->KB match direction. Grounded
// verbatim on auxiliary_matcher.rs's AUX_BLACKLISTED_CATALOGS.
var auxBlacklistedCatalogs = map[int64]bool{506: true}

// auxBlacklistedCatalogProperties suppresses one specific (catalog,
// property) combination known to be noisy. Grounded verbatim on
// AUX_BLACKLISTED_CATALOGS_PROPERTIES.
var auxBlacklistedCatalogProperties = map[[2]int64]bool{{2099, 428}: true}

// auxBlacklistedProperties are never matched or written to the KB.
// Grounded verbatim on AUX_BLACKLISTED_PROPERTIES.
var auxBlacklistedProperties = []int64{233, 235, 846, 2528, 4511}

// auxDoNotSyncCatalogToWikidata never run the aux->KB write direction.
// Grounded verbatim on AUX_DO_NOT_SYNC_CATALOG_TO_WIKIDATA.
var auxDoNotSyncCatalogToWikidata = map[int64]bool{655: true}

// auxPropertiesAlsoUsingLowercase compare case-insensitively against an
// existing KB statement. Grounded verbatim on
// AUX_PROPERTIES_ALSO_USING_LOWERCASE.
var auxPropertiesAlsoUsingLowercase = map[int64]bool{2002: true}

func isCatalogPropertySuspect(catalogID, property int64) bool {
	return auxBlacklistedCatalogProperties[[2]int64{catalogID, property}]
}

func isAuxBlacklistedProperty(property int64) bool {
	for _, p := range auxBlacklistedProperties {
		if p == property {
			return true
		}
	}
	return false
}

// AuxMatch implements the aux->KB match direction of spec §4.5.5: for each
// not-fully-matched auxiliary row on a whitelisted external-id property,
// search the KB for items carrying that (property,value); on a unique hit,
// confirm the statement is genuinely present before matching. Grounded on
// auxiliary_matcher.rs's match_via_auxiliary.
type AuxMatch struct{}

func (AuxMatch) Run(ctx context.Context, jc *JobContext) error {
	if auxBlacklistedCatalogs[jc.Catalog.ID] {
		return nil
	}
	extIDProps, err := externalIDProperties(ctx, jc)
	if err != nil {
		return err
	}
	if len(extIDProps) == 0 {
		return nil
	}

	err = RunBatches(ctx, jc,
		func(ctx context.Context, offset, batchSize int64) ([]storage.AuxiliaryMatchRow, error) {
			return jc.Store.AuxiliaryRowsForMatching(ctx, jc.Catalog.ID, extIDProps, offset, batchSize)
		},
		func(ctx context.Context, row storage.AuxiliaryMatchRow) error {
			return auxMatchOne(ctx, jc, row)
		},
	)
	if err != nil {
		return err
	}
	_, err = jc.Store.QueueSimpleJob(ctx, jc.Catalog.ID, model.ActionAux2WD, nil)
	return err
}

func auxMatchOne(ctx context.Context, jc *JobContext, row storage.AuxiliaryMatchRow) error {
	if isCatalogPropertySuspect(jc.Catalog.ID, row.PropertyNumeric) {
		return nil
	}
	query := fmt.Sprintf(`haswbstatement:"P%d=%s"`, row.PropertyNumeric, row.Value)
	items, err := jc.KB.Search(ctx, query)
	if err != nil {
		return nil // ignore error, matches the original's `Err(_) => continue`
	}
	switch len(items) {
	case 0:
		return nil
	case 1:
		return auxConfirmAndMatch(ctx, jc, row, items[0])
	default:
		return recordMultipleIssue(ctx, jc, row.EntryID, items)
	}
}

// auxConfirmAndMatch re-checks the candidate's actual statements before
// matching, rather than trusting the search index. Grounded on
// match_via_auxiliary's "load the actual entities, don't trust the search
// results" step; here done via a SPARQL property-value lookup instead of
// fetching a full wikibase::Entity, since kbclient has no entity-fetch
// surface.
func auxConfirmAndMatch(ctx context.Context, jc *JobContext, row storage.AuxiliaryMatchRow, item string) error {
	values, err := statementValues(ctx, jc, item, row.PropertyNumeric)
	if err != nil {
		return nil
	}
	if !hasStatementValue(values, row.Value, auxPropertiesAlsoUsingLowercase[row.PropertyNumeric]) {
		return nil
	}
	q, ok := parseQ(item)
	if !ok {
		return nil
	}
	_, err = jc.Store.SetMatch(ctx, row.EntryID, q, model.UserAuxMatch)
	return err
}

// externalIDProperties asks the KB which properties are of datatype
// ExternalId, excluding the blacklist. Grounded on
// auxiliary_matcher.rs's get_properties_that_have_external_ids.
func externalIDProperties(ctx context.Context, jc *JobContext) ([]int64, error) {
	props, err := propertiesOfType(ctx, jc, "ExternalId")
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(props))
	for _, p := range props {
		if !isAuxBlacklistedProperty(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// propertiesUsingItems asks the KB which properties are of datatype
// WikibaseItem. Grounded on get_properties_using_items.
func propertiesUsingItems(ctx context.Context, jc *JobContext) ([]int64, error) {
	return propertiesOfType(ctx, jc, "WikibaseItem")
}

func propertiesOfType(ctx context.Context, jc *JobContext, wikibaseType string) ([]int64, error) {
	sparql := fmt.Sprintf(
		"SELECT ?p WHERE { ?p rdf:type wikibase:Property; wikibase:propertyType wikibase:%s }", wikibaseType)
	bindings, err := jc.KB.Query(ctx, sparql)
	if err != nil {
		return nil, fmt.Errorf("properties of type %s: %w", wikibaseType, err)
	}
	out := make([]int64, 0, len(bindings))
	for _, b := range bindings {
		p := entityIDFromURI(b["p"])
		p = strings.TrimPrefix(p, "P")
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// statementValues returns the simplified values of every statement item
// carries for property (string or, for item-valued properties, "Q123"
// ids), via SPARQL rather than a full entity fetch.
func statementValues(ctx context.Context, jc *JobContext, item string, property int64) ([]string, error) {
	sparql := fmt.Sprintf("SELECT ?v WHERE { wd:%s wdt:P%d ?v }", item, property)
	bindings, err := jc.KB.Query(ctx, sparql)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, entityIDFromURI(b["v"]))
	}
	return out, nil
}

func hasStatementValue(values []string, value string, lowercase bool) bool {
	for _, v := range values {
		if lowercase {
			if strings.EqualFold(v, value) {
				return true
			}
		} else if v == value {
			return true
		}
	}
	return false
}

// propertiesWithCoordinates names properties whose aux value is a
// "lat,lon" pair rather than a plain string. Grounded verbatim on
// auxiliary_matcher.rs's properties_with_coordinates (P625 is
// hard-coded there too, with a "TODO load dynamically" left unresolved).
var propertiesWithCoordinates = map[int64]bool{625: true}

// AuxWrite implements the aux->KB write direction of spec §4.5.5: for each
// fully-matched entry's non-blacklisted auxiliary value not yet confirmed
// in the KB, build a sourced statement command unless the item already
// carries it, is a meta item, or the value is already attested elsewhere
// on the KB. Grounded on auxiliary_matcher.rs's add_auxiliary_to_wikidata /
// aux2wd_process_item / aux2wd_check_if_property_value_is_on_wikidata.
type AuxWrite struct{}

func (AuxWrite) Run(ctx context.Context, jc *JobContext) error {
	if auxDoNotSyncCatalogToWikidata[jc.Catalog.ID] {
		return nil
	}
	itemProps, err := propertiesUsingItems(ctx, jc)
	if err != nil {
		return err
	}
	itemPropSet := make(map[int64]bool, len(itemProps))
	for _, p := range itemProps {
		itemPropSet[p] = true
	}
	extIDProps, err := propertiesOfType(ctx, jc, "ExternalId")
	if err != nil {
		return err
	}
	extIDPropSet := make(map[int64]bool, len(extIDProps))
	for _, p := range extIDProps {
		extIDPropSet[p] = true
	}

	return RunBatches(ctx, jc,
		func(ctx context.Context, offset, batchSize int64) ([]storage.AuxiliaryWriteRow, error) {
			return jc.Store.AuxiliaryRowsForWrite(ctx, jc.Catalog.ID, auxBlacklistedProperties, offset, batchSize)
		},
		func(ctx context.Context, row storage.AuxiliaryWriteRow) error {
			return auxWriteOne(ctx, jc, row, itemPropSet, extIDPropSet)
		},
	)
}

func auxWriteOne(ctx context.Context, jc *JobContext, row storage.AuxiliaryWriteRow, itemProps, extIDProps map[int64]bool) error {
	if isCatalogPropertySuspect(jc.Catalog.ID, row.PropertyNumeric) || isAuxBlacklistedProperty(row.PropertyNumeric) {
		return nil
	}
	item := fmt.Sprintf("Q%d", row.QNumeric)

	isMeta, err := itemIsMetaItem(ctx, jc, item)
	if err != nil {
		return err
	}
	if isMeta {
		return nil
	}

	existing, err := statementValues(ctx, jc, item, row.PropertyNumeric)
	if err != nil {
		return err
	}
	if hasStatementValue(existing, row.Value, auxPropertiesAlsoUsingLowercase[row.PropertyNumeric]) {
		return jc.Store.SetAuxiliaryInKB(ctx, row.RowID, true)
	}

	if extIDProps[row.PropertyNumeric] {
		onKB, err := auxValueAttestedElsewhere(ctx, jc, row, item)
		if err != nil {
			return err
		}
		if onKB {
			return nil
		}
	}

	if avoid, err := jc.Store.AvoidAutoMatch(ctx, row.EntryID, &row.QNumeric); err != nil || avoid {
		return err
	}

	value, ok := auxCommandValue(row, itemProps)
	if !ok {
		return nil
	}
	refs, err := sourceForAux(ctx, jc, row)
	if err != nil {
		return err
	}
	cmd := wikidata.Command{
		ItemID:     row.QNumeric,
		Property:   row.PropertyNumeric,
		Value:      value,
		References: refs,
		Comment:    fmt.Sprintf("via https://mix-n-match.toolforge.org/#/entry/%d ;", row.EntryID),
	}
	return jc.KB.ExecuteCommands(ctx, []wikidata.Command{cmd})
}

// auxValueAttestedElsewhere searches the KB for other items already
// carrying (property,value): a unique hit on this item marks the row
// in_wikidata; a unique hit elsewhere or multiple hits records an issue so
// a human can reconcile it. Returns true when the caller should not write
// a new statement. Grounded on aux2wd_check_if_property_value_is_on_wikidata.
func auxValueAttestedElsewhere(ctx context.Context, jc *JobContext, row storage.AuxiliaryWriteRow, item string) (bool, error) {
	query := fmt.Sprintf(`haswbstatement:"P%d=%s"`, row.PropertyNumeric, row.Value)
	items, err := jc.KB.Search(ctx, query)
	if err != nil {
		return true, nil // ignore error, matches the original's `Err(_) => return true`
	}
	switch len(items) {
	case 0:
		return false, nil
	case 1:
		if items[0] == item {
			return true, jc.Store.SetAuxiliaryInKB(ctx, row.RowID, true)
		}
		return true, recordMismatchIssue(ctx, jc, row.EntryID, items[0], item)
	default:
		return true, recordMultipleIssue(ctx, jc, row.EntryID, items)
	}
}

func auxCommandValue(row storage.AuxiliaryWriteRow, itemProps map[int64]bool) (wikidata.Value, bool) {
	if itemProps[row.PropertyNumeric] {
		numeric := strings.TrimPrefix(row.Value, "Q")
		n, err := strconv.ParseInt(numeric, 10, 64)
		if err != nil {
			return nil, false
		}
		return wikidata.ItemValue(n), true
	}
	if propertiesWithCoordinates[row.PropertyNumeric] {
		lat, lon, ok := parseAuxCoordinate(row.Value)
		if !ok {
			return nil, false
		}
		return wikidata.LocationValue(model.CoordinateLocation{Lat: lat, Lon: lon}), true
	}
	return wikidata.StringValue(row.Value), true
}

// parseAuxCoordinate parses "@52.5,13.4" or "52.5/13.4" into (lat,lon).
// Grounded verbatim on auxiliary_matcher.rs's RE_COORDINATE_PATTERN /
// value_as_item_location.
func parseAuxCoordinate(value string) (lat, lon float64, ok bool) {
	m := reAuxCoordinate.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, false
	}
	latF, err1 := strconv.ParseFloat(m[1], 64)
	lonF, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return latF, lonF, true
}

// sourceForAux builds the reference group for an aux->KB statement:
// stated-in the catalog's source item (when set) plus either the
// catalog's own external-id property/value or the entry's external URL,
// falling back to the mnm entry URL. Grounded on
// auxiliary_matcher.rs's get_source_for_entry; the original's extra
// P9073-qualifier lookup on the catalog's WDProp entity (to derive a
// stated-in item when the catalog itself has none) is dropped since
// kbclient has no property-entity-fetch surface to resolve it.
func sourceForAux(ctx context.Context, jc *JobContext, row storage.AuxiliaryWriteRow) ([]wikidata.ReferenceGroup, error) {
	var statedIn wikidata.ReferenceGroup
	if jc.Catalog.SourceItem != nil {
		statedIn = wikidata.ReferenceGroup{{Property: 248, Value: wikidata.ItemValue(*jc.Catalog.SourceItem)}}
	}

	if jc.Catalog.WDProp != nil {
		return []wikidata.ReferenceGroup{
			statedIn,
			{{Property: *jc.Catalog.WDProp, Value: wikidata.StringValue(row.Value)}},
		}, nil
	}

	entry, err := jc.Store.GetEntry(ctx, row.EntryID)
	if err != nil {
		return nil, err
	}
	if entry.ExtURL != "" {
		return []wikidata.ReferenceGroup{
			statedIn,
			{{Property: 854, Value: wikidata.StringValue(entry.ExtURL)}},
		}, nil
	}

	mnmURL := fmt.Sprintf("https://mix-n-match.toolforge.org/#/entry/%d", row.EntryID)
	return []wikidata.ReferenceGroup{
		statedIn,
		{{Property: 854, Value: wikidata.StringValue(mnmURL)}},
	}, nil
}

// itemIsMetaItem reports whether item is one of the standard meta classes
// (disambiguation page etc), reusing kbclient's pagelinks-based detection.
func itemIsMetaItem(ctx context.Context, jc *JobContext, item string) (bool, error) {
	remaining, err := jc.KB.RemoveMetaItems(ctx, []string{item})
	if err != nil {
		return false, err
	}
	return len(remaining) == 0, nil
}

func recordMismatchIssue(ctx context.Context, jc *JobContext, entryID int64, wdItem, mnmItem string) error {
	return recordMultipleIssue(ctx, jc, entryID, []string{wdItem, mnmItem})
}
