package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// microsyncMaxWikiRows caps how many rows of each issue category are
// rendered individually in a report page before falling back to a summary
// count line. Grounded verbatim on microsync.rs's MAX_WIKI_ROWS.
const microsyncMaxWikiRows = 400

// microsyncBatchSize is the page size used when loading a catalog's entries
// (EntriesForMicrosync) into an ext_id index. Grounded on microsync.rs's own
// batch_size=5000; the SPARQL CSV side is not batched, since Go reads the
// streamed csv.Reader one row at a time.
const microsyncBatchSize = 5000

// microsyncBlacklistedCatalogs never run microsync. Grounded verbatim on
// microsync.rs's BLACKLISTED_CATALOGS; kept as its own set (rather than
// reusing auxBlacklistedCatalogs, which happens to share the same single
// entry) since the original tracks these independently per matcher.
var microsyncBlacklistedCatalogs = map[int64]bool{506: true}

// errUnsuitableCatalogProperty means the catalog has no WDProp set, or is
// qualifier-based, and so cannot be diffed against the KB by microsync.
// Grounded on microsync.rs's MicrosyncError::UnsuitableCatalogProperty.
var errUnsuitableCatalogProperty = errors.New("matcher: catalog unsuitable for microsync")

// matchDiffers is one entry fully matched to a different item on the KB
// than the one Wikidata's statement actually points at.
type matchDiffers struct {
	ExtID   string
	ExtURL  string
	QWd     int64
	QMnm    int64
	EntryID int64
}

// multipleExtIDInWikidata is one external id that more than one KB item
// carries a statement for.
type multipleExtIDInWikidata struct {
	ExtID string
	Items []string
}

// extIDNoMnM is one (item, external id) pair found on the KB with no
// matching entry in the catalog at all.
type extIDNoMnM struct {
	Q     int64
	ExtID string
}

// Microsync implements spec §4.5.8: for a directly-mappable catalog, fix
// redirects and deleted-item matches, then diff the catalog's entries
// against the KB's statements of the catalog's property and publish a
// wikitext discrepancy report. Grounded on microsync.rs's check_catalog.
type Microsync struct{}

func (Microsync) Run(ctx context.Context, jc *JobContext) error {
	if microsyncBlacklistedCatalogs[jc.Catalog.ID] {
		return nil
	}
	if !jc.Catalog.EligibleForMicrosync() {
		return errUnsuitableCatalogProperty
	}
	property := *jc.Catalog.WDProp

	if err := FixRedirects(ctx, jc, model.FullyMatchedState()); err != nil {
		return err
	}
	if err := UnlinkDeletedItems(ctx, jc, model.FullyMatchedState()); err != nil {
		return err
	}

	multipleInWD, err := microsyncMultipleExtIDInWikidata(ctx, jc, property)
	if err != nil {
		return err
	}
	multipleInMnM, err := jc.Store.MultipleQInCatalog(ctx, jc.Catalog.ID)
	if err != nil {
		return err
	}
	extidNotInMnM, differs, err := microsyncDifferencesMnmWd(ctx, jc, property)
	if err != nil {
		return err
	}

	wikitext, err := microsyncWikitextFromIssues(ctx, jc, multipleInWD, multipleInMnM, differs, extidNotInMnM)
	if err != nil {
		return err
	}
	return microsyncUpdateWikiPage(ctx, jc, wikitext)
}

// microsyncMultipleExtIDInWikidata finds every external id of property that
// more than one KB item carries a statement for. Grounded on microsync.rs's
// get_multiple_extid_in_wikidata.
func microsyncMultipleExtIDInWikidata(ctx context.Context, jc *JobContext, property int64) ([]multipleExtIDInWikidata, error) {
	sparql := fmt.Sprintf(`SELECT ?extid (count(?q) AS ?cnt) (GROUP_CONCAT(?q; SEPARATOR = '|') AS ?items)
		{ ?q wdt:P%d ?extid }
		GROUP BY ?extid HAVING (?cnt>1)
		ORDER BY ?extid`, property)
	reader, header, closeBody, err := jc.KB.QueryCSV(ctx, sparql)
	if err != nil {
		return nil, err
	}
	defer closeBody()

	extIDIdx, itemsIdx := csvColumn(header, "extid"), csvColumn(header, "items")
	if extIDIdx < 0 || itemsIdx < 0 {
		return nil, nil
	}

	var out []multipleExtIDInWikidata
	for len(out) <= microsyncMaxWikiRows {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) != 3 {
			continue
		}
		items := strings.Split(row[itemsIdx], "|")
		for i, it := range items {
			items[i] = entityIDFromURI(it)
		}
		out = append(out, multipleExtIDInWikidata{ExtID: row[extIDIdx], Items: items})
	}
	return out, nil
}

// microsyncExtIDIndex builds a full ext_id->entry lookup for catalogID, for
// diffing against KB statement values. Grounded on microsync.rs's
// get_entries_for_ext_ids, adapted from the original's per-chunk
// "WHERE ext_id IN (...)" round trips into a single paginated full-catalog
// load built once up front, since every entry is a candidate key regardless
// of which chunk of the SPARQL stream its value eventually turns up in.
func microsyncExtIDIndex(ctx context.Context, jc *JobContext, caseInsensitive bool) (map[string]storage.MicrosyncRow, error) {
	index := make(map[string]storage.MicrosyncRow)
	offset := int64(0)
	for {
		rows, err := jc.Store.EntriesForMicrosync(ctx, jc.Catalog.ID, offset, microsyncBatchSize)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			key := row.ExtID
			if caseInsensitive {
				key = strings.ToLower(key)
			}
			index[key] = row
		}
		offset += int64(len(rows))
		if int64(len(rows)) < microsyncBatchSize {
			return index, nil
		}
	}
}

// microsyncDifferencesMnmWd streams the KB's statements of property and
// classifies each against the catalog's entries: a hit on an unmatched or
// only auto-matched entry is confirmed as a match; a hit fully matched to a
// different (nonzero) item is reported as a conflict; a hit with no entry
// at all is reported as unknown. Grounded on microsync.rs's
// get_differences_mnm_wd / get_q2ext_id_chunk.
func microsyncDifferencesMnmWd(ctx context.Context, jc *JobContext, property int64) ([]extIDNoMnM, []matchDiffers, error) {
	caseInsensitive := auxPropertiesAlsoUsingLowercase[property]
	index, err := microsyncExtIDIndex(ctx, jc, caseInsensitive)
	if err != nil {
		return nil, nil, err
	}

	sparql := fmt.Sprintf(`SELECT ?item ?value { ?item wdt:P%d ?value } ORDER BY ?item`, property)
	reader, header, closeBody, err := jc.KB.QueryCSV(ctx, sparql)
	if err != nil {
		return nil, nil, err
	}
	defer closeBody()

	itemIdx, valueIdx := csvColumn(header, "item"), csvColumn(header, "value")
	if itemIdx < 0 || valueIdx < 0 {
		return nil, nil, nil
	}

	var notInMnM []extIDNoMnM
	var differs []matchDiffers
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(row) < 2 {
			continue
		}
		q, ok := parseQ(entityIDFromURI(row[itemIdx]))
		if !ok {
			continue
		}
		extID := row[valueIdx]
		key := extID
		if caseInsensitive {
			key = strings.ToLower(key)
		}
		entry, ok := index[key]
		if !ok {
			if len(notInMnM) <= microsyncMaxWikiRows {
				notInMnM = append(notInMnM, extIDNoMnM{Q: q, ExtID: extID})
			}
			continue
		}
		userVal := 0
		if entry.UserID != nil {
			userVal = *entry.UserID
		}
		switch {
		case entry.UserID == nil || userVal == 0 || entry.QNumeric == nil:
			if _, err := jc.Store.SetMatch(ctx, entry.EntryID, q, model.UserAuxMatch); err != nil {
				return nil, nil, err
			}
		case *entry.QNumeric != q:
			if *entry.QNumeric <= 0 {
				if _, err := jc.Store.SetMatch(ctx, entry.EntryID, q, model.UserAuxMatch); err != nil {
					return nil, nil, err
				}
			} else if len(differs) <= microsyncMaxWikiRows {
				differs = append(differs, matchDiffers{
					ExtID:   extID,
					ExtURL:  entry.ExtURL,
					QWd:     q,
					QMnm:    *entry.QNumeric,
					EntryID: entry.EntryID,
				})
			}
		}
	}

	sort.Slice(notInMnM, func(i, j int) bool {
		if notInMnM[i].Q != notInMnM[j].Q {
			return notInMnM[i].Q < notInMnM[j].Q
		}
		return notInMnM[i].ExtID < notInMnM[j].ExtID
	})
	sort.Slice(differs, func(i, j int) bool { return differs[i].ExtID < differs[j].ExtID })
	return notInMnM, differs, nil
}

func csvColumn(header []string, name string) int {
	for i, h := range header {
		if strings.TrimPrefix(h, "?") == name {
			return i
		}
	}
	return -1
}

// formatExtID wraps ext_id as a wikilink using formatterURL's "$1" template
// if set, else extURL verbatim, else returns ext_id bare. Grounded verbatim
// on microsync.rs's format_ext_id.
func formatExtID(extID, extURL, formatterURL string) string {
	if formatterURL != "" {
		return fmt.Sprintf("[%s %s]", strings.ReplaceAll(formatterURL, "$1", extID), extID)
	}
	if extURL != "" {
		return fmt.Sprintf("[%s %s]", extURL, extID)
	}
	return extID
}

// microsyncWikitextFromIssues renders the per-catalog report page: a header
// plus up to four sections, each capped at microsyncMaxWikiRows rows before
// falling back to a one-line summary count. Grounded verbatim on
// microsync.rs's wikitext_from_issues.
func microsyncWikitextFromIssues(
	ctx context.Context,
	jc *JobContext,
	multipleInWD []multipleExtIDInWikidata,
	multipleInMnM []storage.MultipleQInCatalogRow,
	differs []matchDiffers,
	notInMnM []extIDNoMnM,
) (string, error) {
	var formatterURL string
	if jc.Catalog.WDProp != nil {
		u, err := jc.KB.FormatterURL(ctx, *jc.Catalog.WDProp)
		if err != nil {
			return "", err
		}
		formatterURL = u
	}
	catalogName := ""
	if jc.Catalog.Name != nil {
		catalogName = *jc.Catalog.Name
	}

	const siteURL = "https://mix-n-match.toolforge.org"
	var b strings.Builder
	fmt.Fprintf(&b, "A report for the [%s/ Mix'n'match] tool. '''This page will be replaced regularly!'''\n", siteURL)
	b.WriteString("''Please note:''\n")
	b.WriteString("* If you fix something from this list on Wikidata, please fix it on Mix'n'match as well, if applicable. Otherwise, the error might be re-introduced from there.\n")
	b.WriteString("* 'External ID' refers to the IDs in the original (external) catalog; the same as the statement value for the associated  property.\n\n")
	fmt.Fprintf(&b, "==[%s/#/catalog/%d %s]==\n%s\n\n", siteURL, jc.Catalog.ID, catalogName, jc.Catalog.Description)

	if len(notInMnM) > 0 {
		b.WriteString("== Unknown external ID ==\n")
		if len(notInMnM) > microsyncMaxWikiRows {
			fmt.Fprintf(&b, "* %d external IDs in Wikidata but not in Mix'n'Match. Too many to show individually.\n\n", len(notInMnM))
		} else {
			b.WriteString("{| class='wikitable'\n! External ID !! Item\n")
			for _, e := range notInMnM {
				fmt.Fprintf(&b, "|-\n| %s || {{Q|%d}}\n", formatExtID(e.ExtID, "", formatterURL), e.Q)
			}
			b.WriteString("|}\n\n")
		}
	}

	if len(differs) > 0 {
		b.WriteString("== Different items for the same external ID ==\n")
		if len(differs) > microsyncMaxWikiRows {
			fmt.Fprintf(&b, "* %d enties have different items on Mix'n'match and Wikidata. Too many to show individually.\n\n", len(differs))
		} else {
			ids := make([]int64, len(differs))
			for i, e := range differs {
				ids[i] = e.EntryID
			}
			names, err := jc.Store.EntryNames(ctx, ids)
			if err != nil {
				return "", err
			}
			b.WriteString("{| class='wikitable'\n! External ID !! External label !! Item in Wikidata !! Item in Mix'n'Match !! Mix'n'match entry\n")
			for _, e := range differs {
				extName, ok := names[e.EntryID]
				if !ok {
					extName = e.ExtID
				}
				mnmURL := fmt.Sprintf("https://mix-n-match.toolforge.org/#/entry/%d", e.EntryID)
				fmt.Fprintf(&b, "|-\n| %s || %s || {{Q|%d}} || {{Q|%d}} || [%s %d]\n",
					formatExtID(e.ExtID, e.ExtURL, formatterURL), extName, e.QWd, e.QMnm, mnmURL, e.EntryID)
			}
			b.WriteString("|}\n\n")
		}
	}

	if len(multipleInMnM) > 0 {
		b.WriteString("== Same item for multiple external IDs in Mix'n'match ==\n")
		if len(multipleInMnM) > microsyncMaxWikiRows {
			fmt.Fprintf(&b, "* %d items have more than one match in Mix'n'Match. Too many to show individually.\n\n", len(multipleInMnM))
		} else {
			var ids []int64
			for _, e := range multipleInMnM {
				ids = append(ids, e.EntryIDs...)
			}
			names, err := jc.Store.EntryNames(ctx, ids)
			if err != nil {
				return "", err
			}
			b.WriteString("{| class='wikitable'\n! Item in Mix'n'Match !! Mix'n'match entry !! External ID !! External label\n")
			for _, e := range multipleInMnM {
				for i, entryID := range e.EntryIDs {
					var extID string
					if i < len(e.ExtIDs) {
						extID = e.ExtIDs[i]
					}
					var row string
					if i == 0 {
						row = fmt.Sprintf("|-\n|rowspan=%d|{{Q|%d}}|| ", len(e.EntryIDs), e.QNumeric)
					} else {
						row = "|-\n|| "
					}
					extName, ok := names[entryID]
					if !ok {
						extName = extID
					}
					mnmURL := fmt.Sprintf("https://mix-n-match.toolforge.org/#/entry/%d", entryID)
					fmt.Fprintf(&b, "%s[%s %d] || %s || %s\n", row, mnmURL, entryID, formatExtID(extID, "", formatterURL), extName)
				}
			}
			b.WriteString("|}\n\n")
		}
	}

	if len(multipleInWD) > 0 {
		b.WriteString("== Multiple items for the same external ID in Wikidata ==\n")
		if len(multipleInWD) > microsyncMaxWikiRows {
			fmt.Fprintf(&b, "* %d external IDs have at least two items on Wikidata. Too many to show individually.\n\n", len(multipleInWD))
		} else {
			b.WriteString("{| class='wikitable'\n! External ID !! Items in Mix'n'Match\n")
			for _, e := range multipleInWD {
				items := make([]string, len(e.Items))
				for i, q := range e.Items {
					items[i] = fmt.Sprintf("{{Q|%s}}", strings.TrimPrefix(q, "Q"))
				}
				fmt.Fprintf(&b, "|-\n| %s || %s\n", formatExtID(e.ExtID, "", formatterURL), strings.Join(items, "<br/>"))
			}
			b.WriteString("|}\n\n")
		}
	}

	return b.String(), nil
}

// microsyncUpdateWikiPage publishes wikitext to the catalog's report page.
// Grounded verbatim on microsync.rs's update_wiki_page.
func microsyncUpdateWikiPage(ctx context.Context, jc *JobContext, wikitext string) error {
	title := fmt.Sprintf("User:Magnus Manske/Mix'n'match report/%d", jc.Catalog.ID)
	day := time.Now().UTC().Format("20060102")
	comment := fmt.Sprintf("Update %s", day)
	return jc.KB.SetWikiPage(ctx, title, wikitext, comment)
}
