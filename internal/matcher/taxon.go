package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// taxonRanks maps a taxon rank name (the entry's `type` column) to the KB
// item naming that rank, used to build the P105 qualifier in the search
// query. Grounded verbatim on taxon_matcher.rs's TAXON_RANKS.
var taxonRanks = map[string]string{
	"variety":      "Q767728",
	"subspecies":   "Q68947",
	"species":      "Q7432",
	"superfamily":  "Q2136103",
	"subfamily":    "Q2455704",
	"class":        "Q37517",
	"suborder":     "Q5867959",
	"genus":        "Q34740",
	"family":       "Q35409",
	"order":        "Q36602",
}

const taxonItem = "Q16521"

// SetTaxonRanks replaces the rank whitelist, for operators who seed their
// own rank->item table via internal/config rather than relying on the
// taxon_matcher.rs defaults above.
func SetTaxonRanks(ranks map[string]string) {
	taxonRanks = ranks
}

// useDescriptionsForTaxonName lists catalogs whose taxon name lives in the
// description column rather than ext_name. Grounded verbatim on
// USE_DESCRIPTIONS_FOR_TAXON_NAME_CATALOGS.
var useDescriptionsForTaxonName = map[int64]bool{169: true, 827: true}

// reCatalog169 strips a Britannica-style "reptile; [Carphophis amoenus, foo
// bar]" description down to the bracketed taxon name. Grounded verbatim on
// RE_CATALOG_169.
var reCatalog169 = regexp.MustCompile(`(?i)^.*\[([a-z ]+).*$`)

// rewriteTaxonName applies catalog-agnostic and catalog-169-specific taxon
// name fixes. Grounded on taxon_matcher.rs's rewrite_taxon_name.
func rewriteTaxonName(catalogID int64, taxonName string) string {
	taxonName = strings.ReplaceAll(taxonName, " ssp. ", " subsp. ")
	if catalogID == 169 {
		taxonName = reCatalog169.ReplaceAllString(taxonName, "$1")
	}
	return taxonName
}

// Taxon implements spec §4.5.4: rewrite the taxon name, compose a KB search
// restricted to taxon items with matching scientific-name/synonym
// statements (and a rank qualifier when the entry's type maps to one),
// then match uniquely or record a WD_DUPLICATE issue. Grounded on
// taxon_matcher.rs's match_taxa.
type Taxon struct{}

func (Taxon) Run(ctx context.Context, jc *JobContext) error {
	nameColumn := "ext_name"
	if useDescriptionsForTaxonName[jc.Catalog.ID] {
		nameColumn = "ext_desc"
	}
	ranks := make([]string, 0, len(taxonRanks)+1)
	for rank := range taxonRanks {
		ranks = append(ranks, rank)
	}
	ranks = append(ranks, taxonItem)

	err := RunBatches(ctx, jc,
		func(ctx context.Context, offset, batchSize int64) ([]storage.TaxonRow, error) {
			return jc.Store.EntriesForTaxonMatcher(ctx, jc.Catalog.ID, ranks, nameColumn, offset, batchSize)
		},
		func(ctx context.Context, row storage.TaxonRow) error {
			return taxonOne(ctx, jc, row)
		},
	)
	if err != nil {
		return err
	}
	return jc.Store.SetCatalogTaxonRun(ctx, jc.Catalog.ID, true)
}

func taxonOne(ctx context.Context, jc *JobContext, row storage.TaxonRow) error {
	taxonName := rewriteTaxonName(jc.Catalog.ID, row.TaxonName)
	query := fmt.Sprintf(`haswbstatement:P31=%s haswbstatement:"P225=%s|P1420=%s"`, taxonItem, taxonName, taxonName)
	if rankQ, ok := taxonRanks[row.TypeName]; ok {
		query += fmt.Sprintf(" haswbstatement:P105=%s", rankQ)
	}
	items, err := jc.KB.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search taxon %q: %w", taxonName, err)
	}
	switch len(items) {
	case 0:
		return nil
	case 1:
		q, ok := parseQ(items[0])
		if !ok {
			return nil
		}
		_, err := jc.Store.SetMatch(ctx, row.EntryID, q, model.UserAuxMatch)
		return err
	default:
		return recordMultipleIssue(ctx, jc, row.EntryID, items)
	}
}
