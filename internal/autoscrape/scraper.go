package autoscrape

import (
	"fmt"
	"math/rand"
	"regexp"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// Scraper turns one fetched page into zero or more extended entries: an
// optional regex splits the page into blocks, an ordered list of
// per-block regexes extracts capture groups (first to match a block
// wins), and a set of Resolve templates turns those captures into the
// entry's fields directly — unlike the import-pipeline's
// ExtendedEntryBuilder/ProcessCell column-label path, autoscrape never
// sees column labels, only capture groups. Grounded on
// AutoscrapeScraper::process_html_page/process_html_block.
type Scraper struct {
	URL         string
	RegexBlock  *regexp.Regexp // optional; nil means the whole page is one block
	RegexEntry  []*regexp.Regexp
	ResolveID   Resolve
	ResolveName Resolve
	ResolveDesc Resolve
	ResolveURL  Resolve
	ResolveType Resolve
	ResolveAux  []ResolveAux
}

// ProcessHTMLPage splits html into blocks via RegexBlock (or treats it as
// a single block) and extracts entries from each.
func (s Scraper) ProcessHTMLPage(html string, catalogID int64, levelKeys []string) []model.ExtendedEntry {
	if s.RegexBlock == nil {
		return s.processHTMLBlock(html, catalogID, levelKeys)
	}
	var out []model.ExtendedEntry
	for _, m := range s.RegexBlock.FindAllStringSubmatch(html, -1) {
		if len(m) < 2 {
			continue
		}
		out = append(out, s.processHTMLBlock(m[1], catalogID, levelKeys)...)
	}
	return out
}

// processHTMLBlock tries each RegexEntry pattern in turn; the first one
// that matches anything in the block wins (break after first match), and
// every capture-group match of that pattern becomes one extended entry.
func (s Scraper) processHTMLBlock(block string, catalogID int64, levelKeys []string) []model.ExtendedEntry {
	var out []model.ExtendedEntry
	for _, rx := range s.RegexEntry {
		matches := rx.FindAllStringSubmatch(block, -1)
		if len(matches) == 0 {
			continue
		}
		for _, cap := range matches {
			out = append(out, s.buildExtendedEntry(cap, catalogID, levelKeys))
		}
		break
	}
	return out
}

// buildExtendedEntry resolves one capture group set into a full
// model.ExtendedEntry, grounded on process_html_block_generate_entry_ex.
func (s Scraper) buildExtendedEntry(cap []string, catalogID int64, levelKeys []string) model.ExtendedEntry {
	vars := generateMap(cap, levelKeys)

	entry := model.Entry{
		CatalogID: catalogID,
		ExtID:     s.ResolveID.ReplaceVars(vars),
		ExtURL:    s.ResolveURL.ReplaceVars(vars),
		ExtName:   s.ResolveName.ReplaceVars(vars),
		ExtDesc:   s.ResolveDesc.ReplaceVars(vars),
		Random:    rand.Float64(),
	}
	if typeName := s.ResolveType.ReplaceVars(vars); typeName != "" {
		entry.Type = &typeName
	}

	aux := make([]model.AuxiliaryRow, 0, len(s.ResolveAux))
	for _, a := range s.ResolveAux {
		property, value := a.ReplaceVars(vars)
		aux = append(aux, model.AuxiliaryRow{PropertyNumeric: property, Value: value})
	}

	return model.ExtendedEntry{Entry: entry, Aux: aux}
}

// generateMap builds the "$1","$2",… capture-group and "$L1","$L2",…
// level-key substitution map a Resolve template draws from. Grounded on
// process_html_block_generate_map.
func generateMap(cap []string, levelKeys []string) map[string]string {
	vars := make(map[string]string, len(cap)+len(levelKeys))
	for i := 1; i < len(cap); i++ {
		vars[fmt.Sprintf("$%d", i)] = cap[i]
	}
	for i, key := range levelKeys {
		vars[fmt.Sprintf("$L%d", i+1)] = key
	}
	return vars
}
