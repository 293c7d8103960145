package worker

import (
	"github.com/magnusmanske/mixnmatch-go/internal/matcher"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// DefaultRegistry maps every action tag with an implemented Matcher to that
// Matcher, for Worker's job dispatch (spec §6.1). Action tags with no entry
// here fail their job cleanly with an unknown-action error rather than
// crashing the worker; see DESIGN.md's Open Question decisions for which
// tags are deliberately absent and why.
func DefaultRegistry() map[string]matcher.Matcher {
	return map[string]matcher.Matcher{
		model.ActionAutomatch:                   matcher.Simple{},
		model.ActionAutomatchBySearch:           matcher.BySearch{},
		model.ActionAutomatchBySitelink:         matcher.BySitelink{},
		model.ActionAutomatchFromOtherCatalogs:  matcher.FromOtherCatalogs{},
		model.ActionAutoscrape:                  matcher.Autoscrape{},
		model.ActionAux2WD:                      matcher.AuxWrite{},
		model.ActionAuxiliaryMatcher:            matcher.AuxMatch{},
		model.ActionBespokeScraper:              matcher.BespokeScraper{},
		model.ActionFixDisambig:                 matcher.FixDisambig{},
		model.ActionFixRedirectedItemsInCatalog: matcher.FixRedirectedItemsInCatalog{},
		model.ActionMaintenanceAutomatch:        matcher.MaintenanceAutomatch{},
		model.ActionMatchByCoordinates:          matcher.Coordinate{},
		model.ActionMatchOnBirthdate:            matcher.BirthdateOnly{},
		model.ActionMatchPersonDates:            matcher.PersonDate{},
		model.ActionMicrosync:                   matcher.Microsync{},
		model.ActionPurgeAutomatches:            matcher.PurgeAutomatches{},
		model.ActionTaxonMatcher:                matcher.Taxon{},
	}
}
