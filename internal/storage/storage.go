package storage

import (
	"context"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// JobSelector names one of the six job-queue priority tiers a caller wants
// the next TODO job id for. Grounded on original_source/src/job.rs's
// get_next_job_id cascade: high priority, then dependent-on-DONE, then the
// task-size admission ladder, then any remaining TODO, then low priority,
// then scheduled DONE jobs whose next_ts has arrived.
type JobSelector struct {
	Status        model.JobStatus  // jobs in this status are candidates
	DependsOnDone bool             // true: only jobs whose depends_on job is in DependsOnStatus
	DependsOnStatus model.JobStatus
	RequireNoDependsOn bool        // true: only jobs with depends_on IS NULL
	ExcludeActions []string        // actions not to consider (task-size ladder)
	NextTSBefore   string          // non-empty: only jobs whose next_ts <= this, ordered by next_ts
}

// Storage is the persistence boundary the matcher engine, job queue and
// worker loop depend on. One MySQL-backed implementation
// (internal/storage/mysql) serves production; a SQLite-backed one
// (internal/storage/storagetest) serves package tests. Grounded on
// original_source/src/storage.rs (the Storage trait) and
// original_source/src/storage_mysql.rs (its MySQL implementation), adapted
// to the Go error-wrapping and context.Context conventions the teacher
// repo's internal/storage/sqlite package uses.
type Storage interface {
	Close() error

	// Entries

	GetEntry(ctx context.Context, entryID int64) (*model.Entry, error)
	GetEntryByExtID(ctx context.Context, catalogID int64, extID string) (*model.Entry, error)
	CreateEntry(ctx context.Context, e *model.Entry) (int64, error)

	// SetMatch sets q/user/timestamp on an entry. For userID==model.UserAuto
	// it consults AvoidAutoMatch first and restricts the UPDATE to
	// not-fully-matched rows (rule A); returns false, nil when the write
	// was a no-op (already matched identically, or auto-match avoided).
	SetMatch(ctx context.Context, entryID int64, qNumeric int64, userID int) (bool, error)
	Unmatch(ctx context.Context, entryID int64) error
	SetMatchStatus(ctx context.Context, entryID int64, status string, isMatched bool) error
	GetMultiMatch(ctx context.Context, entryID int64) ([]int64, error)
	SetMultiMatch(ctx context.Context, entryID int64, candidates []int64) error
	RemoveMultiMatch(ctx context.Context, entryID int64) error

	// PurgeAutomatches clears every auto-matched (user=0) entry's match and
	// drops its multi_match rows for one catalog, leaving confirmed matches
	// (user>0) untouched. Grounded on automatch.rs's purge_automatches.
	PurgeAutomatches(ctx context.Context, catalogID int64) error

	// AvoidAutoMatch reports whether a human has previously removed a match
	// for this entry (optionally: removed this exact q), per rule B: an
	// auto matcher must never re-propose a match a human rejected.
	AvoidAutoMatch(ctx context.Context, entryID int64, qNumeric *int64) (bool, error)
	LogRemovedMatch(ctx context.Context, entryID int64, qNumeric *int64) error

	// Auxiliary rows, person dates, coordinates, aliases, descriptions

	GetAuxiliary(ctx context.Context, entryID int64) ([]model.AuxiliaryRow, error)
	SetAuxiliaryInKB(ctx context.Context, rowID int64, inKB bool) error
	GetPersonDates(ctx context.Context, entryID int64) (*model.PersonDates, error)
	SetPersonDates(ctx context.Context, entryID int64, dates model.PersonDates) error
	GetCoordinateLocation(ctx context.Context, entryID int64) (*model.CoordinateLocation, error)
	SetCoordinateLocation(ctx context.Context, entryID int64, loc model.CoordinateLocation) error
	GetAliases(ctx context.Context, entryID int64) ([]model.Alias, error)
	AddAlias(ctx context.Context, entryID int64, a model.Alias) error
	GetDescriptions(ctx context.Context, entryID int64) ([]model.Description, error)
	SetDescription(ctx context.Context, entryID int64, d model.Description) error
	UpsertExtendedEntry(ctx context.Context, ext model.ExtendedEntry) (int64, error)

	// Catalogs

	GetCatalog(ctx context.Context, catalogID int64) (*model.Catalog, error)
	ListActiveCatalogs(ctx context.Context) ([]model.Catalog, error)
	SetCatalogTaxonRun(ctx context.Context, catalogID int64, taxonRun bool) error
	// RandomActiveCatalogIDWithProperty picks one active, directly-mappable
	// catalog at random, for internal/worker's microsync catalog_id==0
	// resolution (spec §4.6). ok is false if no such catalog exists.
	RandomActiveCatalogIDWithProperty(ctx context.Context) (catalogID int64, ok bool, err error)

	// Autoscrape (spec §4.5.11). GetAutoscrapeConfig returns ErrNotFound
	// when catalogID has no autoscrape row, grounded on
	// storage_mysql.rs's autoscrape_get_for_catalog (which returns the
	// first of possibly several rows; one catalog has at most one
	// autoscrape config in practice). AutoscrapeStart/Finish grounded on
	// autoscrape_start/autoscrape_finish.
	GetAutoscrapeConfig(ctx context.Context, catalogID int64) (id int64, configJSON string, err error)
	AutoscrapeStart(ctx context.Context, autoscrapeID int64) error
	AutoscrapeFinish(ctx context.Context, autoscrapeID int64, lastRunURLs int64) error

	// Overview

	GetOverview(ctx context.Context, catalogID int64) (*model.Overview, error)
	// UpdateOverviewTable applies the incremental delta implied by a single
	// entry transitioning from (oldUserID, oldQ) to (newUserID, newQ).
	UpdateOverviewTable(ctx context.Context, catalogID int64, oldUserID *int, oldQ *int64, newUserID *int, newQ *int64) error
	RefreshOverviewTable(ctx context.Context, catalogID int64) error

	// Jobs

	QueueSimpleJob(ctx context.Context, catalogID int64, action string, dependsOn *int64) (int64, error)
	GetJob(ctx context.Context, jobID int64) (*model.Job, error)
	SetJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error
	SetJobNote(ctx context.Context, jobID int64, note string) error
	SetJobJSON(ctx context.Context, jobID int64, json *string) error
	UpdateJobNextTS(ctx context.Context, jobID int64, nextTS string) error
	// GetNextJobID runs the parametric selector query for one priority
	// tier; returns (0, nil) when no candidate exists in that tier.
	GetNextJobID(ctx context.Context, sel JobSelector) (int64, error)
	ResetRunningJobs(ctx context.Context) error
	ResetFailedJobs(ctx context.Context) error

	// Issues

	CreateIssue(ctx context.Context, issue model.Issue) (int64, error)
	ListOpenIssues(ctx context.Context, catalogID int64) ([]model.Issue, error)
	ResolveIssue(ctx context.Context, issueID int64, status model.IssueStatus) error

	// Key/value store (checkpoints for external feed readers, e.g. WDRC)

	GetKV(ctx context.Context, key string) (string, bool, error)
	SetKV(ctx context.Context, key, value string) error

	// GetCatalogKV reads a per-catalog setting (e.g. location_distance,
	// location_force_same_type, allow_location_match/create). Grounded on
	// coordinate_matcher.rs's load_permissions, which loads the whole
	// kv_catalog table up front; here it is a targeted per-key lookup since
	// every matcher call is already scoped to one JobContext.Catalog.
	GetCatalogKV(ctx context.Context, catalogID int64, key string) (string, bool, error)

	// QueueReferenceFixer records that item q's back-references may be
	// stale, for an out-of-scope background fixer to pick up later.
	QueueReferenceFixer(ctx context.Context, qNumeric int64) error

	// Matcher batch queries, one per matcher, mirroring the original's
	// per-matcher *_get_results methods.

	EntriesForAutomatchBySearch(ctx context.Context, catalogID int64, offset, batchSize int64) ([]AutomatchSearchRow, error)
	EntriesForAutomatchBySitelink(ctx context.Context, catalogID int64, offset, batchSize int64) ([]AutomatchSitelinkRow, error)
	EntriesForAutomatchFromOtherCatalogs(ctx context.Context, catalogID int64, offset, batchSize int64) ([]OtherCatalogMatchRow, error)
	EntriesForTaxonMatcher(ctx context.Context, catalogID int64, ranks []string, nameColumn string, offset, batchSize int64) ([]TaxonRow, error)
	EntriesForCoordinateMatcher(ctx context.Context, catalogID int64, offset, batchSize int64) ([]CoordinateRow, error)
	EntriesForPersonDateMatcher(ctx context.Context, catalogID int64, offset, batchSize int64) ([]PersonDateRow, error)
	// EntriesForSingleDateMatcher finds not-fully-matched entries with
	// exactly one of born/died recorded, for the single-date matcher (spec
	// §6.1 match_on_birthdate). Grounded on storage_mysql.rs's
	// match_person_by_single_date_get_results row shape (entry_id, born,
	// died); the original's precision-bucketed candidate pre-resolution is
	// not reproduced here (see DESIGN.md), so this returns raw rows for the
	// matcher to search and narrow itself, the way EntriesForPersonDateMatcher
	// does for the two-date matcher.
	EntriesForSingleDateMatcher(ctx context.Context, catalogID int64, offset, batchSize int64) ([]PersonDateRow, error)
	// EntriesForAutomatchSimple finds not-fully-matched entries for the
	// plain automatch action. Grounded on storage_mysql.rs's
	// automatch_simple_get_results, whose row shape is identical to
	// EntriesForAutomatchBySearch's; the two matchers share this query.
	EntriesForAutomatchSimple(ctx context.Context, catalogID int64, offset, batchSize int64) ([]AutomatchSearchRow, error)
	EntriesForMicrosync(ctx context.Context, catalogID int64, offset, batchSize int64) ([]MicrosyncRow, error)
	// MultipleQInCatalog finds every item q matched, by more than one entry
	// of the catalog, fully. Grounded on microsync.rs's get_multiple_q_in_mnm.
	MultipleQInCatalog(ctx context.Context, catalogID int64) ([]MultipleQInCatalogRow, error)
	// EntryNames resolves entry ids to their ext_name, for rendering
	// microsync's report rows. Grounded on microsync.rs's load_entry_names.
	EntryNames(ctx context.Context, entryIDs []int64) (map[int64]string, error)
	AuxiliaryRowsForCatalog(ctx context.Context, catalogID int64, propertyNumeric int64, offset, batchSize int64) ([]model.AuxiliaryRow, error)

	// AuxiliaryRowsForMatching grounds on auxiliary_matcher.rs's
	// match_via_auxiliary query: not-fully-matched, not-yet-in-KB auxiliary
	// rows whose property is in the external-id whitelist the caller
	// computed from the KB's property-type SPARQL query.
	AuxiliaryRowsForMatching(ctx context.Context, catalogID int64, properties []int64, offset, batchSize int64) ([]AuxiliaryMatchRow, error)
	// AuxiliaryRowsForWrite grounds on auxiliary_matcher.rs's
	// add_auxiliary_to_wikidata query: fully-matched, not-yet-in-KB
	// auxiliary rows whose property is not in the caller's blacklist.
	AuxiliaryRowsForWrite(ctx context.Context, catalogID int64, excludeProperties []int64, offset, batchSize int64) ([]AuxiliaryWriteRow, error)

	// Maintenance (spec §4.5.9)

	// DistinctMatchedQs returns one batch of the distinct non-null q values
	// among catalogID's entries matching state. Grounded on
	// maintenance.rs's get_items, which batches at 5000.
	DistinctMatchedQs(ctx context.Context, catalogID int64, state model.MatchState, offset, batchSize int64) ([]int64, error)
	// ReplaceMatchedQ repoints every entry matched to from onto to, for the
	// redirect-fixing pass. Grounded on fix_redirected_items_batch.
	ReplaceMatchedQ(ctx context.Context, from, to int64) error
	// UnlinkMatchedQs clears q/user/timestamp on every entry matched to one
	// of qs, for the deleted/meta-item unlinking passes. Grounded on
	// unlink_item_matches.
	UnlinkMatchedQs(ctx context.Context, qs []int64) error
	// MaintenanceAutomatchCandidates finds unmatched Q5 (human) entries
	// whose ext_name is shared with some other entry already fully matched
	// to exactly one item. Grounded verbatim on storage_mysql.rs's
	// maintenance_automatch SQL; global across all catalogs, unlike every
	// other matcher query here.
	MaintenanceAutomatchCandidates(ctx context.Context) ([]MaintenanceAutomatchRow, error)
	// ApplyMaintenanceAutomatch sets entryID's match to qNumeric as
	// user=UserAuto, but only if entryID is still unmatched; unlike
	// SetMatch it does not consult AvoidAutoMatch, matching the original's
	// maintenance_automatch UPDATE, which has no such check.
	ApplyMaintenanceAutomatch(ctx context.Context, entryID, qNumeric int64) (bool, error)

	// WDRC reconciler (spec §4.7). Grounded on storage_mysql.rs's
	// maintenance_sync_redirects/maintenance_apply_deletions/
	// maintenance_get_prop2catalog_ids/maintenance_sync_property.

	// MaintenanceSyncRedirects applies old_q -> new_q for every pair in
	// redirects, one UPDATE per pair as the original does.
	MaintenanceSyncRedirects(ctx context.Context, redirects map[int64]int64) error
	// MaintenanceApplyDeletions unlinks every entry matched to one of qs and
	// returns the distinct catalog ids that had a match removed, so the
	// caller can trigger an overview refresh on each.
	MaintenanceApplyDeletions(ctx context.Context, qs []int64) (catalogIDs []int64, err error)
	// MaintenanceProp2CatalogIDs returns every active, directly-mappable
	// catalog's (id, WDProp) pair.
	MaintenanceProp2CatalogIDs(ctx context.Context) ([]PropCatalogRow, error)
	// MaintenanceSyncProperty returns every entry of one of catalogIDs whose
	// ext_id is one of extIDs, for the property-edit reconciliation pass to
	// compare against the KB's current property values.
	MaintenanceSyncProperty(ctx context.Context, catalogIDs []int64, extIDs []string) ([]SyncPropertyRow, error)
}

// AutomatchSearchRow is one candidate row for the by-search matcher:
// entry id, external name, KB type hint, pipe-joined aliases.
type AutomatchSearchRow struct {
	EntryID int64
	ExtName string
	Type    string
	Aliases string
}

// AutomatchSitelinkRow is one candidate row for the by-sitelink matcher.
type AutomatchSitelinkRow struct {
	EntryID int64
	ExtName string
}

// OtherCatalogMatchRow is one not-fully-matched entry of the target catalog
// together with the single item q that the fully-matched entries of the
// same (ext_name, type) in every OTHER catalog converge on. Grounded
// on automatch.rs's automatch_from_other_catalogs, which resolves this via
// a GROUP BY ext_name,type HAVING count(DISTINCT q)=1 join; here the join is
// folded into one correlated-subquery SQL statement instead of the
// original's two separate queries plus in-memory reconciliation.
type OtherCatalogMatchRow struct {
	EntryID int64
	MatchedQ int64
}

// TaxonRow is one candidate row for the taxon matcher.
type TaxonRow struct {
	EntryID   int64
	TaxonName string
	TypeName  string
}

// CoordinateRow is one candidate row for the coordinate matcher.
type CoordinateRow struct {
	EntryID int64
	ExtName string
	Type    string
	Lat     float64
	Lon     float64
}

// PersonDateRow is one candidate row for the person-date matcher.
type PersonDateRow struct {
	EntryID int64
	ExtName string
	Born    string
	Died    string
}

// AuxiliaryMatchRow is one candidate row for the aux->KB match direction.
type AuxiliaryMatchRow struct {
	RowID           int64
	EntryID         int64
	PropertyNumeric int64
	Value           string
}

// AuxiliaryWriteRow is one candidate row for the aux->KB write direction:
// an auxiliary value on an entry already confirmed matched to QNumeric.
type AuxiliaryWriteRow struct {
	RowID           int64
	EntryID         int64
	QNumeric        int64
	PropertyNumeric int64
	Value           string
}

// MaintenanceAutomatchRow is one unmatched-entry/unique-match-q candidate
// pair for maintenance_automatch.
type MaintenanceAutomatchRow struct {
	EntryID  int64
	QNumeric int64
}

// MicrosyncRow is one catalog entry, with its optional match state, used to
// build the ext_id->entry lookup map microsync diffs Wikidata values
// against. Grounded on microsync.rs's SmallEntry: QNumeric/UserID are nil
// for an entry with no match at all. Unlike every other matcher row type,
// this one is not pre-filtered by match state (spec §4.5.8's diff needs
// unmatched and partially-matched entries too, to find "found on Wikidata
// but not yet in Mix'n'match" cases).
type MicrosyncRow struct {
	EntryID  int64
	ExtID    string
	ExtURL   string
	QNumeric *int64
	UserID   *int
}

// MultipleQInCatalogRow is one item matched by more than one entry in a
// catalog, with the involved entries and their external ids.
type MultipleQInCatalogRow struct {
	QNumeric int64
	EntryIDs []int64
	ExtIDs   []string
}

// PropCatalogRow pairs a directly-mappable catalog with the KB property its
// external ids map onto, for WDRC's property-edit reconciliation pass.
type PropCatalogRow struct {
	CatalogID int64
	Property  int64
}

// SyncPropertyRow is one entry candidate for WDRC's property-edit
// reconciliation: UserID/QNumeric are nil for an entry with no match yet.
type SyncPropertyRow struct {
	EntryID  int64
	ExtID    string
	UserID   *int
	QNumeric *int64
}
