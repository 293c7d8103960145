package model

// Entry is a row in a catalog, uniquely keyed by (CatalogID, ExtID)
// (spec §3 Entry). Grounded on original_source/src/entry.rs's Entry struct;
// Q/User/Timestamp are kept as pointers so the all-or-nothing NULL
// invariant is representable directly in Go rather than through sentinel
// values.
type Entry struct {
	ID        int64
	CatalogID int64
	ExtID     string
	ExtURL    string
	ExtName   string
	ExtDesc   string
	Q         *int64 // positive=item id, 0=not applicable, -1=not on KB, nil=unmatched
	UserID    *int
	Timestamp *string
	Random    float64 // reservoir-sampling key, in [0,1)
	Type      *string // KB item id string, e.g. "Q5"
}

// IsUnmatched reports whether the entry has no candidate at all.
func (e *Entry) IsUnmatched() bool { return e.Q == nil }

// IsPartiallyMatched reports whether the entry is auto-matched (user=0) but
// not yet human/algorithm confirmed.
func (e *Entry) IsPartiallyMatched() bool { return e.UserID != nil && *e.UserID == UserAuto }

// IsFullyMatched reports whether the entry has a confirmed match.
func (e *Entry) IsFullyMatched() bool { return IsFullyMatched(e.Q, e.UserID) }

// CoordinateLocation is an entry's at-most-one location row.
type CoordinateLocation struct {
	Lat float64
	Lon float64
}

// PersonDates is an entry's at-most-one birth/death row. Born/Died are ISO
// date strings whose length encodes precision (4 = year, 7 = year-month,
// 10 = year-month-day), matching the original system's convention.
type PersonDates struct {
	Born      string
	Died      string
	IsMatched bool
}

// AuxiliaryRow is one arbitrary external identifier attached to an entry
// (spec §3 "auxiliary"). Grounded on original_source/src/entry.rs's
// AuxiliaryRow.
type AuxiliaryRow struct {
	RowID           int64
	PropertyNumeric int64
	Value           string
	InKB            bool
	EntryIsMatched  bool
}

// Alias is one (language, label) pair attached to an entry (set semantics).
type Alias struct {
	Language string
	Label    string
}

// Description is one (language, text) pair attached to an entry (language
// is unique per entry).
type Description struct {
	Language string
	Text     string
}

// MultiMatch is an entry's unresolved candidate list (spec §3
// "multi_match"); present only when the entry is not fully matched.
type MultiMatch struct {
	EntryID    int64
	CatalogID  int64
	Candidates []int64 // 1..10 candidate item ids
}

// MaxMultiMatchCandidates is the upper bound on multi-match candidate list
// size (spec §3, §8 boundary behaviors).
const MaxMultiMatchCandidates = 10

// Relation is a directed edge between two entries (spec §3 "mnm_relation").
type Relation struct {
	EntryID        int64
	Property       int64
	TargetEntryID  int64
}

// ExtendedEntry bundles an Entry with all of its child data, the unit
// produced by the autoscrape engine and (out of scope) the import pipeline
// and consumed by the upsert step (spec §4.5.11).
type ExtendedEntry struct {
	Entry       Entry
	Aliases     []Alias
	Descriptions []Description
	Aux         []AuxiliaryRow
	Dates       *PersonDates
	Location    *CoordinateLocation
}
