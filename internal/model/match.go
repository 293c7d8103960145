package model

// Special sentinel values for an entry's matched KB item (spec §6.5).
const (
	ItemNotApplicable int64 = 0  // "not applicable"
	ItemNotOnKB       int64 = -1 // "not on KB"
)

// MatchState is a bitfield describing which match conditions an entry query
// should accept, with a method to render the corresponding SQL fragment.
// Grounded on original_source/src/match_state.rs: the Rust struct is
// reproduced as a Go value type with the same three flags and the same
// rendered SQL shape, since several Storage queries need exactly this
// fragment.
type MatchState struct {
	Unmatched        bool // q IS NULL
	PartiallyMatched bool // q>0 AND user=0 (auto-matched, unconfirmed)
	FullyMatched     bool // q>0 AND user>0 (human- or algorithm-confirmed)
}

// Unmatched matches entries with no candidate at all.
func Unmatched() MatchState { return MatchState{Unmatched: true} }

// FullyMatchedState matches entries with a confirmed match.
func FullyMatchedState() MatchState { return MatchState{FullyMatched: true} }

// NotFullyMatched matches entries that are unmatched or only auto-matched;
// this is the predicate every automatic matcher filters its candidate set
// by before attempting a new match (spec §4.5 rule A).
func NotFullyMatched() MatchState { return MatchState{Unmatched: true, PartiallyMatched: true} }

// AnyMatched matches entries with any kind of match, confirmed or not.
func AnyMatched() MatchState { return MatchState{PartiallyMatched: true, FullyMatched: true} }

// SQLFragment renders the state as a standalone " AND (...)" clause, or the
// empty string if no flag is set. Column names match internal/storage/mysql's
// entry table (q, user).
func (m MatchState) SQLFragment() string {
	var parts []string
	if m.Unmatched {
		parts = append(parts, "(`q` IS NULL)")
	}
	if m.PartiallyMatched {
		parts = append(parts, "(`q`>0 AND `user`=0)")
	}
	if m.FullyMatched {
		parts = append(parts, "(`q`>0 AND `user`>0)")
	}
	if len(parts) == 0 {
		return ""
	}
	out := " AND ("
	for i, p := range parts {
		if i > 0 {
			out += " OR "
		}
		out += p
	}
	out += ") "
	return out
}

// IsFullyMatched reports whether the given (q, userID) pair, as stored on an
// Entry, represents a confirmed match (spec §3 Entry invariants).
func IsFullyMatched(q *int64, userID *int) bool {
	return q != nil && *q > 0 && userID != nil && *userID > 0
}
