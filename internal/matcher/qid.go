package matcher

import "strconv"

// parseQ parses a KB item id string ("Q42") into its numeric form. Entries
// and multi_match rows store the bare number (model.Entry.Q); kbclient
// returns item ids as "Q"-prefixed strings, so every matcher that calls into
// kbclient needs this conversion before calling Storage.SetMatch.
func parseQ(q string) (int64, bool) {
	if len(q) < 2 || (q[0] != 'Q' && q[0] != 'q') {
		return 0, false
	}
	n, err := strconv.ParseInt(q[1:], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseQs parses a slice of "Q"-prefixed ids, dropping any that don't parse.
func parseQs(qs []string) []int64 {
	out := make([]int64, 0, len(qs))
	for _, q := range qs {
		if n, ok := parseQ(q); ok {
			out = append(out, n)
		}
	}
	return out
}
