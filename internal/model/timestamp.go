// Package model holds the in-memory data model for catalogs, entries and
// jobs, together with the invariants every mutation must respect. It has no
// SQL and no network dependency: Storage and the matcher family build on
// top of these types.
package model

import "time"

// TimestampLayout is the 14-character UTC timestamp format used everywhere
// in storage and on the wire (spec §6.3). The source system mixed 4- and
// 14-char formats in different code paths; this implementation standardizes
// on 14 chars throughout.
const TimestampLayout = "20060102150405"

// Timestamp formats t as a 14-char UTC timestamp.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Now returns the current time formatted as a 14-char UTC timestamp.
func Now() string {
	return Timestamp(time.Now())
}

// ParseTimestamp parses a 14-char UTC timestamp produced by Timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}
