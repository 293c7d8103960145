package model

// IssueType enumerates the reconciliation problems a matcher may record
// when it cannot resolve a candidate automatically (spec §3 "issues",
// §7 error kinds). Grounded on original_source/src/issue.rs's IssueType.
type IssueType string

const (
	IssueWDDuplicate   IssueType = "WD_DUPLICATE"
	IssueMismatch      IssueType = "MISMATCH"
	IssueItemDeleted   IssueType = "ITEM_DELETED"
	IssueMismatchDates IssueType = "MISMATCH_DATES"
	IssueMultiple      IssueType = "MULTIPLE"
)

// IssueStatus is the lifecycle state of a recorded Issue. Grounded on
// original_source/src/issue.rs's IssueStatus.
type IssueStatus string

const (
	IssueStatusOpen               IssueStatus = "OPEN"
	IssueStatusDone               IssueStatus = "DONE"
	IssueStatusInactiveCatalog    IssueStatus = "INACTIVE_CATALOG"
	IssueStatusResolvedOnKB       IssueStatus = "RESOLVED_ON_WIKIDATA"
	IssueStatusJan01              IssueStatus = "JAN01"
)

// Issue is a deferred reconciliation problem attached to an entry.
type Issue struct {
	ID         int64
	EntryID    int64
	CatalogID  int64
	Type       IssueType
	JSON       string
	Status     IssueStatus
	UserID     *int64
	ResolvedTS *string
	Random     float64
}
