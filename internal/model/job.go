package model

import "encoding/json"

// JobStatus is one of the eight lifecycle states a Job can be in (spec §3).
// Grounded on original_source/src/job_status.rs; DONE/FAILED/BLOCKED/
// DEACTIVATED were added there alongside the four the original job.rs
// defined, and this implementation keeps the full eight-value set.
type JobStatus string

const (
	StatusTodo          JobStatus = "TODO"
	StatusDone          JobStatus = "DONE"
	StatusFailed        JobStatus = "FAILED"
	StatusRunning       JobStatus = "RUNNING"
	StatusHighPriority  JobStatus = "HIGH_PRIORITY"
	StatusLowPriority   JobStatus = "LOW_PRIORITY"
	StatusBlocked       JobStatus = "BLOCKED"
	StatusDeactivated   JobStatus = "DEACTIVATED"
)

// ParseJobStatus parses the stored string form of a JobStatus, defaulting to
// StatusTodo for unrecognized input (mirrors JobStatus::new().unwrap_or(Todo)
// in the original Rust).
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case StatusTodo, StatusDone, StatusFailed, StatusRunning, StatusHighPriority,
		StatusLowPriority, StatusBlocked, StatusDeactivated:
		return JobStatus(s)
	default:
		return StatusTodo
	}
}

// TaskSize is an action's admission-policy weight class (spec §4.4, §6.2).
// Grounded on original_source/src/task_size.rs; ordered so the admission
// loop can compare sizes numerically.
type TaskSize uint8

const (
	Tiny TaskSize = iota + 1
	Small
	Medium
	Large
	Ginormous
)

// ParseTaskSize parses a lower-case task size name. Unrecognized names fall
// back to Medium. An action missing from the task-size table gets no size at
// all; internal/jobqueue's admission ladder admits such an action at its
// first rung.
func ParseTaskSize(s string) TaskSize {
	switch s {
	case "tiny":
		return Tiny
	case "small":
		return Small
	case "medium":
		return Medium
	case "large":
		return Large
	case "ginormous":
		return Ginormous
	default:
		return Medium
	}
}

// Action tags recognized by the job dispatcher (spec §6.1). Task sizes are
// the defaults from original_source/src/job.rs's TASK_SIZE table; an
// operator may override them via the seeded TOML config (internal/config).
const (
	ActionAutomatch                   = "automatch"
	ActionAutomatchBySearch           = "automatch_by_search"
	ActionAutomatchBySitelink         = "automatch_by_sitelink"
	ActionAutomatchFromOtherCatalogs  = "automatch_from_other_catalogs"
	ActionAutoscrape                  = "autoscrape"
	ActionAux2WD                      = "aux2wd"
	ActionAuxiliaryMatcher            = "auxiliary_matcher"
	ActionBespokeScraper              = "bespoke_scraper"
	ActionFixDisambig                 = "fix_disambig"
	ActionFixRedirectedItemsInCatalog = "fix_redirected_items_in_catalog"
	ActionGenerateAuxFromDescription  = "generate_aux_from_description"
	ActionImportAuxFromURL            = "import_aux_from_url"
	ActionMaintenanceAutomatch        = "maintenance_automatch"
	ActionMatchByCoordinates          = "match_by_coordinates"
	ActionMatchOnBirthdate            = "match_on_birthdate"
	ActionMatchPersonDates            = "match_person_dates"
	ActionMicrosync                   = "microsync"
	ActionPurgeAutomatches            = "purge_automatches"
	ActionTaxonMatcher                = "taxon_matcher"
	ActionUpdateDescriptionsFromURL   = "update_descriptions_from_url"
	ActionUpdateFromTabbedFile        = "update_from_tabbed_file"
	ActionUpdatePersonDates           = "update_person_dates"
)

// DefaultTaskSizes is the built-in action->size table, reproduced verbatim
// from original_source/src/job.rs's TASK_SIZE constant (values there are
// 1..5; mapped here onto the named TaskSize constants).
var DefaultTaskSizes = map[string]TaskSize{
	ActionAutomatch:                  Small,
	ActionAutomatchBySearch:          Small,
	ActionAutomatchBySitelink:        Small,
	ActionAutomatchFromOtherCatalogs: Small,
	ActionAutoscrape:                 Large,
	ActionAux2WD:                     Small,
	ActionAuxiliaryMatcher:           Small,
	ActionBespokeScraper:             Ginormous,
	ActionFixDisambig:                Tiny,
	ActionFixRedirectedItemsInCatalog: Tiny,
	ActionGenerateAuxFromDescription: Ginormous,
	ActionImportAuxFromURL:           Ginormous,
	ActionMaintenanceAutomatch:       Tiny,
	ActionMatchByCoordinates:         Ginormous,
	ActionMatchOnBirthdate:           Tiny,
	ActionMatchPersonDates:           Tiny,
	ActionMicrosync:                  Tiny,
	ActionPurgeAutomatches:           Tiny,
	ActionTaxonMatcher:               Small,
	ActionUpdateDescriptionsFromURL:  Ginormous,
	ActionUpdateFromTabbedFile:       Medium,
	ActionUpdatePersonDates:          Small,
}

// Job is a persistent work item (spec §3 Job).
type Job struct {
	ID             int64
	Action         string
	Catalog        int64 // 0 means catalog-less
	JSON           *string
	DependsOn      *int64
	Status         JobStatus
	LastTS         string
	Note           *string
	RepeatAfterSec *int
	NextTS         string
	UserID         int
}

// MaxNoteLength is the maximum length of a job's truncated error note
// (spec §4.1 "set_note truncated to 127 chars").
const MaxNoteLength = 127

// TruncateNote truncates s to MaxNoteLength, matching Storage.SetNote.
func TruncateNote(s string) string {
	if len(s) <= MaxNoteLength {
		return s
	}
	return s[:MaxNoteLength]
}

// Offset returns the checkpointed batch offset stored in the job's JSON
// scratch space, or 0 if absent (spec §4.5 matcher skeleton).
func (j *Job) Offset() int64 {
	if j.JSON == nil || *j.JSON == "" {
		return 0
	}
	var data struct {
		Offset int64 `json:"offset"`
	}
	if err := json.Unmarshal([]byte(*j.JSON), &data); err != nil {
		return 0
	}
	return data.Offset
}

// EncodeOffset renders {"offset": n} for checkpointing.
func EncodeOffset(offset int64) string {
	b, _ := json.Marshal(struct {
		Offset int64 `json:"offset"`
	}{Offset: offset})
	return string(b)
}
