// Package jobqueue implements the six-tier job-selection cascade and the
// run-a-job lifecycle on top of storage.Storage (spec §4.4). Grounded on
// original_source/src/job.rs's get_next_job_id / run / set_status /
// update_next_ts.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// Queue wraps a storage.Storage with the job-selection and lifecycle logic.
type Queue struct {
	store     storage.Storage
	taskSizes map[string]model.TaskSize
}

// New builds a Queue. taskSizes overrides model.DefaultTaskSizes; pass nil
// to use the defaults unmodified.
func New(store storage.Storage, taskSizes map[string]model.TaskSize) *Queue {
	if taskSizes == nil {
		taskSizes = model.DefaultTaskSizes
	}
	return &Queue{store: store, taskSizes: taskSizes}
}

// Next runs the six-tier cascade from job.rs::get_next_job_id and returns
// the chosen job, or nil if no job is currently runnable.
func (q *Queue) Next(ctx context.Context) (*model.Job, error) {
	id, err := q.nextID(ctx)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	return q.store.GetJob(ctx, id)
}

func (q *Queue) nextID(ctx context.Context) (int64, error) {
	// Tier 1: HIGH_PRIORITY, no dependency.
	if id, err := q.store.GetNextJobID(ctx, storage.JobSelector{
		Status:             model.StatusHighPriority,
		RequireNoDependsOn: true,
	}); err != nil {
		return 0, fmt.Errorf("next job: high priority tier: %w", err)
	} else if id != 0 {
		return id, nil
	}

	// Tier 2: TODO depending on a DONE job.
	if id, err := q.store.GetNextJobID(ctx, storage.JobSelector{
		Status:          model.StatusTodo,
		DependsOnDone:   true,
		DependsOnStatus: model.StatusDone,
	}); err != nil {
		return 0, fmt.Errorf("next job: dependent tier: %w", err)
	} else if id != 0 {
		return id, nil
	}

	// Tier 3: task-size admission ladder. Grounded verbatim on
	// job.rs::get_next_job_id's `tasks.retain(|v| v.1>level)` loop: at
	// level L the excluded set is every action whose size is strictly
	// greater than L, so the admitted (non-excluded) set is every action
	// with size <= L, plus any action tag missing from the task-size table.
	// Level starts at 0 (excludes every action in the table, so only such
	// missing tags are admitted at that rung) and climbs to Ginormous-1,
	// admitting Tiny first, then
	// Tiny+Small, and so on up through Large; Ginormous is never admitted
	// by this tier and falls through to tier 4 instead. Because each rung
	// only widens the admitted set, the smallest waiting job sizes are
	// always picked first within this tier.
	for level := 0; level < int(model.Ginormous); level++ {
		avoid := q.actionsAbove(level)
		if len(avoid) == 0 {
			continue
		}
		id, err := q.store.GetNextJobID(ctx, storage.JobSelector{
			Status:             model.StatusTodo,
			RequireNoDependsOn: true,
			ExcludeActions:     avoid,
		})
		if err != nil {
			return 0, fmt.Errorf("next job: admission tier (level %d): %w", level, err)
		}
		if id != 0 {
			return id, nil
		}
	}

	// Tier 4: any TODO job, no dependency.
	if id, err := q.store.GetNextJobID(ctx, storage.JobSelector{
		Status:             model.StatusTodo,
		RequireNoDependsOn: true,
	}); err != nil {
		return 0, fmt.Errorf("next job: initial tier: %w", err)
	} else if id != 0 {
		return id, nil
	}

	// Tier 5: LOW_PRIORITY, no dependency.
	if id, err := q.store.GetNextJobID(ctx, storage.JobSelector{
		Status:             model.StatusLowPriority,
		RequireNoDependsOn: true,
	}); err != nil {
		return 0, fmt.Errorf("next job: low priority tier: %w", err)
	} else if id != 0 {
		return id, nil
	}

	// Tier 6: DONE jobs whose next_ts has arrived (scheduled repeats).
	id, err := q.store.GetNextJobID(ctx, storage.JobSelector{
		Status:       model.StatusDone,
		NextTSBefore: model.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("next job: scheduled tier: %w", err)
	}
	return id, nil
}

// actionsAbove returns every known action whose task size is strictly
// greater than level: the set job.rs's admission ladder excludes at this
// rung.
func (q *Queue) actionsAbove(level int) []string {
	var out []string
	for action, size := range q.taskSizes {
		if int(size) > level {
			out = append(out, action)
		}
	}
	return out
}

// Runner dispatches a job's action to an executor function.
type Runner func(ctx context.Context, job *model.Job) error

// Run executes one job end to end: mark RUNNING, dispatch, mark DONE or
// FAILED with a truncated note, then recompute and persist next_ts (spec
// §4.4 "Running a job").
func (q *Queue) Run(ctx context.Context, job *model.Job, exec Runner) error {
	if err := q.store.SetJobStatus(ctx, job.ID, model.StatusRunning); err != nil {
		return fmt.Errorf("run job %d: mark running: %w", job.ID, err)
	}

	runErr := exec(ctx, job)

	if runErr == nil {
		if err := q.store.SetJobStatus(ctx, job.ID, model.StatusDone); err != nil {
			return fmt.Errorf("run job %d: mark done: %w", job.ID, err)
		}
	} else {
		if err := q.store.SetJobStatus(ctx, job.ID, model.StatusFailed); err != nil {
			return fmt.Errorf("run job %d: mark failed: %w", job.ID, err)
		}
		if err := q.store.SetJobNote(ctx, job.ID, runErr.Error()); err != nil {
			return fmt.Errorf("run job %d: set note: %w", job.ID, err)
		}
	}

	if err := q.updateNextTS(ctx, job); err != nil {
		return fmt.Errorf("run job %d: update next_ts: %w", job.ID, err)
	}
	return runErr
}

// updateNextTS computes last_ts + repeat_after_sec when a repeat interval
// is configured, else clears next_ts, mirroring job.rs's get_next_ts/
// update_next_ts.
func (q *Queue) updateNextTS(ctx context.Context, job *model.Job) error {
	if job.RepeatAfterSec == nil {
		return q.store.UpdateJobNextTS(ctx, job.ID, "")
	}
	last, err := model.ParseTimestamp(job.LastTS)
	if err != nil {
		return fmt.Errorf("parse last_ts: %w", err)
	}
	next := last.Add(time.Duration(*job.RepeatAfterSec) * time.Second)
	return q.store.UpdateJobNextTS(ctx, job.ID, model.Timestamp(next))
}

// QueueSimpleJob upserts a follow-up job by (catalog, action), used by
// matchers to chain work (spec §4.4 queue_simple_job).
func (q *Queue) QueueSimpleJob(ctx context.Context, catalogID int64, action string, dependsOn *int64) (int64, error) {
	return q.store.QueueSimpleJob(ctx, catalogID, action, dependsOn)
}

// Recover resets RUNNING and FAILED jobs back to TODO at startup so an
// orderly restart reclaims interrupted work (spec §4.4 "Startup recovery").
// BLOCKED/DEACTIVATED jobs are left untouched.
func (q *Queue) Recover(ctx context.Context) error {
	if err := q.store.ResetRunningJobs(ctx); err != nil {
		return fmt.Errorf("recover: reset running jobs: %w", err)
	}
	if err := q.store.ResetFailedJobs(ctx); err != nil {
		return fmt.Errorf("recover: reset failed jobs: %w", err)
	}
	return nil
}

// ErrNoJob is returned by callers that require a job but found none ready.
var ErrNoJob = errors.New("no runnable job")
