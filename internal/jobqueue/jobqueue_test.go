package jobqueue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/jobqueue"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/storagetest"
)

func newQueue(t *testing.T) (*jobqueue.Queue, *storagetest.Store) {
	t.Helper()
	store, err := storagetest.New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return jobqueue.New(store, nil), store
}

// TestJobPriorityScenario is spec §8 scenario 6: A(HIGH_PRIORITY, no dep),
// B(TODO, depends_on=A), C(TODO, no dep). The cascade returns A first, then
// B once A is DONE, then C once B is DONE.
func TestJobPriorityScenario(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)

	aID, err := store.QueueSimpleJob(ctx, 1, "job-a", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, aID, model.StatusHighPriority))

	bID, err := store.QueueSimpleJob(ctx, 1, "job-b", &aID)
	require.NoError(t, err)

	cID, err := store.QueueSimpleJob(ctx, 1, "job-c", nil)
	require.NoError(t, err)

	next, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, aID, next.ID)

	require.NoError(t, q.Run(ctx, next, func(ctx context.Context, job *model.Job) error { return nil }))

	next, err = q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, bID, next.ID)

	require.NoError(t, q.Run(ctx, next, func(ctx context.Context, job *model.Job) error { return nil }))

	next, err = q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, cID, next.ID)
}

// TestNextReturnsNilWhenNoJobRunnable covers the empty-queue case: every
// tier's GetNextJobID returns (0, nil), so Next must return (nil, nil) rather
// than an error.
func TestNextReturnsNilWhenNoJobRunnable(t *testing.T) {
	q, _ := newQueue(t)
	next, err := q.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

// TestQueueSimpleJobIdempotent covers spec §8: queue_simple_job(c,a,_) twice
// in any order leaves exactly one row in jobs with key (c,a).
func TestQueueSimpleJobIdempotent(t *testing.T) {
	ctx := context.Background()
	_, store := newQueue(t)

	firstID, err := store.QueueSimpleJob(ctx, 7, "microsync", nil)
	require.NoError(t, err)

	secondID, err := store.QueueSimpleJob(ctx, 7, "microsync", nil)
	require.NoError(t, err)

	assert.Equal(t, firstID, secondID)

	job, err := store.GetJob(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTodo, job.Status)
}

// TestRunFailedJobSetsNoteAndFailedStatus covers the job-fatal error path
// (spec §7): a job whose executor returns an error transitions to FAILED and
// carries a truncated note rather than propagating to the caller unannounced.
func TestRunFailedJobSetsNoteAndFailedStatus(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)

	id, err := store.QueueSimpleJob(ctx, 1, "automatch", nil)
	require.NoError(t, err)
	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)

	wantErr := errors.New("boom")
	runErr := q.Run(ctx, job, func(ctx context.Context, job *model.Job) error { return wantErr })
	assert.ErrorIs(t, runErr, wantErr)

	after, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, after.Status)
	require.NotNil(t, after.Note)
	assert.Equal(t, "boom", *after.Note)
}

// TestRunComputesNextTSFromRepeatAfterSec covers spec §8: a job whose
// repeat_after_sec=S and last_ts=T has next_ts = T + S after completion.
func TestRunComputesNextTSFromRepeatAfterSec(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)

	id, err := store.QueueSimpleJob(ctx, 1, "microsync", nil)
	require.NoError(t, err)

	lastTS := "20260101000000"
	require.NoError(t, store.SetJobStatus(ctx, id, model.StatusTodo))
	repeat := 3600
	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	job.LastTS = lastTS
	job.RepeatAfterSec = &repeat

	require.NoError(t, q.Run(ctx, job, func(ctx context.Context, job *model.Job) error { return nil }))

	after, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "20260101010000", after.NextTS)
}

// TestRecoverResetsRunningAndFailedJobs covers spec §4.4 startup recovery: an
// orderly restart reclaims interrupted work by moving RUNNING and FAILED
// jobs back to TODO, leaving BLOCKED/DEACTIVATED untouched.
func TestRecoverResetsRunningAndFailedJobs(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)

	runningID, err := store.QueueSimpleJob(ctx, 1, "running-job", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, runningID, model.StatusRunning))

	failedID, err := store.QueueSimpleJob(ctx, 1, "failed-job", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, failedID, model.StatusFailed))

	blockedID, err := store.QueueSimpleJob(ctx, 1, "blocked-job", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, blockedID, model.StatusBlocked))

	require.NoError(t, q.Recover(ctx))

	running, err := store.GetJob(ctx, runningID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTodo, running.Status)

	failed, err := store.GetJob(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTodo, failed.Status)

	blocked, err := store.GetJob(ctx, blockedID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, blocked.Status)
}

// TestAdmissionLadderSkipsGinormousUntilAnyTodoTier covers the task-size
// ladder direction decision in DESIGN.md: a lone Ginormous-sized TODO job is
// never picked by the admission-ladder tier, only by the tier-4 fallback.
func TestAdmissionLadderSkipsGinormousUntilAnyTodoTier(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)

	ginormousID, err := store.QueueSimpleJob(ctx, 1, model.ActionMatchByCoordinates, nil)
	require.NoError(t, err)

	next, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, ginormousID, next.ID)
}
