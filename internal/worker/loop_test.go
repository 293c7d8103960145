package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/mixnmatch-go/internal/jobqueue"
	"github.com/magnusmanske/mixnmatch-go/internal/matcher"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage/storagetest"
)

const testAction = "test_action"

type fakeMatcher struct {
	ran      *bool
	gotCat   *int64
	returns  error
}

func (f fakeMatcher) Run(ctx context.Context, jc *matcher.JobContext) error {
	if f.ran != nil {
		*f.ran = true
	}
	if f.gotCat != nil {
		*f.gotCat = jc.Catalog.ID
	}
	return f.returns
}

func newTestWorker(t *testing.T, registry map[string]matcher.Matcher) (*Worker, *storagetest.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := storagetest.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := jobqueue.New(store, nil)
	w := &Worker{Queue: q, Store: store, Registry: registry}
	return w, store
}

func TestDispatchUnknownActionFails(t *testing.T) {
	w, store := newTestWorker(t, map[string]matcher.Matcher{})
	w.init()
	ctx := context.Background()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	job := &model.Job{Action: "nonexistent", Catalog: catalogID}

	err = w.dispatch(ctx, job)
	require.Error(t, err)
}

func TestDispatchRunsRegisteredMatcherWithResolvedCatalog(t *testing.T) {
	var ran bool
	var gotCat int64
	w, store := newTestWorker(t, map[string]matcher.Matcher{
		testAction: fakeMatcher{ran: &ran, gotCat: &gotCat},
	})
	w.init()
	ctx := context.Background()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	job := &model.Job{Action: testAction, Catalog: catalogID}

	require.NoError(t, w.dispatch(ctx, job))
	assert.True(t, ran)
	assert.Equal(t, catalogID, gotCat)
}

func TestDispatchMicrosyncNoActiveCatalogIsNoop(t *testing.T) {
	var ran bool
	w, _ := newTestWorker(t, map[string]matcher.Matcher{
		model.ActionMicrosync: fakeMatcher{ran: &ran},
	})
	w.init()
	ctx := context.Background()

	job := &model.Job{Action: model.ActionMicrosync, Catalog: 0}
	require.NoError(t, w.dispatch(ctx, job))
	assert.False(t, ran, "matcher must not run when no catalog can be resolved")
}

func TestDispatchMicrosyncResolvesRandomCatalog(t *testing.T) {
	wd := int64(214)
	var gotCat int64
	w, store := newTestWorker(t, map[string]matcher.Matcher{
		model.ActionMicrosync: fakeMatcher{gotCat: &gotCat},
	})
	w.init()
	ctx := context.Background()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true, WDProp: &wd})
	require.NoError(t, err)

	job := &model.Job{Action: model.ActionMicrosync, Catalog: 0}
	require.NoError(t, w.dispatch(ctx, job))
	assert.Equal(t, catalogID, gotCat)
}

func TestDispatchPropagatesMatcherError(t *testing.T) {
	wantErr := errors.New("boom")
	w, store := newTestWorker(t, map[string]matcher.Matcher{
		testAction: fakeMatcher{returns: wantErr},
	})
	w.init()
	ctx := context.Background()

	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	job := &model.Job{Action: testAction, Catalog: catalogID}

	err = w.dispatch(ctx, job)
	require.ErrorIs(t, err, wantErr)
}

func TestRunProcessesQueuedJobThenStopsOnCancel(t *testing.T) {
	var ran bool
	w, store := newTestWorker(t, map[string]matcher.Matcher{
		testAction: fakeMatcher{ran: &ran},
	})
	w.Config.PollInterval = 10 * time.Millisecond

	ctx := context.Background()
	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	_, err = store.QueueSimpleJob(ctx, catalogID, testAction, nil)
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err = w.Run(runCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, ran, "queued job must have been picked up and run before the context deadline")
}

func TestShouldExitRequiresFullConcurrencyAndStaleProgress(t *testing.T) {
	w := &Worker{}
	w.cfg = Config{MaxConcurrent: 2, WatchdogThreshold: time.Minute}
	now := time.Now()
	w.lastTick.Store(now.Add(-2 * time.Minute).UnixNano())

	w.running.Store(1)
	assert.False(t, w.shouldExit(now), "must not exit when a concurrency slot is free")

	w.running.Store(2)
	assert.True(t, w.shouldExit(now), "must exit when full and stale")

	w.lastTick.Store(now.UnixNano())
	assert.False(t, w.shouldExit(now), "must not exit right after a fresh tick")
}

func TestRecoverRunsBeforePolling(t *testing.T) {
	w, store := newTestWorker(t, map[string]matcher.Matcher{})
	w.Config.PollInterval = 10 * time.Millisecond

	ctx := context.Background()
	catalogID, err := store.InsertCatalog(ctx, model.Catalog{Active: true})
	require.NoError(t, err)
	jobID, err := store.QueueSimpleJob(ctx, catalogID, testAction, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetJobStatus(ctx, jobID, model.StatusRunning))

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_ = w.Run(runCtx)

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.NotEqual(t, model.StatusRunning, job.Status, "a RUNNING job orphaned from a prior crash must be reset on startup")
}
