// Package worker implements the long-running job-dispatch loop (spec §4.6):
// a fixed-concurrency pool that pulls jobs from internal/jobqueue, resolves
// each job's action to a internal/matcher.Matcher, and periodically runs the
// internal/wdrc reconciler. A "seppuku" watchdog exits the process if no job
// has ticked within a threshold while every slot is occupied, trusting a
// supervisor to restart it. Grounded on spec §4.6/§5's literal pseudocode;
// original_source's main.rs (which would drive this loop in the original)
// was not present in the retrieved pack, so there is no teacher file to
// follow line-for-line here (see DESIGN.md).
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/magnusmanske/mixnmatch-go/internal/jobqueue"
	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/matcher"
	"github.com/magnusmanske/mixnmatch-go/internal/metrics"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
	"github.com/magnusmanske/mixnmatch-go/internal/wdrc"
)

// Defaults for Config's zero-valued fields. max_concurrent is "a small
// constant (3-5)" per spec §4.6; 4 splits the difference.
const (
	DefaultMaxConcurrent     = 4
	DefaultPollInterval      = 5 * time.Second
	DefaultWatchdogInterval  = 30 * time.Second
	DefaultWatchdogThreshold = 10 * time.Minute
	DefaultReconcileInterval = time.Hour
)

// Config tunes Worker's concurrency, polling, watchdog, and reconciler
// cadence. A zero Config is valid; every field falls back to its Default*
// constant.
type Config struct {
	MaxConcurrent     int
	PollInterval      time.Duration
	WatchdogInterval  time.Duration
	WatchdogThreshold time.Duration
	ReconcileInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = DefaultWatchdogInterval
	}
	if c.WatchdogThreshold <= 0 {
		c.WatchdogThreshold = DefaultWatchdogThreshold
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = DefaultReconcileInterval
	}
	return c
}

// Worker owns one polling loop. Construct it with exported fields set
// directly (Registry defaults to DefaultRegistry() if nil, Reconciler is
// optional: a nil Reconciler simply skips the periodic WDRC sweep), then
// call Run.
type Worker struct {
	Queue      *jobqueue.Queue
	Store      storage.Storage
	KB         *kbclient.Client
	Registry   map[string]matcher.Matcher
	Reconciler *wdrc.Reconciler
	Log        *slog.Logger
	Config     Config

	cfg      Config
	sem      *semaphore.Weighted
	running  atomic.Int64
	lastTick atomic.Int64 // UnixNano of the last job completion or Run start
	wg       sync.WaitGroup

	// exit is os.Exit by default; tests override it to observe the seppuku
	// decision without killing the test process.
	exit func(code int)
}

func (w *Worker) log() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}

func (w *Worker) init() {
	w.cfg = w.Config.withDefaults()
	if w.Registry == nil {
		w.Registry = DefaultRegistry()
	}
	w.sem = semaphore.NewWeighted(int64(w.cfg.MaxConcurrent))
	w.lastTick.Store(time.Now().UnixNano())
	if w.exit == nil {
		w.exit = os.Exit
	}
}

// Run resets orphaned jobs, then polls forever per spec §4.6's pseudocode
// until ctx is cancelled. It blocks until every in-flight job finishes.
func (w *Worker) Run(ctx context.Context) error {
	w.init()

	if err := w.Queue.Recover(ctx); err != nil {
		return fmt.Errorf("worker: startup recovery: %w", err)
	}

	go w.watchdog(ctx)
	if w.Reconciler != nil {
		go w.reconcileLoop(ctx)
	}

	w.pollLoop(ctx)
	w.wg.Wait()
	return ctx.Err()
}

// pollLoop is the literal translation of spec §4.6's pseudocode: acquire a
// concurrency slot, fetch the next eligible job, and spawn it; sleep and
// retry whenever either step finds nothing to do.
func (w *Worker) pollLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !w.sem.TryAcquire(1) {
			if sleepOrDone(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		job, err := w.Queue.Next(ctx)
		if err != nil {
			w.sem.Release(1)
			w.log().Error("worker: get next job", "error", err)
			if sleepOrDone(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}
		if job == nil {
			w.sem.Release(1)
			if sleepOrDone(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		w.running.Add(1)
		metrics.RunningJobs.Inc()
		w.wg.Add(1)
		go func(job *model.Job) {
			defer w.wg.Done()
			defer w.sem.Release(1)
			defer w.running.Add(-1)
			defer metrics.RunningJobs.Dec()
			defer w.lastTick.Store(time.Now().UnixNano())

			start := time.Now()
			err := w.Queue.Run(ctx, job, w.dispatch)
			metrics.JobDuration.WithLabelValues(job.Action).Observe(time.Since(start).Seconds())
			status := "done"
			if err != nil {
				status = "failed"
				w.log().Warn("worker: job failed", "job_id", job.ID, "action", job.Action, "error", err)
			}
			metrics.JobsTotal.WithLabelValues(job.Action, status).Inc()
		}(job)
	}
}

// sleepOrDone sleeps for d, returning true early if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

// dispatch resolves job's action to a Matcher and runs it. A job with
// catalog_id==0 for the microsync action resolves a random active,
// directly-mappable catalog first (job.rs lines 437-450); if none exists the
// job is a silent no-op rather than an error. Every other catalog-less
// action (e.g. maintenance_automatch) is global and runs with a zero-value
// Catalog, which its Matcher ignores.
func (w *Worker) dispatch(ctx context.Context, job *model.Job) error {
	m, ok := w.Registry[job.Action]
	if !ok {
		return fmt.Errorf("worker: no matcher registered for action %q", job.Action)
	}

	catalogID := job.Catalog
	if job.Action == model.ActionMicrosync && catalogID == 0 {
		resolved, ok, err := w.Store.RandomActiveCatalogIDWithProperty(ctx)
		if err != nil {
			return fmt.Errorf("resolve microsync catalog: %w", err)
		}
		if !ok {
			return nil
		}
		catalogID = resolved
	}

	var catalog model.Catalog
	if catalogID != 0 {
		c, err := w.Store.GetCatalog(ctx, catalogID)
		if err != nil {
			return fmt.Errorf("get catalog %d: %w", catalogID, err)
		}
		catalog = *c
	}

	return m.Run(ctx, &matcher.JobContext{
		Job:     job,
		Catalog: catalog,
		Store:   w.Store,
		KB:      w.KB,
		Log:     w.log(),
	})
}

// reconcileLoop runs the WDRC reconciler on a fixed interval. The original
// has no job-dispatch entry for wdrc either (main.rs calls it directly on a
// timer; see internal/wdrc's package doc), so this loop, not the job queue,
// owns its schedule.
func (w *Worker) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Reconciler.Sync(ctx); err != nil {
				w.log().Error("worker: wdrc sync failed", "error", err)
			}
		}
	}
}

// watchdog periodically checks whether the worker is stuck: every slot
// occupied with no job having completed within WatchdogThreshold. On that
// condition it exits the process (spec §4.6/§5's "seppuku" watchdog),
// trusting an external supervisor to restart it into a clean state.
func (w *Worker) watchdog(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.shouldExit(time.Now()) {
				w.log().Error("worker: seppuku, no job progress within threshold", "threshold", w.cfg.WatchdogThreshold)
				w.exit(1)
				return
			}
		}
	}
}

// shouldExit is watchdog's decision in isolation, so tests can drive it
// without an actual os.Exit call.
func (w *Worker) shouldExit(now time.Time) bool {
	if w.running.Load() < int64(w.cfg.MaxConcurrent) {
		return false
	}
	last := time.Unix(0, w.lastTick.Load())
	return now.Sub(last) >= w.cfg.WatchdogThreshold
}
