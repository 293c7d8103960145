// Package matcher implements the reconciliation engine's matcher family
// (spec §4.5): one Matcher per action tag, each consuming entries from a
// catalog in checkpointed batches and proposing or confirming matches
// against the KB. Grounded on original_source/src/{automatch,
// auxiliary_matcher,coordinate_matcher,taxon_matcher,person,microsync,
// maintenance,extended_entry}.rs, adapted from the original's async-fn
// batch loops to a shared RunBatches helper so the offset-checkpointing
// skeleton (spec §4.5) is written once rather than once per matcher.
package matcher

import (
	"context"
	"log/slog"

	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// DefaultBatchSize is how many candidate rows a matcher loads per round
// trip; grounded on the original's BATCH_SIZE-style constants (automatch.rs
// et al. all batch in the low hundreds).
const DefaultBatchSize = 500

// Matcher is anything the job dispatcher can run for one action tag.
type Matcher interface {
	Run(ctx context.Context, jc *JobContext) error
}

// JobContext bundles everything a matcher needs: the job being run (for
// checkpointing), the catalog it targets, and the Storage/kbclient handles.
// Grounded on the original's per-matcher struct (e.g. AutoMatch holding an
// AppState reference); here it is one small struct threaded explicitly
// instead of a global.
type JobContext struct {
	Job     *model.Job
	Catalog model.Catalog
	Store   storage.Storage
	KB      *kbclient.Client
	Log     *slog.Logger

	// BatchSize overrides DefaultBatchSize; zero means use the default.
	BatchSize int64
}

func (jc *JobContext) batchSize() int64 {
	if jc.BatchSize > 0 {
		return jc.BatchSize
	}
	return DefaultBatchSize
}

func (jc *JobContext) logger() *slog.Logger {
	if jc.Log != nil {
		return jc.Log
	}
	return slog.Default()
}

// checkpoint persists the current offset to the job's JSON scratch space,
// or clears it when done is true (spec §4.5 matcher skeleton).
func (jc *JobContext) checkpoint(ctx context.Context, offset int64, done bool) error {
	if done {
		return jc.Store.SetJobJSON(ctx, jc.Job.ID, nil)
	}
	encoded := model.EncodeOffset(offset)
	return jc.Store.SetJobJSON(ctx, jc.Job.ID, &encoded)
}

// RunBatches drives the shared checkpointed-batch skeleton every matcher
// in spec §4.5 follows: load a batch at the current offset, process every
// row, checkpoint, and continue until a short batch signals completion.
// fetch must return fewer than batchSize rows exactly when it has reached
// the end of the candidate set (mirrors every EntriesFor*Matcher query,
// which is a plain LIMIT/OFFSET scan).
func RunBatches[T any](
	ctx context.Context,
	jc *JobContext,
	fetch func(ctx context.Context, offset, batchSize int64) ([]T, error),
	process func(ctx context.Context, row T) error,
) error {
	offset := jc.Job.Offset()
	batchSize := jc.batchSize()
	for {
		rows, err := fetch(ctx, offset, batchSize)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := process(ctx, row); err != nil {
				jc.logger().Warn("matcher row failed, skipping", "error", err)
			}
		}
		offset += int64(len(rows))
		if int64(len(rows)) < batchSize {
			return jc.checkpoint(ctx, offset, true)
		}
		if err := jc.checkpoint(ctx, offset, false); err != nil {
			return err
		}
	}
}
