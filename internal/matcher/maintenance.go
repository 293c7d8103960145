package matcher

import (
	"context"
	"fmt"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// maintenanceBatchSize is the block size maintenance sweeps fetch distinct
// matched Wikidata items in; grounded verbatim on maintenance.rs's get_items
// (batch_size = 5000), much larger than DefaultBatchSize since each batch
// does one replica lookup rather than per-row KB calls.
const maintenanceBatchSize = 5000

// qItems renders numeric item ids as "Q"-prefixed strings for kbclient.
func qItems(qs []int64) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = fmt.Sprintf("Q%d", q)
	}
	return out
}

// runQBatches drives the checkpointed sweep every maintenance operation
// follows (spec §4.5.9): fetch a block of distinct matched q values in the
// given state, hand the whole block to handleBatch, and continue until a
// short block signals the catalog is exhausted. handleBatch errors are
// logged and swallowed, mirroring maintenance.rs's "Ignore error" comments
// on every *_batch call; only the fetch itself can abort the sweep.
func runQBatches(ctx context.Context, jc *JobContext, state model.MatchState, handleBatch func(ctx context.Context, qs []int64) error) error {
	offset := jc.Job.Offset()
	for {
		qs, err := jc.Store.DistinctMatchedQs(ctx, jc.Catalog.ID, state, offset, maintenanceBatchSize)
		if err != nil {
			return err
		}
		if len(qs) == 0 {
			return jc.checkpoint(ctx, offset, true)
		}
		offset += int64(len(qs))
		if err := handleBatch(ctx, qs); err != nil {
			jc.logger().Warn("maintenance batch failed, continuing", "error", err)
		}
		if int64(len(qs)) < maintenanceBatchSize {
			return jc.checkpoint(ctx, offset, true)
		}
		if err := jc.checkpoint(ctx, offset, false); err != nil {
			return err
		}
	}
}

// unlinkItemMatches clears q/user/timestamp for every entry matched to one
// of items. Grounded on maintenance.rs's unlink_item_matches.
func unlinkItemMatches(ctx context.Context, jc *JobContext, items []string) error {
	qs := parseQs(items)
	if len(qs) == 0 {
		return nil
	}
	return jc.Store.UnlinkMatchedQs(ctx, qs)
}

// fixRedirectedItemsBatch finds redirects among qs and repoints MixNMatch
// matches from redirect source to target. Grounded on maintenance.rs's
// fix_redirected_items_batch.
func fixRedirectedItemsBatch(ctx context.Context, jc *JobContext, qs []int64) error {
	redirects, err := jc.KB.GetRedirectedItems(ctx, qItems(qs))
	if err != nil {
		return err
	}
	for from, to := range redirects {
		fromQ, ok1 := parseQ(from)
		toQ, ok2 := parseQ(to)
		if !ok1 || !ok2 || fromQ <= 0 || toQ <= 0 {
			continue
		}
		if err := jc.Store.ReplaceMatchedQ(ctx, fromQ, toQ); err != nil {
			return err
		}
	}
	return nil
}

// unlinkDeletedItemsBatch finds which qs no longer exist as a page on the KB
// wiki and unlinks matches to them. Grounded on maintenance.rs's
// unlink_deleted_items_batch.
func unlinkDeletedItemsBatch(ctx context.Context, jc *JobContext, qs []int64) error {
	deleted, err := jc.KB.GetDeletedItems(ctx, qItems(qs))
	if err != nil {
		return err
	}
	return unlinkItemMatches(ctx, jc, deleted)
}

// unlinkMetaItemsBatch finds which qs link to a standard meta item
// (disambiguation page, template, category, etc) and unlinks matches to
// them. Grounded on maintenance.rs's unlink_meta_items_batch.
func unlinkMetaItemsBatch(ctx context.Context, jc *JobContext, qs []int64) error {
	metaItems, err := jc.KB.GetMetaItems(ctx, qItems(qs))
	if err != nil {
		return err
	}
	return unlinkItemMatches(ctx, jc, metaItems)
}

// FixRedirects repoints matches pointing at Wikidata redirects to their
// targets, for every matched q in state. Exported so microsync (spec
// §4.5.8) can call it directly, not just through the job dispatcher.
// Grounded on maintenance.rs's fix_redirects.
func FixRedirects(ctx context.Context, jc *JobContext, state model.MatchState) error {
	return runQBatches(ctx, jc, state, func(ctx context.Context, qs []int64) error {
		return fixRedirectedItemsBatch(ctx, jc, qs)
	})
}

// UnlinkMetaItems unlinks matches pointing at meta items (disambiguation
// pages, etc), for every matched q in state. Grounded on maintenance.rs's
// unlink_meta_items.
func UnlinkMetaItems(ctx context.Context, jc *JobContext, state model.MatchState) error {
	return runQBatches(ctx, jc, state, func(ctx context.Context, qs []int64) error {
		return unlinkMetaItemsBatch(ctx, jc, qs)
	})
}

// UnlinkDeletedItems unlinks matches pointing at items deleted from the KB,
// for every matched q in state. Grounded on maintenance.rs's
// unlink_deleted_items.
func UnlinkDeletedItems(ctx context.Context, jc *JobContext, state model.MatchState) error {
	return runQBatches(ctx, jc, state, func(ctx context.Context, qs []int64) error {
		return unlinkDeletedItemsBatch(ctx, jc, qs)
	})
}

// FixMatchedItems runs all three sweeps over a single batching pass, more
// efficient than calling them individually since each block of qs only
// needs fetching once. Grounded on maintenance.rs's fix_matched_items.
func FixMatchedItems(ctx context.Context, jc *JobContext, state model.MatchState) error {
	return runQBatches(ctx, jc, state, func(ctx context.Context, qs []int64) error {
		if err := fixRedirectedItemsBatch(ctx, jc, qs); err != nil {
			jc.logger().Warn("fix redirected items batch failed", "error", err)
		}
		if err := unlinkDeletedItemsBatch(ctx, jc, qs); err != nil {
			jc.logger().Warn("unlink deleted items batch failed", "error", err)
		}
		if err := unlinkMetaItemsBatch(ctx, jc, qs); err != nil {
			jc.logger().Warn("unlink meta items batch failed", "error", err)
		}
		return nil
	})
}

// FixRedirectedItemsInCatalog is the ActionFixRedirectedItemsInCatalog
// Matcher. Grounded on job.rs's "fix_redirected_items_in_catalog" dispatch
// arm, which runs fix_redirects over any_matched entries.
type FixRedirectedItemsInCatalog struct{}

func (FixRedirectedItemsInCatalog) Run(ctx context.Context, jc *JobContext) error {
	return FixRedirects(ctx, jc, model.AnyMatched())
}

// FixDisambig is the ActionFixDisambig Matcher. Grounded on job.rs's
// "fix_disambig" dispatch arm, which runs unlink_meta_items over
// any_matched entries.
type FixDisambig struct{}

func (FixDisambig) Run(ctx context.Context, jc *JobContext) error {
	return UnlinkMetaItems(ctx, jc, model.AnyMatched())
}

// MaintenanceAutomatch is the ActionMaintenanceAutomatch Matcher. Unlike
// every other matcher it is global: it ignores jc.Catalog.ID entirely,
// exactly like the original's maintenance_automatch, which accepts no
// catalog scope at all. It links unmatched Q5 entries whose ext_name
// matches another Q5 entry that is uniquely, fully matched elsewhere, and
// deliberately bypasses AvoidAutoMatch, matching storage_mysql.rs's
// maintenance_automatch exactly. A single pass of up to 500 candidates, not
// a checkpointed sweep, since the original runs it the same way.
type MaintenanceAutomatch struct{}

func (MaintenanceAutomatch) Run(ctx context.Context, jc *JobContext) error {
	candidates, err := jc.Store.MaintenanceAutomatchCandidates(ctx)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if _, err := jc.Store.ApplyMaintenanceAutomatch(ctx, c.EntryID, c.QNumeric); err != nil {
			return err
		}
	}
	return nil
}
