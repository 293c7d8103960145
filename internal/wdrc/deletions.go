package wdrc

import (
	"context"
	"sort"
	"strings"
)

// applyDeletions unlinks every match pointing at an item reported deleted
// since the last checkpoint, then refreshes the overview table of every
// catalog that had a match removed. Grounded on wdrc.rs's apply_deletions /
// get_deletions.
func (r *Reconciler) applyDeletions(ctx context.Context) error {
	lastTS, err := lastCheckpoint(ctx, r.Store, kvDeletions)
	if err != nil {
		return err
	}
	body, err := r.KB.FetchChangeFeed(ctx, "action=deletions&since="+lastTS)
	if err != nil {
		return err
	}
	events := ParseFeed(strings.NewReader(body))

	newTS := lastTS
	seen := make(map[int64]bool, len(events))
	var deletions []int64
	for _, e := range events {
		ts := e.Timestamp
		if ts == "" {
			ts = newTS
		}
		if newTS < ts {
			newTS = ts
		}
		item := itemToNumeric(e.Item)
		if item <= 0 || seen[item] {
			continue
		}
		seen[item] = true
		deletions = append(deletions, item)
	}
	sort.Slice(deletions, func(i, j int) bool { return deletions[i] < deletions[j] })

	if len(deletions) > 0 {
		catalogIDs, err := r.Store.MaintenanceApplyDeletions(ctx, deletions)
		if err != nil {
			return err
		}
		for _, catalogID := range catalogIDs {
			// Best-effort, matching wdrc.rs's `let _ = catalog.refresh_overview_table().await`.
			_ = r.Store.RefreshOverviewTable(ctx, catalogID)
		}
	}
	return r.Store.SetKV(ctx, kvDeletions, newTS)
}
