package wdrc

import (
	"context"
	"strings"
)

// syncRedirects applies every redirect reported since the last checkpoint,
// repointing matched entries from the redirect source to its target.
// Grounded on wdrc.rs's sync_redirects.
func (r *Reconciler) syncRedirects(ctx context.Context) error {
	lastTS, err := lastCheckpoint(ctx, r.Store, kvRedirects)
	if err != nil {
		return err
	}
	body, err := r.KB.FetchChangeFeed(ctx, "action=redirects&since="+lastTS)
	if err != nil {
		return err
	}
	events := ParseFeed(strings.NewReader(body))

	redirects := make(map[int64]int64, len(events))
	newTS := lastTS
	for _, e := range events {
		from := itemToNumeric(e.Item)
		to := itemToNumeric(e.Target)
		ts := e.Timestamp
		if ts == "" {
			ts = newTS
		}
		redirects[from] = to
		if newTS < ts {
			newTS = ts
		}
	}
	redirects = filterRedirects(redirects)

	if len(redirects) > 0 {
		if err := r.Store.MaintenanceSyncRedirects(ctx, redirects); err != nil {
			return err
		}
	}
	return r.Store.SetKV(ctx, kvRedirects, newTS)
}

// filterRedirects drops non-positive or self-pointing pairs. Grounded
// verbatim on wdrc.rs's "// Paranoia" retain call.
func filterRedirects(redirects map[int64]int64) map[int64]int64 {
	out := make(map[int64]int64, len(redirects))
	for from, to := range redirects {
		if from > 0 && to > 0 && from != to {
			out[from] = to
		}
	}
	return out
}
