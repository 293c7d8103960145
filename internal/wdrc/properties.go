package wdrc

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/magnusmanske/mixnmatch-go/internal/kbclient"
	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// syncProperties reconciles property-backed catalogs against items the KB
// replica recorded as touched since the last checkpoint. Grounded on
// wdrc.rs's sync_properties.
func (r *Reconciler) syncProperties(ctx context.Context) error {
	lastTS, err := lastCheckpoint(ctx, r.Store, kvProperties)
	if err != nil {
		return err
	}

	catalogsByProperty, properties, err := r.prop2CatalogIDs(ctx)
	if err != nil {
		return err
	}
	if len(properties) == 0 {
		return nil
	}

	results, err := r.KB.GetItemPropertyTimestamps(ctx, properties, lastTS)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	newTS := lastTS
	for _, res := range results {
		if res.Timestamp > newTS {
			newTS = res.Timestamp
		}
	}

	batchSize := r.batchSize()
	for i := 0; i < len(results); i += batchSize {
		end := i + batchSize
		if end > len(results) {
			end = len(results)
		}
		chunk := results[i:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, property := range distinctProperties(chunk) {
			property := property
			g.Go(func() error {
				return r.syncProperty(gctx, property, chunk, catalogsByProperty[property])
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return r.Store.SetKV(ctx, kvProperties, newTS)
}

// prop2CatalogIDs groups MaintenanceProp2CatalogIDs by property.
func (r *Reconciler) prop2CatalogIDs(ctx context.Context) (map[int64][]int64, []int64, error) {
	rows, err := r.Store.MaintenanceProp2CatalogIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	byProperty := make(map[int64][]int64)
	var properties []int64
	seen := make(map[int64]bool)
	for _, row := range rows {
		byProperty[row.Property] = append(byProperty[row.Property], row.CatalogID)
		if !seen[row.Property] {
			seen[row.Property] = true
			properties = append(properties, row.Property)
		}
	}
	return byProperty, properties, nil
}

func distinctProperties(results []kbclient.ItemPropertyTimestamp) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, r := range results {
		if !seen[r.Property] {
			seen[r.Property] = true
			out = append(out, r.Property)
		}
	}
	return out
}

// syncProperty reconciles one property's items within chunk against the
// directly-mappable catalogs that use it. Grounded on wdrc.rs's
// sync_property.
func (r *Reconciler) syncProperty(ctx context.Context, property int64, chunk []kbclient.ItemPropertyTimestamp, catalogIDs []int64) error {
	entityIDs := make([]string, 0, len(chunk))
	for _, row := range chunk {
		if row.Property == property {
			entityIDs = append(entityIDs, fmt.Sprintf("Q%d", row.Item))
		}
	}
	if len(entityIDs) == 0 {
		return nil
	}

	itemValues, err := r.KB.GetPropertyValues(ctx, property, entityIDs)
	if err != nil {
		// Grounded on sync_property_propval2item returning None on entity
		// load failure, which sync_property treats as "skip, not an error".
		return nil
	}
	propval2item := buildPropvalToItem(itemValues)
	if len(propval2item) == 0 {
		return nil
	}

	extIDs := make([]string, 0, len(propval2item))
	for extID := range propval2item {
		extIDs = append(extIDs, extID)
	}

	rows, err := r.Store.MaintenanceSyncProperty(ctx, catalogIDs, extIDs)
	if err != nil {
		return err
	}
	for _, row := range rows {
		wdItemQ, ok := propval2item[row.ExtID]
		if !ok {
			continue
		}
		if row.UserID != nil && *row.UserID != 0 {
			continue
		}
		if row.QNumeric != nil && *row.QNumeric == wdItemQ && model.IsFullyMatched(row.QNumeric, row.UserID) {
			continue
		}
		// Best-effort, matching wdrc.rs's `let _ = entry.set_match(...)`.
		_, _ = r.Store.SetMatch(ctx, row.EntryID, wdItemQ, model.UserAuxMatch)
	}
	return nil
}

// buildPropvalToItem inverts item->values into value->item, keeping only
// values unique to exactly one item. Grounded verbatim on wdrc.rs's
// sync_property_propval2item tail: sort+dedup each value's item list, then
// filter to len()==1.
func buildPropvalToItem(itemValues map[string][]string) map[string]int64 {
	itemsByValue := make(map[string][]int64)
	for item, values := range itemValues {
		q := itemToNumeric(item)
		if q <= 0 {
			continue
		}
		for _, v := range values {
			itemsByValue[v] = append(itemsByValue[v], q)
		}
	}
	out := make(map[string]int64, len(itemsByValue))
	for value, items := range itemsByValue {
		items = dedupSortedInt64(items)
		if len(items) == 1 {
			out[value] = items[0]
		}
	}
	return out
}

func dedupSortedInt64(items []int64) []int64 {
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	out := items[:0]
	var last int64
	first := true
	for _, v := range items {
		if first || v != last {
			out = append(out, v)
			last = v
			first = false
		}
	}
	return out
}
