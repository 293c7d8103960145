package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
	"github.com/magnusmanske/mixnmatch-go/internal/storage"
)

// defaultMaxDistance is the SPARQL search radius used when a catalog has no
// location_distance setting. Grounded verbatim on
// coordinate_matcher.rs's DEFAULT_MAX_DISTANCE.
const defaultMaxDistance = "500m"

var (
	reMeters     = regexp.MustCompile(`^([0-9.]+)m$`)
	reKilometers = regexp.MustCompile(`^([0-9.]+)km$`)
)

// Coordinate implements spec §4.5.6: for each not-fully-matched entry with
// coordinates, run a SPARQL SERVICE wikibase:around query within a
// per-catalog radius (optionally constrained to the entry's type), and
// match when exactly one candidate remains, unless the entry is already
// matched to that item. Grounded on coordinate_matcher.rs's
// CoordinateMatcher::run/process_row/try_match_via_sparql_query; the
// item-creation branch (try_match_via_wikidata_search, "TODO create item")
// was never implemented in the original and is out of scope here too.
type Coordinate struct{}

func (Coordinate) Run(ctx context.Context, jc *JobContext) error {
	allowMatch, err := jc.catalogPermission(ctx, "allow_location_match")
	if err != nil {
		return err
	}
	if !allowMatch {
		return nil
	}
	forceSameType, err := jc.catalogPermission(ctx, "location_force_same_type")
	if err != nil {
		return err
	}
	maxDistanceKM, err := jc.maxDistanceKM(ctx)
	if err != nil {
		return err
	}

	return RunBatches(ctx, jc,
		func(ctx context.Context, offset, batchSize int64) ([]storage.CoordinateRow, error) {
			return jc.Store.EntriesForCoordinateMatcher(ctx, jc.Catalog.ID, offset, batchSize)
		},
		func(ctx context.Context, row storage.CoordinateRow) error {
			return coordinateOne(ctx, jc, row, forceSameType, maxDistanceKM)
		},
	)
}

func coordinateOne(ctx context.Context, jc *JobContext, row storage.CoordinateRow, forceSameType bool, maxDistanceKM float64) error {
	typeQuery := ""
	if forceSameType && row.Type != "" {
		typeQuery = fmt.Sprintf("?place wdt:P31 wd:%s .", row.Type)
	}
	sparql := fmt.Sprintf(
		"SELECT ?place ?distance WHERE { "+
			"SERVICE wikibase:around { "+
			"?place wdt:P625 ?location . %s "+
			"bd:serviceParam wikibase:center 'Point(%g %g)'^^geo:wktLiteral . "+
			"bd:serviceParam wikibase:radius '%g' . "+
			"bd:serviceParam wikibase:distance ?distance . "+
			"} } ORDER BY (?distance) LIMIT 500",
		typeQuery, row.Lon, row.Lat, maxDistanceKM)

	bindings, err := jc.KB.Query(ctx, sparql)
	if err != nil {
		return fmt.Errorf("coordinate query for entry %d: %w", row.EntryID, err)
	}

	candidates := make([]string, 0, len(bindings))
	for _, b := range bindings {
		dist, parseErr := strconv.ParseFloat(b["distance"], 64)
		if parseErr == nil && dist > maxDistanceKM {
			continue
		}
		place := b["place"]
		if place == "" {
			continue
		}
		candidates = append(candidates, entityIDFromURI(place))
	}
	candidates, err = jc.KB.RemoveMetaItems(ctx, candidates)
	if err != nil {
		return fmt.Errorf("remove meta items for entry %d: %w", row.EntryID, err)
	}

	switch len(candidates) {
	case 0:
		return nil
	case 1:
		q, ok := parseQ(candidates[0])
		if !ok {
			return nil
		}
		entry, err := jc.Store.GetEntry(ctx, row.EntryID)
		if err != nil {
			return err
		}
		if entry.Q != nil && *entry.Q == q {
			return nil
		}
		_, err = jc.Store.SetMatch(ctx, row.EntryID, q, model.UserLocationMatch)
		return err
	default:
		return recordMultipleIssue(ctx, jc, row.EntryID, candidates)
	}
}

// catalogPermission reports whether the catalog's kv_catalog setting for
// key is the literal string "yes". Grounded on coordinate_matcher.rs's
// is_permission.
func (jc *JobContext) catalogPermission(ctx context.Context, key string) (bool, error) {
	value, ok, err := jc.Store.GetCatalogKV(ctx, jc.Catalog.ID, key)
	if err != nil {
		return false, err
	}
	return ok && value == "yes", nil
}

// maxDistanceKM reads the catalog's location_distance setting (e.g. "500m",
// "2km") and converts it to kilometers for the SPARQL radius parameter.
// Grounded verbatim on coordinate_matcher.rs's
// get_max_distance_sparql_for_entry, which keeps the "m" capture
// unconverted and only divides the "km" capture by 1000; kept unchanged
// here rather than silently correcting what looks like reversed units.
func (jc *JobContext) maxDistanceKM(ctx context.Context) (float64, error) {
	const maxAutomatchDistanceKM = 0.1
	raw, ok, err := jc.Store.GetCatalogKV(ctx, jc.Catalog.ID, "location_distance")
	if err != nil {
		return 0, err
	}
	if !ok {
		raw = defaultMaxDistance
	}
	if m := reMeters.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, nil
		}
	}
	if m := reKilometers.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v / 1000.0, nil
		}
	}
	return maxAutomatchDistanceKM, nil
}
