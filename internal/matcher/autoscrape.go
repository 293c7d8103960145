package matcher

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/magnusmanske/mixnmatch-go/internal/autoscrape"
)

// autoscrapeMaxIterations caps how many URL permutations one job
// invocation runs before yielding and checkpointing, so a feed with an
// enormous odometer (e.g. a wide "range" level) can't hold a worker slot
// indefinitely; the job simply gets re-picked-up and resumes from its
// saved level state. Grounded loosely on autoscrape.rs's own test fixture
// (catalog 91 runs 319 iterations start to finish), scaled up generously.
const autoscrapeMaxIterations = 5000

// autoscrapeHTTPTimeout bounds one page fetch; scraped sites are slow and
// unpredictable, grounded on bespoke.go's sikartScraper using a similarly
// generous timeout for a bulk export endpoint.
const autoscrapeHTTPTimeout = 2 * time.Minute

// Autoscrape implements spec §4.5.10: interpret one catalog's JSON
// scraper definition (internal/autoscrape), upserting every extended
// entry it produces. Grounded on autoscrape.rs's outer Autoscrape struct
// wired as a job action; iterate_one's discarded process_html_page result
// is wired to the upsert step here instead.
type Autoscrape struct{}

// autoscrapeState is the job's resumption checkpoint: each level's own
// MarshalState, in level order.
type autoscrapeState struct {
	LevelStates []json.RawMessage `json:"level_states"`
}

func (Autoscrape) Run(ctx context.Context, jc *JobContext) error {
	autoscrapeID, configJSON, err := jc.Store.GetAutoscrapeConfig(ctx, jc.Catalog.ID)
	if err != nil {
		return err
	}
	scraper, err := autoscrape.NewFromJSON(jc.Catalog.ID, configJSON)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: autoscrapeHTTPTimeout}

	if jc.Job.JSON != nil && restoreAutoscrapeState(scraper, *jc.Job.JSON) {
		// Resuming: level states already set, skip Init (which would
		// reset every level back to its first key) and AutoscrapeStart
		// (which would clear the in-progress run's bookkeeping).
	} else {
		if err := scraper.Init(ctx, client); err != nil {
			return err
		}
		if err := jc.Store.AutoscrapeStart(ctx, autoscrapeID); err != nil {
			return err
		}
	}

	var urlsFetched int64
	for i := 0; i < autoscrapeMaxIterations; i++ {
		entries, done, err := scraper.IterateOne(ctx, client)
		if err != nil {
			return err
		}
		urlsFetched++
		if err := bespokeProcessCache(ctx, jc, false, entries); err != nil {
			return err
		}
		if done {
			if err := jc.Store.SetJobJSON(ctx, jc.Job.ID, nil); err != nil {
				return err
			}
			return jc.Store.AutoscrapeFinish(ctx, autoscrapeID, urlsFetched)
		}
		if err := checkpointAutoscrapeState(ctx, jc, scraper); err != nil {
			return err
		}
	}
	return nil
}

func restoreAutoscrapeState(scraper *autoscrape.Autoscrape, raw string) bool {
	var state autoscrapeState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return false
	}
	levels := scraper.Odometer.Levels
	for i, s := range state.LevelStates {
		if i >= len(levels) {
			break
		}
		levels[i].UnmarshalState(s)
	}
	return len(state.LevelStates) > 0
}

func checkpointAutoscrapeState(ctx context.Context, jc *JobContext, scraper *autoscrape.Autoscrape) error {
	levels := scraper.Odometer.Levels
	states := make([]json.RawMessage, len(levels))
	for i, l := range levels {
		states[i] = l.MarshalState()
	}
	encoded, err := json.Marshal(autoscrapeState{LevelStates: states})
	if err != nil {
		return err
	}
	s := string(encoded)
	return jc.Store.SetJobJSON(ctx, jc.Job.ID, &s)
}
