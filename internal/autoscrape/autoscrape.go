package autoscrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

// AutoscraperUserAgent identifies autoscrape's outbound HTTP requests,
// grounded verbatim on autoscrape.rs's AUTOSCRAPER_USER_AGENT.
const AutoscraperUserAgent = "mixnmatch-go-autoscrape/1.0"

// Options are the scraper-wide flags carried in the config JSON's
// top-level (or nested scraper.options) "options" object. Grounded on
// Autoscrape::options_from_json.
type Options struct {
	SimpleSpace bool
	SkipFailed  bool
	UTF8Encode  bool
}

// Autoscrape drives one catalog's scraper definition: an Odometer of
// Levels producing URL permutations, and a Scraper turning each fetched
// page into extended entries. Grounded on autoscrape.rs's outer
// Autoscrape struct and its new/init/tick/current/iterate_one.
type Autoscrape struct {
	CatalogID int64
	Options   Options
	Odometer  Odometer
	Scraper   Scraper
}

type levelJSON struct {
	Mode string          `json:"mode"`
	Keys []string        `json:"keys"`
	Start uint64         `json:"start"`
	End   uint64         `json:"end"`
	Step  uint64         `json:"step"`
	URL   string         `json:"url"`
	RX    string         `json:"rx"`
	State json.RawMessage `json:"state"`
}

type resolveJSON struct {
	Use string     `json:"use"`
	RX  [][]string `json:"rx"`
}

type resolveAuxJSON struct {
	Prop string `json:"prop"`
	ID   string `json:"id"`
}

type scraperJSON struct {
	URL      string          `json:"url"`
	RXBlock  string          `json:"rx_block"`
	RXEntry  json.RawMessage `json:"rx_entry"`
	Resolve  map[string]resolveJSON `json:"resolve"`
	Aux      []resolveAuxJSON `json:"aux"`
	Options  *struct {
		SimpleSpace int `json:"simple_space"`
		SkipFailed  int `json:"skip_failed"`
		UTF8Encode  int `json:"utf8_encode"`
	} `json:"options"`
}

type autoscrapeConfigJSON struct {
	Levels  []levelJSON `json:"levels"`
	Scraper scraperJSON `json:"scraper"`
	Options *struct {
		SimpleSpace int `json:"simple_space"`
		SkipFailed  int `json:"skip_failed"`
		UTF8Encode  int `json:"utf8_encode"`
	} `json:"options"`
}

// NewFromJSON parses one catalog's autoscrape JSON config (the `json`
// column of the autoscrape table). Grounded on Autoscrape::new and
// AutoscrapeScraper::from_json; options are read from the top-level
// "options" object, falling back to scraper.options, matching
// Autoscrape::new's same fallback.
func NewFromJSON(catalogID int64, rawConfig string) (*Autoscrape, error) {
	var cfg autoscrapeConfigJSON
	if err := json.Unmarshal([]byte(rawConfig), &cfg); err != nil {
		return nil, fmt.Errorf("autoscrape: parse config: %w", err)
	}

	levels := make([]Level, 0, len(cfg.Levels))
	for _, lj := range cfg.Levels {
		level, err := levelFromJSON(lj)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}

	scraper, err := scraperFromJSON(cfg.Scraper)
	if err != nil {
		return nil, err
	}

	opts := cfg.Options
	if opts == nil {
		opts = cfg.Scraper.Options
	}
	var options Options
	if opts != nil {
		options = Options{
			SimpleSpace: opts.SimpleSpace == 1,
			SkipFailed:  opts.SkipFailed == 1,
			UTF8Encode:  opts.UTF8Encode == 1,
		}
	}

	return &Autoscrape{
		CatalogID: catalogID,
		Options:   options,
		Odometer:  Odometer{Levels: levels},
		Scraper:   scraper,
	}, nil
}

func levelFromJSON(lj levelJSON) (Level, error) {
	switch lj.Mode {
	case "keys":
		return NewKeysLevel(lj.Keys), nil
	case "range":
		return NewRangeLevel(lj.Start, lj.End, lj.Step), nil
	case "follow":
		rx, err := regexp.Compile(lj.RX)
		if err != nil {
			return nil, fmt.Errorf("autoscrape: follow level regex: %w", err)
		}
		return NewFollowLevel(lj.URL, rx), nil
	case "mediawiki":
		return NewMediaWikiLevel(lj.URL), nil
	default:
		return nil, fmt.Errorf("autoscrape: unknown level mode %q", lj.Mode)
	}
}

func resolveFromJSON(rj resolveJSON) (Resolve, error) {
	regexs := make([]regexReplacement, 0, len(rj.RX))
	for _, pair := range rj.RX {
		if len(pair) < 2 {
			continue
		}
		rx, err := regexp.Compile(pair[0])
		if err != nil {
			return Resolve{}, fmt.Errorf("autoscrape: resolve regex: %w", err)
		}
		regexs = append(regexs, regexReplacement{Regex: rx, Replacement: pair[1]})
	}
	return Resolve{UsePattern: rj.Use, Regexs: regexs}, nil
}

func scraperFromJSON(sj scraperJSON) (Scraper, error) {
	var regexBlock *regexp.Regexp
	if sj.RXBlock != "" {
		rx, err := regexp.Compile(sj.RXBlock)
		if err != nil {
			return Scraper{}, fmt.Errorf("autoscrape: rx_block: %w", err)
		}
		regexBlock = rx
	}

	regexEntry, err := regexEntryFromJSON(sj.RXEntry)
	if err != nil {
		return Scraper{}, err
	}

	resolveFields := make(map[string]Resolve, 5)
	for _, key := range []string{"id", "name", "desc", "url", "type"} {
		r, err := resolveFromJSON(sj.Resolve[key])
		if err != nil {
			return Scraper{}, err
		}
		resolveFields[key] = r
	}

	resolveAux := make([]ResolveAux, 0, len(sj.Aux))
	for _, aj := range sj.Aux {
		property, ok := parsePropertyNumber(aj.Prop)
		if !ok {
			continue
		}
		resolveAux = append(resolveAux, ResolveAux{Property: property, ID: aj.ID})
	}

	return Scraper{
		URL:         sj.URL,
		RegexBlock:  regexBlock,
		RegexEntry:  regexEntry,
		ResolveID:   resolveFields["id"],
		ResolveName: resolveFields["name"],
		ResolveDesc: resolveFields["desc"],
		ResolveURL:  resolveFields["url"],
		ResolveType: resolveFields["type"],
		ResolveAux:  resolveAux,
	}, nil
}

// regexEntryFromJSON handles rx_entry being either a single string or an
// array of strings, grounded on regex_entry_from_json's string/array split.
func regexEntryFromJSON(raw json.RawMessage) ([]*regexp.Regexp, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		rx, err := regexp.Compile(single)
		if err != nil {
			return nil, fmt.Errorf("autoscrape: rx_entry: %w", err)
		}
		return []*regexp.Regexp{rx}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("autoscrape: rx_entry: %w", err)
	}
	out := make([]*regexp.Regexp, 0, len(many))
	for _, s := range many {
		rx, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("autoscrape: rx_entry: %w", err)
		}
		out = append(out, rx)
	}
	return out, nil
}

// Init resets every level to its first key.
func (a *Autoscrape) Init(ctx context.Context, client *http.Client) error {
	return a.Odometer.Init(ctx, client)
}

// IterateOne fetches the URL for the current permutation, extracts
// entries from it, and advances to the next permutation. The returned
// bool is true once the whole odometer is exhausted (mirrors
// Autoscrape::iterate_one's "done" signal). Grounded on iterate_one,
// generalized to return entries instead of discarding them (the original
// left process_html_page's result unused, a debug-stub leftover).
func (a *Autoscrape) IterateOne(ctx context.Context, client *http.Client) ([]model.ExtendedEntry, bool, error) {
	levelKeys := a.Odometer.Current()
	url := substituteLevelKeys(a.Scraper.URL, levelKeys)

	html, err := fetchText(ctx, client, url)
	if err != nil {
		if a.Options.SkipFailed {
			done, tickErr := a.Odometer.Tick(ctx, client)
			return nil, done, tickErr
		}
		return nil, false, fmt.Errorf("autoscrape: fetch %s: %w", url, err)
	}
	if a.Options.SimpleSpace {
		html = simpleSpaceRE.ReplaceAllString(html, " ")
	}

	entries := a.Scraper.ProcessHTMLPage(html, a.CatalogID, levelKeys)

	done, err := a.Odometer.Tick(ctx, client)
	return entries, done, err
}

// substituteLevelKeys replaces "$1","$2",… in the URL template with the
// odometer's current keys, grounded on Autoscrape::iterate_one's url
// substitution loop.
func substituteLevelKeys(template string, levelKeys []string) string {
	url := template
	for i, key := range levelKeys {
		url = strings.ReplaceAll(url, fmt.Sprintf("$%d", i+1), key)
	}
	return url
}
