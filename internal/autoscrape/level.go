// Package autoscrape implements the JSON-driven scraper interpreter of
// spec.md §4.5.10: a stack of Levels forms a multi-digit odometer over
// URL permutations, and a Scraper turns each fetched page into zero or
// more extended entries. Grounded on original_source/src/autoscrape_levels.rs,
// autoscrape_resolve.rs and autoscrape_scraper.rs, which define a more
// complete API (async Level trait with get_state/set_state, AutoscrapeRegex,
// Autoscrape::reqwest_client_external) than the sibling autoscrape.rs in the
// same retrieved snapshot; see DESIGN.md for the discrepancy and which file
// grounds which part of this package.
package autoscrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"regexp"
	"strconv"
)

// Level produces a lazy sequence of string keys substituted into the
// scraper's URL template. Grounded on autoscrape_levels.rs's Level trait;
// MarshalState/UnmarshalState fold get_state/set_state into one pair of
// methods so a job can checkpoint and resume mid-permutation.
type Level interface {
	Init(ctx context.Context, client *http.Client) error
	// Tick advances to the next key and reports whether the level is
	// exhausted (true = no more keys, mirrors Level::tick's bool).
	Tick(ctx context.Context, client *http.Client) (bool, error)
	Current() string
	MarshalState() json.RawMessage
	UnmarshalState(data json.RawMessage)
}

func fetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// KeysLevel walks an explicit list of strings. Grounded on AutoscrapeKeys.
type KeysLevel struct {
	Keys     []string
	position int
}

func NewKeysLevel(keys []string) *KeysLevel { return &KeysLevel{Keys: keys} }

func (l *KeysLevel) Init(ctx context.Context, client *http.Client) error {
	l.position = 0
	return nil
}

func (l *KeysLevel) Tick(ctx context.Context, client *http.Client) (bool, error) {
	l.position++
	return l.position >= len(l.Keys), nil
}

func (l *KeysLevel) Current() string {
	if l.position < 0 || l.position >= len(l.Keys) {
		return ""
	}
	return l.Keys[l.position]
}

func (l *KeysLevel) MarshalState() json.RawMessage {
	b, _ := json.Marshal(struct {
		Position int `json:"position"`
	}{l.position})
	return b
}

func (l *KeysLevel) UnmarshalState(data json.RawMessage) {
	var s struct {
		Position int `json:"position"`
	}
	if json.Unmarshal(data, &s) == nil {
		l.position = s.Position
	}
}

// RangeLevel counts from Start to End in steps of Step. Grounded on
// AutoscrapeRange.
type RangeLevel struct {
	Start, End, Step uint64
	current          uint64
}

func NewRangeLevel(start, end, step uint64) *RangeLevel {
	return &RangeLevel{Start: start, End: end, Step: step, current: start}
}

func (l *RangeLevel) Init(ctx context.Context, client *http.Client) error {
	l.current = l.Start
	return nil
}

func (l *RangeLevel) Tick(ctx context.Context, client *http.Client) (bool, error) {
	l.current += l.Step
	return l.current > l.End, nil
}

func (l *RangeLevel) Current() string { return strconv.FormatUint(l.current, 10) }

func (l *RangeLevel) MarshalState() json.RawMessage {
	b, _ := json.Marshal(struct {
		CurrentValue uint64 `json:"current_value"`
	}{l.current})
	return b
}

func (l *RangeLevel) UnmarshalState(data json.RawMessage) {
	var s struct {
		CurrentValue uint64 `json:"current_value"`
	}
	if json.Unmarshal(data, &s) == nil {
		l.current = s.CurrentValue
	}
}

// FollowLevel fetches URL, regex-extracts a list of keys from it, and
// yields them one at a time, refilling once exhausted. Grounded on
// AutoscrapeFollow.
type FollowLevel struct {
	URL   string
	Regex *regexp.Regexp

	cache   []string
	current string
}

func NewFollowLevel(url string, rx *regexp.Regexp) *FollowLevel {
	return &FollowLevel{URL: url, Regex: rx}
}

func (l *FollowLevel) Init(ctx context.Context, client *http.Client) error {
	return l.refill(ctx, client)
}

func (l *FollowLevel) Tick(ctx context.Context, client *http.Client) (bool, error) {
	if len(l.cache) == 0 {
		return true, nil
	}
	l.current, l.cache = l.cache[len(l.cache)-1], l.cache[:len(l.cache)-1]
	return false, nil
}

func (l *FollowLevel) Current() string { return l.current }

func (l *FollowLevel) refill(ctx context.Context, client *http.Client) error {
	text, err := fetchText(ctx, client, l.URL)
	if err != nil {
		return err
	}
	var cache []string
	for _, m := range l.Regex.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 {
			cache = append(cache, m[1])
		}
	}
	l.cache = cache
	return nil
}

func (l *FollowLevel) MarshalState() json.RawMessage {
	b, _ := json.Marshal(struct {
		URL string `json:"url"`
	}{l.URL})
	return b
}

func (l *FollowLevel) UnmarshalState(data json.RawMessage) {
	var s struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(data, &s) == nil && s.URL != "" {
		l.URL = s.URL
	}
}

// mediaWikiAllPages is the shape of a MediaWiki action=query&list=allpages
// response, enough of it to walk the title list.
type mediaWikiAllPages struct {
	Query struct {
		AllPages []struct {
			Title string `json:"title"`
		} `json:"allpages"`
	} `json:"query"`
}

// MediaWikiLevel walks a MediaWiki wiki's full page list via
// action=query&list=allpages, apfrom-cursor paginated. Grounded on
// AutoscrapeMediaWiki.
type MediaWikiLevel struct {
	URL string

	apfrom     string
	titleCache []string
	lastURL    string
}

func NewMediaWikiLevel(url string) *MediaWikiLevel { return &MediaWikiLevel{URL: url} }

func (l *MediaWikiLevel) Init(ctx context.Context, client *http.Client) error {
	l.titleCache = nil
	return nil
}

func (l *MediaWikiLevel) Tick(ctx context.Context, client *http.Client) (bool, error) {
	if len(l.titleCache) == 0 {
		if err := l.refill(ctx, client); err != nil {
			return true, nil
		}
	}
	if len(l.titleCache) == 0 {
		return true, nil
	}
	l.apfrom, l.titleCache = l.titleCache[len(l.titleCache)-1], l.titleCache[:len(l.titleCache)-1]
	return false, nil
}

func (l *MediaWikiLevel) Current() string { return l.apfrom }

// refill queries one page of the allpages feed. A repeat of the last URL
// means the feed is exhausted (the API stopped advancing apfrom); Rust's
// refill_cache treats that as success-with-empty-cache rather than error,
// so the caller's own "cache still empty" check is what ends the level.
func (l *MediaWikiLevel) refill(ctx context.Context, client *http.Client) error {
	url := fmt.Sprintf("%s?action=query&format=json&list=allpages&apnamespace=0&aplimit=500&apfilterredir=nonredirects&apfrom=%s",
		l.URL, neturl.QueryEscape(l.apfrom))
	if url == l.lastURL {
		return nil
	}
	l.lastURL = url

	text, err := fetchText(ctx, client, url)
	if err != nil {
		return err
	}
	var parsed mediaWikiAllPages
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return err
	}
	pages := parsed.Query.AllPages
	cache := make([]string, 0, len(pages))
	for i := len(pages) - 1; i >= 0; i-- {
		cache = append(cache, pages[i].Title)
	}
	l.titleCache = cache
	return nil
}

func (l *MediaWikiLevel) MarshalState() json.RawMessage {
	b, _ := json.Marshal(struct {
		URL    string `json:"url"`
		Apfrom string `json:"apfrom"`
	}{l.URL, l.apfrom})
	return b
}

func (l *MediaWikiLevel) UnmarshalState(data json.RawMessage) {
	var s struct {
		URL    string `json:"url"`
		Apfrom string `json:"apfrom"`
	}
	if json.Unmarshal(data, &s) != nil {
		return
	}
	if s.URL != "" {
		l.URL = s.URL
	}
	l.apfrom = s.Apfrom
	l.titleCache = nil
}

// Odometer drives a stack of Levels as a multi-digit counter: the
// innermost (last) level advances fastest, carrying into the next level
// up whenever it exhausts. Grounded on autoscrape.rs's Autoscrape::tick.
type Odometer struct {
	Levels []Level
}

// Init resets every level to its first key.
func (o *Odometer) Init(ctx context.Context, client *http.Client) error {
	for _, l := range o.Levels {
		if err := l.Init(ctx, client); err != nil {
			return err
		}
	}
	return nil
}

// Tick advances the permutation by one. It returns true once every level
// has exhausted (the whole odometer is done).
func (o *Odometer) Tick(ctx context.Context, client *http.Client) (bool, error) {
	if len(o.Levels) == 0 {
		return true, nil
	}
	for i := len(o.Levels) - 1; i >= 0; i-- {
		done, err := o.Levels[i].Tick(ctx, client)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
		if err := o.Levels[i].Init(ctx, client); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Current collects every level's current key, in level order ($L1, $L2, …).
func (o *Odometer) Current() []string {
	out := make([]string, len(o.Levels))
	for i, l := range o.Levels {
		out[i] = l.Current()
	}
	return out
}
