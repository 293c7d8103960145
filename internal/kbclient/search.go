package kbclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// searchResponse mirrors the shape of action=query&list=search's JSON
// response; only the fields this client reads are declared.
type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

const defaultSearchLimit = 10

// Search runs a full-text search against the KB web API and returns the
// matching item ids (e.g. "Q42"). Grounded on wikidata.rs's search_api /
// search_with_limit.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	return c.SearchWithLimit(ctx, query, defaultSearchLimit)
}

// SearchWithLimit is Search with an explicit result cap.
func (c *Client) SearchWithLimit(ctx context.Context, query string, limit int) ([]string, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	u := fmt.Sprintf("%s?action=query&list=search&format=json&srsearch=%s&srlimit=%d",
		c.cfg.APIURL, url.QueryEscape(query), limit)
	var resp searchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Query.Search))
	for _, r := range resp.Query.Search {
		if r.Title != "" {
			out = append(out, r.Title)
		}
	}
	return out, nil
}

// SearchWithType runs a full-text search restricted to items with the given
// P31 (instance-of) value, excluding scholarly articles and the standard
// meta-item classes unless typeQ itself names one of them. Grounded on
// search_with_type_api; typeQ="" behaves like Search.
func (c *Client) SearchWithType(ctx context.Context, name, typeQ string) ([]string, error) {
	if name == "" {
		return nil, nil
	}
	if typeQ == "" {
		return c.Search(ctx, name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s haswbstatement:P31=%s", name, typeQ)
	if typeQ != ScholarlyArticle {
		fmt.Fprintf(&b, " -haswbstatement:P31=%s", ScholarlyArticle)
	}
	for _, meta := range MetaItems {
		fmt.Fprintf(&b, " -haswbstatement:P31=%s", meta)
	}
	return c.Search(ctx, b.String())
}

// RemoveMetaItems filters items (already deduped/sorted by the caller is not
// required) down to those that are not linked-to by one of the standard
// meta-item classes (disambiguation pages etc). Grounded on
// wikidata.rs's remove_meta_items, with the dedup step performed here
// instead of mutating the caller's slice in place.
func (c *Client) RemoveMetaItems(ctx context.Context, items []string) ([]string, error) {
	if len(items) == 0 {
		return items, nil
	}
	unique := dedupSorted(items)
	metaLinked, err := c.GetMetaItems(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(metaLinked) == 0 {
		return unique, nil
	}
	meta := make(map[string]struct{}, len(metaLinked))
	for _, q := range metaLinked {
		meta[q] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for _, q := range unique {
		if _, bad := meta[q]; !bad {
			out = append(out, q)
		}
	}
	return out, nil
}

func dedupSorted(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, q := range items {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
