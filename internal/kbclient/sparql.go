package kbclient

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"
)

// SPARQLBindings is one row of a SPARQL JSON result: variable name to its
// bound value ("value" key of the RDF term).
type SPARQLBindings map[string]string

type sparqlJSONResult struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// Query runs a SPARQL query against the SPARQL endpoint and returns its
// bindings as plain string maps. Grounded on the SPARQL-JSON half of
// wikidata.rs's query surface (the CSV path is load_sparql_csv, kept
// separate below since microsync/taxon-matcher stream CSV directly rather
// than buffering the JSON form for very large result sets).
func (c *Client) Query(ctx context.Context, sparql string) ([]SPARQLBindings, error) {
	u := fmt.Sprintf("%s?query=%s&format=json", c.cfg.SPARQLURL, url.QueryEscape(sparql))
	var raw sparqlJSONResult
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}
	out := make([]SPARQLBindings, 0, len(raw.Results.Bindings))
	for _, row := range raw.Results.Bindings {
		b := make(SPARQLBindings, len(row))
		for k, v := range row {
			b[k] = v.Value
		}
		out = append(out, b)
	}
	return out, nil
}

// QueryCSV runs a SPARQL query asking for CSV output and returns a
// csv.Reader positioned after the header row, with the header returned
// separately. Grounded on wikidata.rs's load_sparql_csv, which streams the
// result to a temp file and hands back a csv::Reader over it; here the
// HTTP response body is streamed directly instead of spooling to disk,
// since Go's http.Response.Body is already a bounded streaming reader.
func (c *Client) QueryCSV(ctx context.Context, sparql string) (*csv.Reader, []string, func() error, error) {
	u := fmt.Sprintf("%s?query=%s&format=csv", c.cfg.SPARQLURL, url.QueryEscape(sparql))

	var resp *http.Response
	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.http.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			r.Body.Close()
			return fmt.Errorf("kb sparql: status %d", r.StatusCode)
		}
		if r.StatusCode != http.StatusOK {
			r.Body.Close()
			return backoff.Permanent(fmt.Errorf("kb sparql: status %d", r.StatusCode))
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}

	reader := csv.NewReader(bufio.NewReader(resp.Body))
	header, err := reader.Read()
	if err != nil {
		resp.Body.Close()
		return nil, nil, nil, fmt.Errorf("read sparql csv header: %w", err)
	}
	return reader, header, resp.Body.Close, nil
}
