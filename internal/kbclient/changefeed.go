package kbclient

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// changeFeedTooManyRequestsMarker is the HTML body the change-feed endpoint
// sends in place of a 429 status code when rate-limited. Grounded verbatim
// on wdrc.rs's get_wrdc_api_responses, which polls the raw response text for
// this string rather than checking the status code.
const changeFeedTooManyRequestsMarker = "<head><title>429 Too Many Requests</title></head>"

// changeFeedRetryDelay is the pause between rate-limit retries, matching
// wdrc.rs's std::thread::sleep(Duration::from_secs(1)).
const changeFeedRetryDelay = time.Second

// FetchChangeFeed issues one GET against the change-feed endpoint for query
// (e.g. "action=redirects&since=20260101000000") and returns the raw
// newline-delimited-JSON response body, retrying on rate-limiting. Grounded
// on wdrc.rs's get_wrdc_api_responses; parsing the body into events is left
// to the caller (internal/wdrc's ParseFeed) so tests can exercise the parser
// without an HTTP round trip.
func (c *Client) FetchChangeFeed(ctx context.Context, query string) (string, error) {
	if c.cfg.ChangeFeedURL == "" {
		return "", fmt.Errorf("kbclient: change feed url not configured")
	}
	for {
		body, err := c.fetchChangeFeedPage(ctx, query)
		if err != nil {
			return "", err
		}
		if !strings.Contains(body, changeFeedTooManyRequestsMarker) {
			return body, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(changeFeedRetryDelay):
		}
	}
}

func (c *Client) fetchChangeFeedPage(ctx context.Context, query string) (string, error) {
	u := fmt.Sprintf("%s?format=jsonl&%s&random=%d", c.cfg.ChangeFeedURL, query, rand.Uint32())
	var body string
	err := c.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("kb change feed: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("kb change feed: status %d", resp.StatusCode))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	})
	return body, err
}
