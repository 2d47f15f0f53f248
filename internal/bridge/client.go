// Package bridge talks to the local browser bridge, a small HTTP service
// run alongside the browser that exposes its live history.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/source"
)

// DefaultURL is where the bridge listens unless configured otherwise.
const DefaultURL = "http://127.0.0.1:7775"

// Item is one URL reported by the bridge. LastVisitTime is Unix
// milliseconds, possibly fractional.
type Item struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	VisitCount    int     `json:"visitCount"`
	LastVisitTime float64 `json:"lastVisitTime"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Items     []Item   `json:"items"`
	LastSync  *float64 `json:"lastSync"`
	TotalURLs int      `json:"totalUrls"`
}

// Status is the body of GET /status.
type Status struct {
	OK      bool   `json:"ok"`
	ExtID   string `json:"extId"`
	Version string `json:"version"`
}

// Client fetches history from the bridge.
type Client struct {
	baseURL      string
	http         *http.Client
	checkTimeout time.Duration
}

// New returns a Client for baseURL. checkTimeout bounds the status check.
func New(baseURL string, checkTimeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if checkTimeout <= 0 {
		checkTimeout = source.DefaultTimeout
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 30 * time.Second},
		checkTimeout: checkTimeout,
	}
}

// Status checks the bridge. Any transport failure or non-200 answer is
// reported as source.ErrUnavailable.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	var st Status
	if err := c.getJSON(ctx, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ExtID returns the extension ID reported by the bridge status check.
func (c *Client) ExtID(ctx context.Context) (string, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return "", err
	}
	return st.ExtID, nil
}

// History returns the bridge's URLs visited in the trailing days.
func (c *Client) History(ctx context.Context, days int) (*HistoryResponse, error) {
	q := url.Values{"days": {strconv.Itoa(history.ClampDays(days))}}
	var resp HistoryResponse
	if err := c.getJSON(ctx, "/history", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: bridge %s returned %d", source.ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bridge %s: %w", path, err)
	}
	return nil
}

// Name implements history.Source.
func (c *Client) Name() string { return "extension" }

// Bucketer implements history.Source. The bridge reports UTC instants and
// they are bucketed by UTC date.
func (c *Client) Bucketer() history.Bucketer { return history.UTCDay }

// Visits implements history.Source. Internal browser pages are dropped here.
func (c *Client) Visits(ctx context.Context, days int) ([]history.RawVisit, error) {
	resp, err := c.History(ctx, days)
	if err != nil {
		return nil, err
	}
	return ItemsToVisits(resp.Items), nil
}

// ItemsToVisits converts bridge items, dropping excluded URLs.
func ItemsToVisits(items []Item) []history.RawVisit {
	out := make([]history.RawVisit, 0, len(items))
	for _, it := range items {
		if history.IsExcludedURL(it.URL) {
			continue
		}
		out = append(out, history.RawVisit{
			URL:        it.URL,
			Title:      it.Title,
			VisitCount: it.VisitCount,
			LastVisit:  history.UnixMillis(it.LastVisitTime),
		})
	}
	return out
}

// IsUnavailable reports whether err means the bridge could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, source.ErrUnavailable)
}
