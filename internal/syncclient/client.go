// Package syncclient pushes aggregated rows to a browsedash server and
// reads the merged summary back.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/runnerr0/browsedash/internal/history"
)

const (
	ingestPath  = "/api/sync/ingest"
	summaryPath = "/api/sync/summary"
)

// MaxRowsPerRequest matches the server's per-batch row cap.
const MaxRowsPerRequest = 20000

// Row is one (day, domain) count on the wire.
type Row struct {
	Day      string `json:"day"`
	Domain   string `json:"domain"`
	Visits   int    `json:"visits"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// IngestRequest is the body of POST /api/sync/ingest.
type IngestRequest struct {
	DeviceID    string `json:"deviceId"`
	WindowDays  int    `json:"windowDays"`
	GeneratedAt int64  `json:"generatedAt"`
	Rows        []Row  `json:"rows"`
}

// IngestResponse is the success body of the ingest endpoint.
type IngestResponse struct {
	OK           bool   `json:"ok"`
	Upserted     int    `json:"upserted"`
	UserIDPrefix string `json:"userIdPrefix"`
}

// DomainDaily is one row of the summary.
type DomainDaily struct {
	Day    string `json:"day"`
	Domain string `json:"domain"`
	Visits int    `json:"visits"`
}

// SummaryResponse is the body of GET /api/sync/summary.
type SummaryResponse struct {
	OK          bool          `json:"ok"`
	Days        int           `json:"days"`
	LastSync    *time.Time    `json:"lastSync"`
	DomainDaily []DomainDaily `json:"domainDaily"`
}

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Client is a sync server client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Push sends req under the identity of key. Requests over the server's row
// cap are split; each part is applied atomically on its own.
func (c *Client) Push(ctx context.Context, key string, req *IngestRequest) (*IngestResponse, error) {
	total := &IngestResponse{OK: true}
	rows := req.Rows
	for {
		n := min(len(rows), MaxRowsPerRequest)
		part := *req
		part.Rows = rows[:n]
		if part.Rows == nil {
			part.Rows = []Row{}
		}

		var resp IngestResponse
		if err := c.do(ctx, http.MethodPost, ingestPath, nil, key, &part, &resp); err != nil {
			return nil, err
		}
		total.Upserted += resp.Upserted
		total.UserIDPrefix = resp.UserIDPrefix

		rows = rows[n:]
		if len(rows) == 0 {
			return total, nil
		}
	}
}

// Summary fetches the merged per-day counts for the trailing days.
func (c *Client) Summary(ctx context.Context, key string, days int) (*SummaryResponse, error) {
	q := url.Values{"days": {strconv.Itoa(days)}}
	var resp SummaryResponse
	if err := c.do(ctx, http.MethodGet, summaryPath, q, key, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, key string, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode}
		var eb struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb) == nil {
			se.Message, se.Detail = eb.Error, eb.Detail
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// RowsFromEntries converts aggregates to wire rows.
func RowsFromEntries(entries []history.AggregateEntry) []Row {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{Day: e.Day, Domain: e.Domain, Visits: e.Visits}
		if !e.LastSeen.IsZero() {
			rows[i].LastSeen = e.LastSeen.UTC().Format(time.RFC3339)
		}
	}
	return rows
}

// Visits projects the summary into normalized visits. The server keeps no
// titles, so each title is the domain.
func (s *SummaryResponse) Visits() []history.NormalizedVisit {
	out := make([]history.NormalizedVisit, len(s.DomainDaily))
	for i, d := range s.DomainDaily {
		out[i] = history.NormalizedVisit{Domain: d.Domain, Date: d.Day, Visits: d.Visits, Title: d.Domain}
	}
	return out
}
