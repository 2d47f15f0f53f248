package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/runnerr0/browsedash/internal/errors"
	"github.com/runnerr0/browsedash/internal/identity"
	"github.com/runnerr0/browsedash/internal/logger"
	"github.com/runnerr0/browsedash/internal/storage"
)

var testNow = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg Config) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), ":memory:", storage.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, err := New(store, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Authorization, Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

// --- Ingest ---

func TestIngest_UpsertThenSummary(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", map[string]any{
		"deviceId":    "dev-1",
		"windowDays":  30,
		"generatedAt": 1_771_675_200_000,
		"rows": []map[string]any{
			{"day": "2026-02-20", "domain": "a.com", "visits": 3, "lastSeen": "2026-02-20T10:00:00Z"},
			{"day": "2026-02-21", "domain": "b.com", "visits": 1.7},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertCORS(t, rec)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(2), body["upserted"])
	assert.Equal(t, identity.Prefix(identity.UserID("bd_sk_a")), body["userIdPrefix"])

	rec = do(t, srv, http.MethodGet, "/api/sync/summary?days=7", "bd_sk_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)

	var sum summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.True(t, sum.OK)
	assert.Equal(t, 7, sum.Days)
	require.NotNil(t, sum.LastSync)
	assert.True(t, testNow.Equal(*sum.LastSync))
	assert.Equal(t, []storage.DomainDaily{
		{Day: "2026-02-20", Domain: "a.com", Visits: 3},
		{Day: "2026-02-21", Domain: "b.com", Visits: 1},
	}, sum.DomainDaily)
}

func TestIngest_MissingBearer(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "", `{"rows":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertCORS(t, rec)
	assert.Equal(t, "Missing Bearer token", decode(t, rec)["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/sync/summary", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngest_BearerSchemeCaseInsensitive(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/sync/ingest", strings.NewReader(`{"rows":[]}`))
	req.Header.Set("Authorization", "bearer bd_sk_a")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngest_InvalidPayload(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, body := range []string{`not json`, `{}`, `{"rows":null}`, `{"rows":{"day":"x"}}`, `{"rows":"nope"}`} {
		t.Run(body, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid payload", decode(t, rec)["error"])
			assertCORS(t, rec)
		})
	}
}

func TestIngest_EmptyRows(t *testing.T) {
	srv, store := newTestServer(t, Config{})

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", `{"rows":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(0), body["upserted"])
	assert.NotContains(t, body, "userIdPrefix")

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Rows)
}

func TestIngest_TooManyRows(t *testing.T) {
	srv, store := newTestServer(t, Config{MaxBodyBytes: 64 << 20})

	rows := make([]map[string]any, storage.MaxBatchRows+1)
	for i := range rows {
		rows[i] = map[string]any{"day": "2026-02-20", "domain": fmt.Sprintf("d%d.com", i), "visits": 1}
	}
	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", map[string]any{"rows": rows})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Too many rows", decode(t, rec)["error"])

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Rows)
}

func TestIngest_BodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, Config{MaxBodyBytes: 64})

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a",
		`{"rows":[{"day":"2026-02-20","domain":"`+strings.Repeat("a", 200)+`.com","visits":1}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload too large", decode(t, rec)["error"])
}

func TestIngest_ValidationRejectsBatch(t *testing.T) {
	srv, store := newTestServer(t, Config{})

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", map[string]any{
		"rows": []map[string]any{
			{"day": "2026-02-20", "domain": "a.com", "visits": 1},
			{"day": "Feb 20", "domain": "b.com", "visits": 1},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Invalid rows", body["error"])
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, float64(1), details[0].(map[string]any)["row"])

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Rows)
}

func TestIngest_MalformedVisitsCoerced(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", `{
		"deviceId": 42,
		"windowDays": "30",
		"generatedAt": "soon",
		"rows": [
			{"day":"2026-02-20","domain":"str.com","visits":"5"},
			{"day":"2026-02-20","domain":"null.com","visits":null},
			{"day":"2026-02-20","domain":"bool.com","visits":true},
			{"day":"2026-02-20","domain":"huge.com","visits":1e400},
			{"day":"2026-02-20","domain":"word.com","visits":"many"},
			{"day":"2026-02-20","domain":"obj.com","visits":{"n":1}}
		]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(6), decode(t, rec)["upserted"])

	rec = do(t, srv, http.MethodGet, "/api/sync/summary?days=30", "bd_sk_a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))

	got := make(map[string]int)
	for _, r := range sum.DomainDaily {
		got[r.Domain] = r.Visits
	}
	assert.Equal(t, map[string]int{
		"str.com":  5,
		"null.com": 0,
		"bool.com": 0,
		"huge.com": math.MaxInt32,
		"word.com": 0,
		"obj.com":  0,
	}, got)
}

func TestIngest_IdentitiesIsolated(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", `{"rows":[{"day":"2026-02-20","domain":"a.com","visits":5}]}`)
	do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_b", `{"rows":[{"day":"2026-02-20","domain":"b.com","visits":2}]}`)

	rec := do(t, srv, http.MethodGet, "/api/sync/summary", "bd_sk_b", nil)
	var sum summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 30, sum.Days)
	assert.Equal(t, []storage.DomainDaily{{Day: "2026-02-20", Domain: "b.com", Visits: 2}}, sum.DomainDaily)
}

// --- Summary ---

func TestSummary_DaysParsing(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	tests := map[string]int{
		"":           30,
		"?days=abc":  30,
		"?days=0":    1,
		"?days=-4":   1,
		"?days=9999": 365,
		"?days=14":   14,
		"?days=7.9":  7,
	}
	for query, want := range tests {
		t.Run(query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/sync/summary"+query, "bd_sk_a", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, float64(want), body["days"])
		})
	}
}

func TestSummary_EmptyIdentity(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	rec := do(t, srv, http.MethodGet, "/api/sync/summary", "bd_sk_new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Nil(t, body["lastSync"])
	assert.Equal(t, []any{}, body["domainDaily"])
}

// --- CORS / OPTIONS ---

func TestOptions_NoContentWithCORS(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, path := range []string{"/api/sync/ingest", "/api/sync/summary"} {
		rec := do(t, srv, http.MethodOptions, path, "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assertCORS(t, rec)
	}
}

func TestOptions_BrowserPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodOptions, "/api/sync/ingest", nil)
	req.Header.Set("Origin", "https://dash.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assertCORS(t, rec)
}

func TestOptions_BrowserPreflightSingleMethod(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, method := range []string{"GET", "POST"} {
		req := httptest.NewRequest(http.MethodOptions, "/api/sync/summary", nil)
		req.Header.Set("Origin", "https://dash.example")
		req.Header.Set("Access-Control-Request-Method", method)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, method)
		assertCORS(t, rec)
	}
}

func TestCORS_ActualRequestWithOrigin(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/sync/summary", nil)
	req.Header.Set("Origin", "https://dash.example")
	req.Header.Set("Authorization", "Bearer bd_sk_a")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)
}

// --- Rate limit ---

func TestRateLimit_PerIdentity(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/api/sync/summary", "bd_sk_a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/api/sync/summary", "bd_sk_a", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", decode(t, rec)["error"])
	assertCORS(t, rec)

	rec = do(t, srv, http.MethodGet, "/api/sync/summary", "bd_sk_b", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "other identities unaffected")
}

// --- Failures ---

type failingStore struct {
	pingErr error
	calls   atomic.Int32
}

func (f *failingStore) UpsertDomainDaily(context.Context, string, []storage.DomainDailyRow) (int, error) {
	f.calls.Add(1)
	return 0, errors.New("connection reset")
}

func (f *failingStore) DomainDailySince(context.Context, string, int) (*storage.Summary, error) {
	return nil, errors.New("connection reset")
}

func (f *failingStore) Ping(context.Context) error { return f.pingErr }

func TestIngest_StoreFailure(t *testing.T) {
	store := &failingStore{}
	srv, err := New(store, Config{}, logger.Discard())
	require.NoError(t, err)
	defer srv.Close()

	rec := do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", `{"rows":[{"day":"2026-02-20","domain":"a.com","visits":1}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Internal error", body["error"])
	assert.Equal(t, "connection reset", body["detail"])
	assertCORS(t, rec)

	rec = do(t, srv, http.MethodGet, "/api/sync/summary", "bd_sk_a", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "connection reset", decode(t, rec)["detail"])
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down, err := New(&failingStore{pingErr: errors.New("down")}, Config{}, logger.Discard())
	require.NoError(t, err)
	defer down.Close()
	rec = do(t, down, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Database unavailable", body["error"])
	assert.Equal(t, "down", body["detail"])
}

func TestMetrics_Exposed(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", `{"rows":[{"day":"2026-02-20","domain":"a.com","visits":1}]}`)
	do(t, srv, http.MethodPost, "/api/sync/ingest", "bd_sk_a", `nope`)

	rec := do(t, srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `browsedash_ingest_batches_total{outcome="ok"} 1`)
	assert.Contains(t, text, `browsedash_ingest_batches_total{outcome="invalid"} 1`)
	assert.Contains(t, text, `browsedash_ingest_rows_total 1`)
}

// --- Retention ---

type recordingPruner struct {
	cutoffs chan string
}

func (p *recordingPruner) PruneBefore(_ context.Context, cutoff string) (int64, error) {
	p.cutoffs <- cutoff
	return 0, nil
}

func TestRetentionCutoff(t *testing.T) {
	assert.Equal(t, "2025-02-21", RetentionCutoff(testNow, 365))
	assert.Equal(t, "2026-02-20", RetentionCutoff(testNow, 1))
}

func TestRunRetention_PrunesOnStart(t *testing.T) {
	p := &recordingPruner{cutoffs: make(chan string, 4)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- RunRetention(ctx, p, 400, time.Hour, logger.Discard()) }()

	select {
	case cutoff := <-p.cutoffs:
		assert.Equal(t, RetentionCutoff(time.Now(), 400), cutoff)
	case <-time.After(5 * time.Second):
		t.Fatal("no prune on start")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRunRetention_RejectsNonPositiveDays(t *testing.T) {
	err := RunRetention(context.Background(), &recordingPruner{}, 0, time.Hour, logger.Discard())
	assert.Error(t, err)
}

func TestWriteAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppError(rec, apperrors.Unauthorized("Missing Bearer token"), logger.Discard())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Missing Bearer token", body["error"])
	assert.NotContains(t, body, "detail")

	rec = httptest.NewRecorder()
	writeAppError(rec, fmt.Errorf("ingest: %w", apperrors.Wrap(errors.New("dial tcp"), apperrors.CodeUnavailable, "Database unavailable")), logger.Discard())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "Database unavailable", body["error"])
	assert.Equal(t, "dial tcp", body["detail"])

	rec = httptest.NewRecorder()
	writeAppError(rec, errors.New("boom"), logger.Discard())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "Internal error", body["error"])
	assert.Equal(t, "boom", body["detail"])
}
