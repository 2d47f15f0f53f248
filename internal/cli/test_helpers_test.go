package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/browsedash/internal/bridge"
	"github.com/runnerr0/browsedash/internal/config"
	"github.com/runnerr0/browsedash/internal/logger"
	"github.com/runnerr0/browsedash/internal/server"
	"github.com/runnerr0/browsedash/internal/storage"
)

// unreachableURL refuses connections immediately.
const unreachableURL = "http://127.0.0.1:1"

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// writeTestConfig saves a config pointing at a temp data dir with both the
// bridge and the sync server unreachable, after applying mutate.
func writeTestConfig(t *testing.T, mutate func(*config.Config)) (path string, cfg *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Sync.ServerURL = unreachableURL
	cfg.Sync.CheckTimeoutSeconds = 1
	cfg.Collect.BridgeURL = unreachableURL
	cfg.Logging.Level = "error"
	if mutate != nil {
		mutate(cfg)
	}
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path, cfg
}

// newTestBridge serves /status and /history with items.
func newTestBridge(t *testing.T, items []bridge.Item) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bridge.Status{OK: true, ExtID: "ext-test", Version: "1.0.0"})
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bridge.HistoryResponse{Items: items, TotalURLs: len(items)})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestSyncServer runs the real sync server over an in-memory store.
func newTestSyncServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, err := server.New(store, server.Config{MaxBodyBytes: 8 << 20, RateLimitRPS: 100, RateLimitBurst: 100}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, store
}

func millisAgo(d time.Duration) float64 {
	return float64(time.Now().Add(-d).UnixMilli())
}
