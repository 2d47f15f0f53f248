package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/browsedash/internal/bridge"
	"github.com/runnerr0/browsedash/internal/collector"
	"github.com/runnerr0/browsedash/internal/config"
	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/logger"
	"github.com/runnerr0/browsedash/internal/snapshot"
	"github.com/runnerr0/browsedash/internal/syncclient"
)

// configPath returns the config file the command should read and write.
func configPath(g *GlobalFlags) (string, error) {
	if g != nil && g.Config != "" {
		return config.ExpandPath(g.Config)
	}
	return config.ExpandPath(config.DefaultConfigPath)
}

// loadConfig reads the config named by --config, or creates the default one.
func loadConfig(g *GlobalFlags) (*config.Config, error) {
	path, err := configPath(g)
	if err != nil {
		return nil, err
	}
	if g != nil && g.Config != "" {
		return config.Load(path)
	}
	return config.LoadOrCreateAt(path)
}

func newLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logger.New(logger.Config{
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

func checkTimeout(cfg *config.Config) time.Duration {
	if cfg.Sync.CheckTimeoutSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(cfg.Sync.CheckTimeoutSeconds) * time.Second
}

func openSnapshots(cfg *config.Config, log *slog.Logger) (*snapshot.Store, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return snapshot.New(dir, log), nil
}

// newCollector wires the bridge, the snapshot store and the sync client
// described by cfg into a Collector.
func newCollector(cfg *config.Config, log *slog.Logger) (*collector.Collector, *snapshot.Store, error) {
	snaps, err := openSnapshots(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	c := collector.New(collector.Options{
		Live:             bridge.New(cfg.Collect.BridgeURL, checkTimeout(cfg)),
		Snapshots:        snaps,
		Pusher:           syncclient.New(cfg.Sync.ServerURL, 0),
		SyncKey:          cfg.Sync.SyncKey,
		Denylist:         history.Denylist(cfg.Denylist()),
		WindowDays:       cfg.Sync.WindowDays,
		ImportWindowDays: cfg.Collect.ImportWindowDays,
		Log:              log,
	})
	return c, snaps, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// checkEndpoint reports whether a GET on url answers 200 within timeout.
func checkEndpoint(url string, timeout time.Duration) bool {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// formatAgo renders t relative to now, or "never" for the zero time.
func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", humanize.Time(t), t.Local().Format("2006-01-02 15:04"))
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, or w suffix)", s)
	}
}
