package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runnerr0/browsedash/internal/config"
	"github.com/runnerr0/browsedash/internal/server"
	"github.com/runnerr0/browsedash/internal/storage"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port > 0 {
		cfg.Server.Port = c.Port
	}
	if c.DatabaseURL != "" {
		cfg.Server.DatabaseURL = c.DatabaseURL
	}
	log := newLogger(cfg, c.globals.Verbose)

	ctx, stop := signalContext()
	defer stop()

	store, err := storage.Open(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store %s: %w", storage.Redact(cfg.Server.DatabaseURL), err)
	}
	defer store.Close()

	log.Info("store ready",
		"dialect", store.Dialect(),
		"database", storage.Redact(cfg.Server.DatabaseURL),
		"version", c.version,
	)
	return c.executeWithStore(ctx, cfg, store, log)
}

// executeWithStore serves until ctx is canceled, running the retention job
// alongside when retention.days is set.
func (c *ServeCommand) executeWithStore(ctx context.Context, cfg *config.Config, store *storage.Store, log *slog.Logger) error {
	srv, err := server.New(store, server.Config{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, addr)
	})
	if cfg.Retention.Days > 0 {
		interval := time.Duration(cfg.Retention.PruneIntervalHours) * time.Hour
		g.Go(func() error {
			return server.RunRetention(gctx, store, cfg.Retention.Days, interval, log.With("component", "retention"))
		})
	}
	return g.Wait()
}
