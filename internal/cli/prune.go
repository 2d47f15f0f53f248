package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/browsedash/internal/server"
	"github.com/runnerr0/browsedash/internal/storage"
)

type pruneJSON struct {
	Cutoff    string `json:"cutoff"`
	DryRun    bool   `json:"dryRun"`
	Deleted   int64  `json:"deleted"`
	Remaining int64  `json:"remaining"`
	OldestDay string `json:"oldestDay,omitempty"`
}

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	days := cfg.Retention.Days
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return err
		}
		days = int(d / (24 * time.Hour))
	}
	if days <= 0 {
		return fmt.Errorf("--older-than must be at least 1d (or set retention.days)")
	}

	dsn := cfg.Server.DatabaseURL
	if c.DatabaseURL != "" {
		dsn = c.DatabaseURL
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := storage.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open store %s: %w", storage.Redact(dsn), err)
	}
	defer store.Close()

	return c.executeWithStore(ctx, store, days, time.Now())
}

// executeWithStore prunes rows older than days before now from store.
func (c *PruneCommand) executeWithStore(ctx context.Context, store *storage.Store, days int, now time.Time) error {
	cutoff := server.RetentionCutoff(now, days)

	var (
		n   int64
		err error
	)
	if c.DryRun {
		n, err = store.CountBefore(ctx, cutoff)
	} else {
		n, err = store.PruneBefore(ctx, cutoff)
	}
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	if c.globals.JSON {
		return printJSON(pruneJSON{
			Cutoff:    cutoff,
			DryRun:    c.DryRun,
			Deleted:   n,
			Remaining: stats.Rows - dryRunPending(c.DryRun, n),
			OldestDay: stats.OldestDay,
		})
	}

	if c.DryRun {
		fmt.Printf("Would delete %s rows before %s (dry run)\n", humanize.Comma(n), cutoff)
		fmt.Printf("Would keep %s rows\n", humanize.Comma(stats.Rows-n))
		return nil
	}
	fmt.Printf("Deleted %s rows before %s\n", humanize.Comma(n), cutoff)
	fmt.Printf("Remaining: %s rows from %s identities", humanize.Comma(stats.Rows), humanize.Comma(stats.Identities))
	if stats.OldestDay != "" {
		fmt.Printf(", %s to %s", stats.OldestDay, stats.NewestDay)
	}
	fmt.Println()
	return nil
}

func dryRunPending(dryRun bool, n int64) int64 {
	if dryRun {
		return n
	}
	return 0
}
