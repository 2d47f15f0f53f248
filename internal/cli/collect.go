package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/browsedash/internal/bridge"
	"github.com/runnerr0/browsedash/internal/collector"
	"github.com/runnerr0/browsedash/internal/history/chromedb"
)

type reportJSON struct {
	Origin     string `json:"origin"`
	WindowDays int    `json:"windowDays"`
	Seen       int    `json:"seen"`
	Skipped    int    `json:"skipped"`
	Entries    int    `json:"entries"`
	Visits     int    `json:"visits"`
	Pushed     bool   `json:"pushed"`
	Upserted   int    `json:"upserted"`
	PushError  string `json:"pushError,omitempty"`
	SaveError  string `json:"saveError,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Execute implements the go-flags Commander interface for CollectCommand.
func (c *CollectCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	log := newLogger(cfg, c.globals.Verbose)

	col, _, err := newCollector(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rep, err := col.Collect(ctx, c.Days, !c.NoPush)
	if err != nil {
		if bridge.IsUnavailable(err) {
			return fmt.Errorf("browser bridge not reachable at %s: %w", cfg.Collect.BridgeURL, err)
		}
		return err
	}
	return printReport(rep, c.globals.JSON)
}

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	path := c.File
	if path == "" {
		path = cfg.Collect.HistoryFile
	}
	if path == "" {
		return fmt.Errorf("--file is required (or set collect.history_file)")
	}

	log := newLogger(cfg, c.globals.Verbose)
	col, _, err := newCollector(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rep, err := c.executeWithCollector(ctx, col, path)
	if err != nil {
		return err
	}
	return printReport(rep, c.globals.JSON)
}

func (c *ImportCommand) executeWithCollector(ctx context.Context, col *collector.Collector, path string) (*collector.Report, error) {
	rep, err := col.Import(ctx, chromedb.NewSource(path), !c.NoPush)
	switch {
	case errors.Is(err, chromedb.ErrEmpty):
		return nil, fmt.Errorf("%s has no history rows", path)
	case errors.Is(err, chromedb.ErrSchema):
		return nil, fmt.Errorf("%s is not a Chrome History database: %w", path, err)
	case err != nil:
		return nil, err
	}
	return rep, nil
}

// Execute implements the go-flags Commander interface for WatchCommand.
func (c *WatchCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	spec := c.Schedule
	if spec == "" {
		spec = cfg.Sync.Schedule
	}
	log := newLogger(cfg, c.globals.Verbose)

	col, _, err := newCollector(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	log.Info("watching", "schedule", spec, "bridge", cfg.Collect.BridgeURL, "sync", cfg.Sync.SyncKey != "")
	return col.Schedule(ctx, spec)
}

func printReport(rep *collector.Report, asJSON bool) error {
	if asJSON {
		out := reportJSON{
			Origin:     string(rep.Origin),
			WindowDays: rep.WindowDays,
			Seen:       rep.Seen,
			Skipped:    rep.Skipped,
			Entries:    rep.Entries,
			Visits:     rep.Visits,
			Pushed:     rep.Pushed,
			Upserted:   rep.Upserted,
			DurationMS: rep.Duration.Milliseconds(),
		}
		if rep.PushErr != nil {
			out.PushError = rep.PushErr.Error()
		}
		if rep.SaveErr != nil {
			out.SaveError = rep.SaveErr.Error()
		}
		return printJSON(out)
	}

	fmt.Printf("Collected from %s (last %d days)\n", rep.Origin, rep.WindowDays)
	fmt.Printf("  URLs read:     %s\n", humanize.Comma(int64(rep.Seen)))
	fmt.Printf("  URLs skipped:  %s\n", humanize.Comma(int64(rep.Skipped)))
	fmt.Printf("  Domain-days:   %s\n", humanize.Comma(int64(rep.Entries)))
	fmt.Printf("  Visits:        %s\n", humanize.Comma(int64(rep.Visits)))
	if rep.SaveErr != nil {
		fmt.Printf("  Snapshot:      not saved (%v)\n", rep.SaveErr)
	}
	switch {
	case !rep.Pushed:
		fmt.Println("  Sync:          skipped")
	case rep.PushErr != nil:
		fmt.Printf("  Sync:          failed (%v)\n", rep.PushErr)
	default:
		fmt.Printf("  Sync:          %s rows upserted\n", humanize.Comma(int64(rep.Upserted)))
	}
	return nil
}
