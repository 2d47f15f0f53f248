package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/browsedash/internal/bridge"
	"github.com/runnerr0/browsedash/internal/collector"
	"github.com/runnerr0/browsedash/internal/config"
	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/snapshot"
	"github.com/runnerr0/browsedash/internal/source"
	"github.com/runnerr0/browsedash/internal/syncclient"
)

const (
	serverStepTimeout    = 10 * time.Second
	extensionStepTimeout = 30 * time.Second
)

type dashboardJSON struct {
	Origin      string                `json:"origin"`
	Days        int                   `json:"days"`
	LastSync    *time.Time            `json:"lastSync"`
	TotalVisits int                   `json:"totalVisits"`
	TopDomains  []history.DomainTotal `json:"topDomains"`
	Daily       []history.DayTotal    `json:"daily"`
}

// Execute implements the go-flags Commander interface for DashboardCommand.
func (c *DashboardCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	log := newLogger(cfg, c.globals.Verbose)

	ctx, stop := signalContext()
	defer stop()

	days := c.Days
	if days <= 0 {
		days = cfg.Sync.WindowDays
	}
	days = history.ClampDays(days)

	res, attempts, err := resolveHistory(ctx, cfg, days, log)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if a.Err != nil {
			log.Debug("source skipped", "source", a.Name, "error", a.Err)
		}
	}
	return c.print(res, days, time.Now())
}

// resolveHistory walks the sources in order: the sync server (when a key
// is configured), the live bridge, then the local snapshot. Successful
// server and bridge reads refresh the snapshot.
func resolveHistory(ctx context.Context, cfg *config.Config, days int, log *slog.Logger) (*source.Result, []source.Attempt, error) {
	col, snaps, err := newCollector(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	var steps []source.Step
	if key := cfg.Sync.SyncKey; key != "" {
		sc := syncclient.New(cfg.Sync.ServerURL, serverStepTimeout)
		steps = append(steps, source.Step{
			Name:    "server",
			Timeout: serverStepTimeout,
			Load: func(ctx context.Context) (*source.Result, error) {
				return loadFromServer(ctx, sc, key, days, snaps, log)
			},
		})
	}

	br := bridge.New(cfg.Collect.BridgeURL, checkTimeout(cfg))
	steps = append(steps,
		source.Step{
			Name:    "extension",
			Timeout: extensionStepTimeout,
			Load: func(ctx context.Context) (*source.Result, error) {
				return loadFromBridge(ctx, br, col, days)
			},
		},
		source.Step{
			Name: "cache",
			Load: func(ctx context.Context) (*source.Result, error) {
				return loadFromSnapshot(snaps)
			},
		},
	)

	res, attempts := source.NewChain(log, steps...).Resolve(ctx)
	return res, attempts, nil
}

func loadFromServer(ctx context.Context, sc *syncclient.Client, key string, days int, snaps *snapshot.Store, log *slog.Logger) (*source.Result, error) {
	resp, err := sc.Summary(ctx, key, days)
	if err != nil {
		return nil, err
	}
	res := &source.Result{Origin: "server", Visits: resp.Visits()}
	if resp.LastSync != nil {
		res.LastSync = *resp.LastSync
	}
	err = snaps.Save(&snapshot.Snapshot{
		Source:   snapshot.OriginCache,
		Visits:   res.Visits,
		LastSync: snapshot.Millis(res.LastSync),
	})
	if err != nil {
		log.Warn("snapshot refresh failed", "error", err)
	}
	return res, nil
}

func loadFromBridge(ctx context.Context, br *bridge.Client, col *collector.Collector, days int) (*source.Result, error) {
	st, err := br.Status(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := col.Collect(ctx, days, false)
	if err != nil {
		return nil, err
	}
	return &source.Result{
		Origin:   "extension",
		Visits:   rep.Normalized,
		LastSync: time.Now(),
		ExtID:    st.ExtID,
	}, nil
}

func loadFromSnapshot(snaps *snapshot.Store) (*source.Result, error) {
	snap, err := snaps.Load()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, source.ErrUnavailable
	}
	return &source.Result{
		Origin:   "cache",
		Visits:   snap.Visits,
		LastSync: snapshot.Time(snap.LastSync),
		ExtID:    snap.ExtID,
		Bucket:   snapshotBucketer(snap.Source),
	}, nil
}

// snapshotBucketer returns the day strategy a snapshot's rows were built
// with. File imports bucket by local date, everything else by UTC.
func snapshotBucketer(origin snapshot.Origin) history.Bucketer {
	if origin == snapshot.OriginFile {
		return history.LocalDay(time.Local)
	}
	return history.UTCDay
}

func (c *DashboardCommand) print(res *source.Result, days int, now time.Time) error {
	visits := history.NewWindow(days, now, res.Bucketer()).Visits(res.Visits)
	top := history.TopDomains(visits)
	if c.Top > 0 && len(top) > c.Top {
		top = top[:c.Top]
	}
	daily := history.DailyTotals(visits)
	total := history.TotalVisits(visits)

	if c.globals.JSON {
		out := dashboardJSON{
			Origin:      res.Origin,
			Days:        days,
			TotalVisits: total,
			TopDomains:  top,
			Daily:       daily,
		}
		if !res.LastSync.IsZero() {
			t := res.LastSync.UTC()
			out.LastSync = &t
		}
		return printJSON(out)
	}

	fmt.Printf("Source:        %s\n", res.Origin)
	fmt.Printf("Last sync:     %s\n", formatAgo(res.LastSync))
	fmt.Printf("Window:        %d days\n", days)
	fmt.Printf("Total visits:  %s\n", humanize.Comma(int64(total)))

	if len(visits) == 0 {
		fmt.Println()
		fmt.Println("No history yet. Run `browsedash collect` or `browsedash import --file <History>`.")
		return nil
	}

	fmt.Println()
	fmt.Println("Top Domains:")
	for _, d := range top {
		fmt.Printf("  %-30s %10s\n", d.Domain, humanize.Comma(int64(d.Visits)))
	}

	fmt.Println()
	fmt.Println("Daily Visits:")
	for _, d := range daily {
		fmt.Printf("  %s %10s\n", d.Date, humanize.Comma(int64(d.Visits)))
	}
	return nil
}
