// Package collector runs the device-side pipeline: read raw visits, bucket
// and aggregate them, keep the requested window, save the local snapshot
// and push the rows to the sync server.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/identity"
	"github.com/runnerr0/browsedash/internal/snapshot"
	"github.com/runnerr0/browsedash/internal/syncclient"
)

// ErrBusy is returned when a collection is already in flight.
var ErrBusy = errors.New("collection already running")

// Pusher sends rows to the sync server.
type Pusher interface {
	Push(ctx context.Context, key string, req *syncclient.IngestRequest) (*syncclient.IngestResponse, error)
}

// extIDSource is implemented by sources that can identify the browser
// extension feeding them.
type extIDSource interface {
	ExtID(ctx context.Context) (string, error)
}

// Options configures a Collector.
type Options struct {
	// Live is the source used by Collect and Schedule.
	Live       history.Source
	Snapshots  *snapshot.Store
	Pusher     Pusher
	SyncKey    string
	Denylist   history.Denylist
	WindowDays int
	// ImportWindowDays bounds Import. Zero keeps a full year.
	ImportWindowDays int
	Log              *slog.Logger
	Now              func() time.Time
}

// Report describes one completed run.
type Report struct {
	Origin     snapshot.Origin
	WindowDays int
	Seen       int
	Skipped    int
	Entries    int
	Visits     int
	Pushed     bool
	Upserted   int
	PushErr    error
	SaveErr    error
	Duration   time.Duration
	Normalized []history.NormalizedVisit
}

// Collector runs collections one at a time.
type Collector struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time
	mu   sync.Mutex
}

// New returns a Collector.
func New(opts Options) *Collector {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = history.DefaultWindowDays
	}
	if opts.ImportWindowDays <= 0 {
		opts.ImportWindowDays = history.ImportRetentionDays
	}
	return &Collector{opts: opts, log: log.With("component", "collector"), now: now}
}

// Collect runs one collection from the live source over the trailing days.
// Zero days uses the configured window. With push false the server is not
// contacted even when a sync key is configured.
func (c *Collector) Collect(ctx context.Context, days int, push bool) (*Report, error) {
	if c.opts.Live == nil {
		return nil, errors.New("no live source configured")
	}
	if days <= 0 {
		days = c.opts.WindowDays
	}
	return c.run(ctx, c.opts.Live, history.ClampDays(days), snapshot.OriginExtension, push)
}

// Import runs the pipeline over src, keeping the import retention window
// so later views at smaller windows never need a second import.
func (c *Collector) Import(ctx context.Context, src history.Source, push bool) (*Report, error) {
	return c.run(ctx, src, c.opts.ImportWindowDays, snapshot.OriginFile, push)
}

func (c *Collector) run(ctx context.Context, src history.Source, days int, origin snapshot.Origin, push bool) (*Report, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	start := c.now()
	raw, err := src.Visits(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("read %s source: %w", src.Name(), err)
	}

	window := history.NewWindow(days, start, src.Bucketer())
	agg := history.NewAggregator(src.Bucketer(), c.opts.Denylist)
	for _, v := range window.Raw(raw) {
		agg.Add(v)
	}
	entries := agg.Entries()
	normalized := history.Normalize(entries)

	rep := &Report{
		Origin:     origin,
		WindowDays: days,
		Seen:       agg.Seen(),
		Skipped:    agg.Skipped(),
		Entries:    len(entries),
		Visits:     history.TotalVisits(normalized),
		Normalized: normalized,
	}

	if c.opts.Snapshots != nil {
		snap := &snapshot.Snapshot{
			Source:   origin,
			Visits:   normalized,
			LastSync: snapshot.Millis(start),
		}
		if es, ok := src.(extIDSource); ok {
			if id, err := es.ExtID(ctx); err == nil {
				snap.ExtID = id
			}
		}
		if err := c.opts.Snapshots.Save(snap); err != nil {
			rep.SaveErr = err
			c.log.Warn("snapshot save failed", "error", err)
		}
	}

	if push && c.opts.SyncKey != "" && c.opts.Pusher != nil {
		rep.Pushed = true
		rep.Upserted, rep.PushErr = c.push(ctx, entries, days, start)
		if c.opts.Snapshots != nil {
			if err := c.opts.Snapshots.RecordSync(c.now(), rep.PushErr); err != nil {
				c.log.Warn("record sync state failed", "error", err)
			}
		}
		if rep.PushErr != nil {
			c.log.Warn("push to server failed", "error", rep.PushErr)
		}
	}

	rep.Duration = c.now().Sub(start)
	c.log.Info("collection finished",
		"source", src.Name(),
		"days", days,
		"seen", rep.Seen,
		"skipped", rep.Skipped,
		"entries", rep.Entries,
		"pushed", rep.Pushed,
		"upserted", rep.Upserted,
		"duration", rep.Duration,
	)
	return rep, nil
}

func (c *Collector) push(ctx context.Context, entries []history.AggregateEntry, days int, at time.Time) (int, error) {
	deviceID := ""
	if c.opts.Snapshots != nil {
		id, err := c.opts.Snapshots.DeviceID()
		if err != nil {
			c.log.Warn("read device id failed", "error", err)
		}
		deviceID = id
	}
	if deviceID == "" {
		deviceID = identity.NewDeviceID()
	}

	resp, err := c.opts.Pusher.Push(ctx, c.opts.SyncKey, &syncclient.IngestRequest{
		DeviceID:    deviceID,
		WindowDays:  days,
		GeneratedAt: at.UnixMilli(),
		Rows:        syncclient.RowsFromEntries(entries),
	})
	if err != nil {
		return 0, err
	}
	return resp.Upserted, nil
}
