package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/runnerr0/browsedash/internal/config"
	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/identity"
	"github.com/runnerr0/browsedash/internal/snapshot"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version         string     `json:"version"`
	SnapshotPath    string     `json:"snapshotPath"`
	SnapshotSource  string     `json:"snapshotSource,omitempty"`
	SavedAt         *time.Time `json:"savedAt,omitempty"`
	LastSync        *time.Time `json:"lastSync,omitempty"`
	Domains         int        `json:"domains"`
	Days            int        `json:"days"`
	TotalVisits     int        `json:"totalVisits"`
	DeviceID        string     `json:"deviceId,omitempty"`
	SyncConfigured  bool       `json:"syncConfigured"`
	UserIDPrefix    string     `json:"userIdPrefix,omitempty"`
	ServerURL       string     `json:"serverUrl"`
	LastServerSync  *time.Time `json:"lastServerSync,omitempty"`
	LastServerError string     `json:"lastServerError,omitempty"`
	BridgeReachable bool       `json:"bridgeReachable"`
	ServerReachable bool       `json:"serverReachable"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	snaps, err := openSnapshots(cfg, newLogger(cfg, c.globals.Verbose))
	if err != nil {
		return err
	}
	snap, err := snaps.Load()
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	timeout := checkTimeout(cfg)
	out := c.collect(cfg, snaps.Path(), snap)
	out.BridgeReachable = checkEndpoint(cfg.Collect.BridgeURL+"/status", timeout)
	out.ServerReachable = checkEndpoint(cfg.Sync.ServerURL+"/healthz", timeout)

	if c.globals.JSON {
		return printJSON(out)
	}
	c.printHuman(out)
	return nil
}

func (c *StatusCommand) collect(cfg *config.Config, path string, snap *snapshot.Snapshot) statusJSON {
	out := statusJSON{
		Version:        c.version,
		SnapshotPath:   path,
		SyncConfigured: cfg.Sync.SyncKey != "",
		ServerURL:      cfg.Sync.ServerURL,
	}
	if out.SyncConfigured {
		out.UserIDPrefix = identity.Prefix(identity.UserID(cfg.Sync.SyncKey))
	}
	if snap == nil {
		return out
	}

	out.SnapshotSource = string(snap.Source)
	out.SavedAt = timePtr(snapshot.Time(&snap.SavedAt))
	out.LastSync = timePtr(snapshot.Time(snap.LastSync))
	out.LastServerSync = timePtr(snapshot.Time(snap.LastServerSync))
	out.LastServerError = snap.LastServerError
	out.DeviceID = snap.DeviceID
	out.Domains = len(history.TopDomains(snap.Visits))
	out.Days = len(history.DailyTotals(snap.Visits))
	out.TotalVisits = history.TotalVisits(snap.Visits)
	return out
}

func (c *StatusCommand) printHuman(s statusJSON) {
	fmt.Printf("browsedash %s\n\n", s.Version)

	fmt.Printf("Snapshot:      %s\n", s.SnapshotPath)
	if s.SnapshotSource == "" {
		fmt.Println("               none yet")
	} else {
		fmt.Printf("Source:        %s\n", s.SnapshotSource)
		fmt.Printf("Saved:         %s\n", formatAgo(deref(s.SavedAt)))
		fmt.Printf("Last collect:  %s\n", formatAgo(deref(s.LastSync)))
		fmt.Printf("Coverage:      %s visits, %s domains over %s days\n",
			humanize.Comma(int64(s.TotalVisits)),
			humanize.Comma(int64(s.Domains)),
			humanize.Comma(int64(s.Days)))
		if s.DeviceID != "" {
			fmt.Printf("Device:        %s\n", s.DeviceID)
		}
	}

	fmt.Println()
	if s.SyncConfigured {
		fmt.Printf("Sync:          enabled (user %s)\n", s.UserIDPrefix)
	} else {
		fmt.Println("Sync:          disabled (run `browsedash keygen --save`)")
	}
	fmt.Printf("Server:        %s (%s)\n", s.ServerURL, reachable(s.ServerReachable))
	fmt.Printf("Last push:     %s\n", formatAgo(deref(s.LastServerSync)))
	if s.LastServerError != "" {
		fmt.Printf("Last error:    %s\n", s.LastServerError)
	}
	fmt.Printf("Bridge:        %s\n", reachable(s.BridgeReachable))
}

func reachable(ok bool) string {
	if ok {
		return "reachable"
	}
	return "not reachable"
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
