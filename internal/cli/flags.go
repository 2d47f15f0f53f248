package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand runs the sync server.
type ServeCommand struct {
	Host        string `long:"host" description:"Override listen host"`
	Port        int    `long:"port" description:"Override listen port"`
	DatabaseURL string `long:"database-url" description:"Override database URL (file:, libsql://, postgres://)"`

	globals *GlobalFlags
	version string
}

// CollectCommand runs one collection from the live bridge.
type CollectCommand struct {
	Days   int  `long:"days" description:"Window in days (1-365); defaults to sync.window_days"`
	NoPush bool `long:"no-push" description:"Save the snapshot without contacting the sync server"`

	globals *GlobalFlags
	version string
}

// ImportCommand imports a Chrome History file.
type ImportCommand struct {
	File   string `long:"file" description:"Path to a Chrome History SQLite file; defaults to collect.history_file"`
	NoPush bool   `long:"no-push" description:"Save the snapshot without contacting the sync server"`

	globals *GlobalFlags
	version string
}

// WatchCommand collects on a schedule.
type WatchCommand struct {
	Schedule string `long:"schedule" description:"Cron spec or @every interval; defaults to sync.schedule"`

	globals *GlobalFlags
	version string
}

// DashboardCommand prints the resolved history view.
type DashboardCommand struct {
	Days int `long:"days" description:"Window in days (1-365); defaults to sync.window_days"`
	Top  int `long:"top" description:"Number of top domains to print" default:"10"`

	globals *GlobalFlags
	version string
}

// KeygenCommand generates a sync key.
type KeygenCommand struct {
	Save bool `long:"save" description:"Write the key into the config file"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows snapshot and sync health.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// PruneCommand deletes old rows from the server store.
type PruneCommand struct {
	OlderThan   string `long:"older-than" description:"Delete days older than this (e.g., 400d, 12w); defaults to retention.days"`
	DryRun      bool   `long:"dry-run" description:"Show what would be pruned without deleting"`
	DatabaseURL string `long:"database-url" description:"Override database URL"`

	globals *GlobalFlags
	version string
}

// ClearCommand deletes the local snapshot.
type ClearCommand struct {
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	stdin   io.Reader
}
