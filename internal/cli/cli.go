package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve     *ServeCommand
	Collect   *CollectCommand
	Import    *ImportCommand
	Watch     *WatchCommand
	Dashboard *DashboardCommand
	Keygen    *KeygenCommand
	Status    *StatusCommand
	Prune     *PruneCommand
	Clear     *ClearCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "browsedash"
	parser.LongDescription = "Browsing history dashboard: collect per-domain daily visit counts and sync them across devices."

	cmds := &commands{
		Serve:     &ServeCommand{globals: &globals, version: version},
		Collect:   &CollectCommand{globals: &globals, version: version},
		Import:    &ImportCommand{globals: &globals, version: version},
		Watch:     &WatchCommand{globals: &globals, version: version},
		Dashboard: &DashboardCommand{globals: &globals, version: version},
		Keygen:    &KeygenCommand{globals: &globals, version: version},
		Status:    &StatusCommand{globals: &globals, version: version},
		Prune:     &PruneCommand{globals: &globals, version: version},
		Clear:     &ClearCommand{globals: &globals, version: version, stdin: os.Stdin},
	}

	parser.AddCommand("serve", "Run the sync server", "Run the HTTP sync server, plus the retention job when retention is enabled.", cmds.Serve)
	parser.AddCommand("collect", "Collect history from the browser bridge", "Run one collection from the live browser bridge, save the snapshot and push to the sync server.", cmds.Collect)
	parser.AddCommand("import", "Import a Chrome History file", "Aggregate a Chrome History SQLite file into the local snapshot and push it to the sync server.", cmds.Import)
	parser.AddCommand("watch", "Collect on a schedule", "Run the collector on a cron schedule until interrupted.", cmds.Watch)
	parser.AddCommand("dashboard", "Show top domains and daily totals", "Resolve history from the sync server, the bridge or the local snapshot and print top domains and daily totals.", cmds.Dashboard)
	parser.AddCommand("keygen", "Generate a sync key", "Generate a new sync key, optionally saving it into the config file.", cmds.Keygen)
	parser.AddCommand("status", "Show snapshot and sync health", "Show the local snapshot, sync health and reachability of the bridge and server.", cmds.Status)
	parser.AddCommand("prune", "Delete old rows from the server store", "Delete domain_daily rows older than a cutoff from the server database.", cmds.Prune)
	parser.AddCommand("clear", "Delete the local snapshot", "Delete the local snapshot file. Destructive operation with safety prompt.", cmds.Clear)

	return parser, &globals, cmds
}

// Run is the main entry point for the browsedash CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("browsedash %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
