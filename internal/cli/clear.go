package cli

import (
	"bufio"
	"fmt"
	"strings"
)

// Execute implements the go-flags Commander interface for ClearCommand.
func (c *ClearCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	snaps, err := openSnapshots(cfg, newLogger(cfg, c.globals.Verbose))
	if err != nil {
		return err
	}

	if !c.Force {
		fmt.Printf("This deletes the local snapshot at %s.\n", snaps.Path())
		fmt.Println("Rows already pushed to the sync server are kept.")
		fmt.Print(`Type "CLEAR" to confirm: `)

		scanner := bufio.NewScanner(c.stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		if strings.TrimSpace(scanner.Text()) != "CLEAR" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	if err := snaps.Clear(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	if c.globals.JSON {
		return printJSON(map[string]any{"cleared": true, "path": snaps.Path()})
	}
	fmt.Println("Local snapshot cleared.")
	return nil
}
