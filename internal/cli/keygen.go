package cli

import (
	"fmt"

	"github.com/runnerr0/browsedash/internal/config"
	"github.com/runnerr0/browsedash/internal/identity"
)

// Execute implements the go-flags Commander interface for KeygenCommand.
func (c *KeygenCommand) Execute(args []string) error {
	key, err := identity.GenerateSyncKey()
	if err != nil {
		return err
	}
	prefix := identity.Prefix(identity.UserID(key))

	var savedTo string
	if c.Save {
		path, err := configPath(c.globals)
		if err != nil {
			return err
		}
		cfg, err := config.LoadFileOrDefault(path)
		if err != nil {
			return err
		}
		cfg.Sync.SyncKey = key
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		savedTo = path
	}

	if c.globals.JSON {
		return printJSON(map[string]string{
			"syncKey":      key,
			"userIdPrefix": prefix,
			"savedTo":      savedTo,
		})
	}

	fmt.Println(key)
	fmt.Printf("User ID prefix: %s\n", prefix)
	if savedTo != "" {
		fmt.Printf("Saved to %s\n", savedTo)
	} else {
		fmt.Println("Use the same key on every device. Pass --save to store it in the config file.")
	}
	return nil
}
