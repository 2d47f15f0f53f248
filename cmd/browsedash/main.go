package main

import (
	"os"

	"github.com/runnerr0/browsedash/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// go-flags prints parse and command errors itself.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
