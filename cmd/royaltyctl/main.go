// The royaltyctl command is the operator CLI for the royalty engine.
// It talks to a running apiserver through the pkg/client SDK.
package main

import (
	"fmt"
	"os"

	"github.com/minegov/royalty-engine/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
