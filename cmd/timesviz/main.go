// Command timesviz explores TIMES energy-system model results stored
// in a DuckDB reporting database.
package main

import (
	"os"

	"github.com/speedlocal-labs/timesviz/internal/cli"
)

// Build-time version information, injected via -ldflags.
var (
	version   = "0.1.0"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildDate = buildDate
	cli.GitCommit = gitCommit

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
