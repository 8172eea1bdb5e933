// Package cli provides the command-line interface for timesviz.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/speedlocal-labs/timesviz/internal/cli/commands"
	"github.com/speedlocal-labs/timesviz/internal/cli/config"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "timesviz",
		Short: "timesviz - TIMES results data explorer",
		Long: `timesviz explores TIMES energy-system model results stored in a
DuckDB reporting database.

It materializes derived tables from a declarative mapping CSV, applies
interactive filters and unit conversion, and serves chart data for
stacked bars, line charts, sankey diagrams and flow maps.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			commands.SetConfig(cfg)
			commands.SetLogger(newLogger(cfg.Verbose))

			if cfg.Verbose {
				if used := config.GetConfigFileUsed(); used != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", used)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go and DuckDB
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./timesviz.yaml)")
	rootCmd.PersistentFlags().String("source.path", "", "Path to a local DuckDB reporting database")
	rootCmd.PersistentFlags().String("source.url", "", "URL of a remote DuckDB reporting database")
	rootCmd.PersistentFlags().String("mapping", "", "Path to the mapping CSV")
	rootCmd.PersistentFlags().String("units", "", "Path to the unit conversion rules CSV")
	rootCmd.PersistentFlags().String("default_units", "", "Path to the default target units YAML")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (table|json|csv|md)")

	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))
	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(commands.NewTablesCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewServeCommand())

	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
