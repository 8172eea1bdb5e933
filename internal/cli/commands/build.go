package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command: one full load cycle with
// a printed report.
func NewBuildCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Connect to the data source and materialize all derived tables",
		Long: `Connect to the reporting database, run every table definition from
the mapping CSV, and print a build report: row counts per derived
table, definition errors, and warnings.`,
		Example: `  # Build from the configured source
  timesviz build

  # Build from an explicit local database
  timesviz build --source.path results.duckdb

  # Machine-readable report
  timesviz build --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(getConfig())
			if err != nil {
				return err
			}

			start := time.Now()
			sess, err := mgr.Reload(cmd.Context())
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}
			elapsed := time.Since(start).Round(time.Millisecond)

			if jsonOutput {
				errs := make([]string, 0, len(sess.Report.Errors))
				for _, e := range sess.Report.Errors {
					errs = append(errs, e.Error())
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"summary":           sess.Report.Summary(),
					"counts":            sess.Report.Counts,
					"definition_errors": errs,
					"warnings":          sess.Report.Warnings,
					"elapsed_ms":        elapsed.Milliseconds(),
				})
			}

			names := make([]string, 0, len(sess.Report.Counts))
			for name := range sess.Report.Counts {
				names = append(names, name)
			}
			sort.Strings(names)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"table", "rows", "status"})
			for _, name := range names {
				status := "ok"
				if !sess.Report.Available(name) {
					status = "unavailable"
				}
				t.AppendRow(table.Row{name, sess.Report.Counts[name], status})
			}
			t.Render()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s in %s\n", sess.Report.Summary(), elapsed)
			for _, e := range sess.Report.Errors {
				fmt.Fprintf(out, "error: %v\n", e)
			}
			for _, warn := range sess.Report.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warn)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	return cmd
}
