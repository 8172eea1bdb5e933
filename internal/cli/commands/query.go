package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/speedlocal-labs/timesviz/internal/loader"
	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command: ad-hoc SQL against the
// reporting database, or an interactive REPL when run from a terminal
// with no arguments.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the reporting database",
		Long: `Execute SQL directly against the TIMES reporting database to inspect
the fact table and description tables outside the derived-table
pipeline. Supports multiple output formats for scripting.

When invoked without arguments from a terminal, enters interactive
REPL mode.`,
		Example: `  # Execute SQL directly
  timesviz query "SELECT DISTINCT scen FROM timesreport_facts"

  # List tables in the database
  timesviz query tables

  # Show the schema of a table
  timesviz query schema timesreport_facts

  # Output as JSON
  timesviz query "SELECT * FROM timesreport_facts LIMIT 5" --format json

  # Interactive mode
  timesviz query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	cmd.AddCommand(newQueryTablesCommand(opts))
	cmd.AddCommand(newQuerySchemaCommand(opts))

	return cmd
}

// connectSource opens the configured reporting database read-only.
// The caller closes the returned loader.
func connectSource(ctx context.Context) (*loader.Loader, error) {
	cfg := getConfig()
	if cfg.Source.Path == "" && cfg.Source.URL == "" {
		return nil, fmt.Errorf("no data source: set source.path or source.url")
	}
	ld := loader.New(loader.Source{
		Path:     cfg.Source.Path,
		URL:      cfg.Source.URL,
		CacheDir: cfg.Source.CacheDir,
	}, logger)
	if err := ld.Connect(ctx); err != nil {
		return nil, err
	}
	return ld, nil
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("read query file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		return runQueryREPL(cmd, opts)
	}

	ld, err := connectSource(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = ld.Close() }()

	return executeAndRenderQuery(cmd.Context(), cmd.OutOrStdout(), ld.DB(), sqlQuery, opts.Format)
}

func executeAndRenderQuery(ctx context.Context, w io.Writer, db *sql.DB, query, format string) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	return renderResults(w, rows, format)
}

func newQueryTablesCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the reporting database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ld, err := connectSource(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = ld.Close() }()
			return listSourceTables(cmd.Context(), cmd.OutOrStdout(), ld.DB(), opts.Format)
		},
	}
}

func newQuerySchemaCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ld, err := connectSource(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = ld.Close() }()
			return showSourceSchema(cmd.Context(), cmd.OutOrStdout(), ld.DB(), args[0], opts.Format)
		},
	}
}

func listSourceTables(ctx context.Context, w io.Writer, db *sql.DB, format string) error {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = 'main'
		ORDER BY table_type, table_name`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	return renderResults(w, rows, format)
}

func showSourceSchema(ctx context.Context, w io.Writer, db *sql.DB, tableName, format string) error {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, tableName)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	return renderResults(w, rows, format)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
