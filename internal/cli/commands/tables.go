package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/spf13/cobra"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	var showColumns bool

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the derived tables and their filterable columns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(getConfig())
			if err != nil {
				return err
			}
			sess, err := mgr.Reload(cmd.Context())
			if err != nil {
				return err
			}

			names := sess.TableNames()
			sort.Strings(names)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			header := table.Row{"table", "rows", "units"}
			if showColumns {
				header = append(header, "values")
			}
			t.AppendHeader(header)
			for _, name := range names {
				tbl := sess.Table(name)
				row := table.Row{name, tbl.Len(), tbl.UnitLabel()}
				if showColumns {
					row = append(row, columnSummary(sess.Tables[name].DistinctValues("scen")))
				}
				t.AppendRow(row)
			}
			t.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "filterable columns: %s\n",
				strings.Join(sess.Schema.Columns(), ", "))
			if scens := filter.AvailableValues("scen", sess.Tables); len(scens) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "scenarios: %s\n", strings.Join(scens, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showColumns, "scenarios", false, "Show per-table scenario values")
	return cmd
}

func columnSummary(values []string) string {
	const max = 6
	if len(values) > max {
		return strings.Join(values[:max], ", ") + fmt.Sprintf(", … (%d)", len(values))
	}
	return strings.Join(values, ", ")
}
