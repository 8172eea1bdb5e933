package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/speedlocal-labs/timesviz/internal/mapping"
	"github.com/speedlocal-labs/timesviz/internal/units"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command: validate the mapping CSV,
// the conversion rules, and the default-units config without touching
// the data source.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the mapping, unit rules, and default-units configuration",
		Long: `Parse every configuration file and report problems before a build:
table definitions with invalid filter patterns or unknown columns,
unreadable conversion rules, and default target units that no rule can
reach.`,
		Example: `  timesviz check
  timesviz check --mapping inputs/mapping_db_views.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()
			out := cmd.OutOrStdout()
			problems := 0

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"check", "status", "detail"})

			defs, err := mapping.Load(cfg.Mapping)
			switch {
			case err != nil:
				problems++
				t.AppendRow(table.Row{"mapping", "error", err.Error()})
			default:
				detail := fmt.Sprintf("%d definitions, %d tables", len(defs), len(mapping.TableNames(defs)))
				status := "ok"
				for _, def := range defs {
					if def.Err != nil {
						problems++
						status = "error"
						t.AppendRow(table.Row{"mapping", "error", def.Err.Error()})
					}
					for _, f := range def.Filters {
						if !mapping.KnownColumn(f.Column) {
							problems++
							status = "error"
							t.AppendRow(table.Row{"mapping", "error",
								fmt.Sprintf("line %d: unknown column %q", def.Line, f.Column)})
						}
					}
				}
				t.AppendRow(table.Row{"mapping", status, detail})
			}

			rules, err := units.LoadRules(cfg.Units)
			if err != nil {
				problems++
				t.AppendRow(table.Row{"units", "error", err.Error()})
				rules = nil
			} else {
				t.AppendRow(table.Row{"units", "ok",
					fmt.Sprintf("%d categories", len(rules.Categories()))})
			}

			if cfg.DefaultUnits == "" {
				t.AppendRow(table.Row{"default units", "ok", "not configured (no conversion targets)"})
			} else if defaults, err := units.LoadDefaults(cfg.DefaultUnits); err != nil {
				problems++
				t.AppendRow(table.Row{"default units", "error", err.Error()})
			} else {
				status, detail := "ok", fmt.Sprintf("%d categories", len(defaults.TargetUnits))
				if rules != nil {
					for category, unit := range defaults.TargetUnits {
						if !contains(rules.UnitsByCategory(category), unit) {
							problems++
							status = "error"
							t.AppendRow(table.Row{"default units", "error",
								fmt.Sprintf("no rule converts %s to %q", category, unit)})
						}
					}
				}
				t.AppendRow(table.Row{"default units", status, detail})
			}

			t.Render()
			if problems > 0 {
				return fmt.Errorf("%d problems found", problems)
			}
			fmt.Fprintln(out, "configuration ok")
			return nil
		},
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
