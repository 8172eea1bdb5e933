// Package builder materializes derived tables from fact rows and the
// declarative mapping configuration. Each table definition filters the
// facts, optionally pre-aggregates them, and attaches row labels; the
// results are keyed by table name. A failing definition never aborts
// the build of the others.
package builder

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/speedlocal-labs/timesviz/internal/mapping"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"golang.org/x/sync/errgroup"
)

// DefinitionError records a table definition that could not be applied.
// The affected table is marked unavailable; other tables still build.
type DefinitionError struct {
	Table string
	Line  int
	Err   error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("table %s (mapping line %d): %v", e.Table, e.Line, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// Report accumulates the outcome of one build pass: row counts per
// table, definitions that failed, and non-fatal warnings. It is
// surfaced to the user, never logged-and-hidden.
type Report struct {
	Counts      map[string]int
	Unavailable map[string]struct{}
	Errors      []*DefinitionError
	Warnings    []string
}

// Available reports whether the named table built without a
// definition error.
func (r *Report) Available(table string) bool {
	_, bad := r.Unavailable[table]
	return !bad
}

// Summary renders a short human-readable build summary.
func (r *Report) Summary() string {
	names := make([]string, 0, len(r.Counts))
	for name := range r.Counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "built %d tables", len(names))
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, ", %d definition errors", len(r.Errors))
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, ", %d warnings", len(r.Warnings))
	}
	return b.String()
}

// Builder turns fact rows into derived tables. Labels maps raw codes
// to display names (from the reporting database's *_desc tables); it
// may be nil, in which case labels fall back to the raw codes.
type Builder struct {
	labels map[string]string
	logger *slog.Logger
}

// New creates a builder. logger may be nil.
func New(labels map[string]string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{labels: labels, logger: logger}
}

// Build materializes all derived tables. Definitions sharing a table
// name are unioned in declaration order. Tables build concurrently;
// the returned map is complete when Build returns, so callers can swap
// it in atomically.
func (b *Builder) Build(facts []times.FactRow, defs []mapping.TableDefinition) (map[string]*times.Table, *Report) {
	report := &Report{
		Counts:      make(map[string]int),
		Unavailable: make(map[string]struct{}),
	}

	// Group definitions by table, keeping declaration order.
	byTable := make(map[string][]mapping.TableDefinition)
	names := mapping.TableNames(defs)
	for _, def := range defs {
		byTable[def.Table] = append(byTable[def.Table], def)
	}

	tables := make(map[string]*times.Table, len(names))
	var mu sync.Mutex
	var eg errgroup.Group

	for _, name := range names {
		eg.Go(func() error {
			table, errs, warns := b.buildTable(name, facts, byTable[name])
			mu.Lock()
			defer mu.Unlock()
			tables[name] = table
			report.Counts[name] = table.Len()
			if len(errs) > 0 {
				report.Unavailable[name] = struct{}{}
				report.Errors = append(report.Errors, errs...)
			}
			report.Warnings = append(report.Warnings, warns...)
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Line < report.Errors[j].Line })
	sort.Strings(report.Warnings)

	b.logger.Info("build complete",
		"tables", len(tables),
		"definition_errors", len(report.Errors),
		"warnings", len(report.Warnings))
	return tables, report
}

// buildTable unions the results of every definition for one table.
func (b *Builder) buildTable(name string, facts []times.FactRow, defs []mapping.TableDefinition) (*times.Table, []*DefinitionError, []string) {
	table := times.NewTable(name)
	var errs []*DefinitionError
	var warns []string

	for _, def := range defs {
		if def.Err != nil {
			errs = append(errs, &DefinitionError{Table: name, Line: def.Line, Err: def.Err})
			continue
		}
		if col := unknownColumn(def); col != "" {
			warns = append(warns, fmt.Sprintf("table %s (mapping line %d): unknown column %q, definition skipped", name, def.Line, col))
			continue
		}

		rows := filterFacts(facts, def.Filters)
		if len(def.AggregationKeys) > 0 {
			rows = aggregate(rows, def.AggregationKeys)
		}
		for i := range rows {
			table.Rows = append(table.Rows, times.Row{
				FactRow: rows[i],
				Label:   b.label(def, name, &rows[i]),
			})
		}
	}

	if len(errs) > 0 {
		// Table is unavailable: drop partial results so callers never
		// see a half-built table.
		return times.NewTable(name), errs, warns
	}
	return table, errs, warns
}

// unknownColumn returns the first filter or aggregation column that
// does not exist in the fact schema, or "".
func unknownColumn(def mapping.TableDefinition) string {
	for _, f := range def.Filters {
		if !mapping.KnownColumn(f.Column) {
			return f.Column
		}
	}
	for _, key := range def.AggregationKeys {
		if !mapping.KnownColumn(key) {
			return key
		}
	}
	return ""
}

// filterFacts returns the facts matching every filter expression.
// Filtering never invents rows: the result is always a subset.
func filterFacts(facts []times.FactRow, filters []mapping.FilterExpr) []times.FactRow {
	var out []times.FactRow
	for i := range facts {
		match := true
		for _, f := range filters {
			v, _ := facts[i].Field(f.Column)
			if !f.Pred.Match(v) {
				match = false
				break
			}
		}
		if match {
			out = append(out, facts[i])
		}
	}
	return out
}

// aggregate groups rows by the given keys and sums their values. Unit
// and currency always take part in the grouping so a sum never mixes
// units; columns outside the group key are cleared.
func aggregate(rows []times.FactRow, keys []string) []times.FactRow {
	groupKeys := append([]string{}, keys...)
	groupKeys = append(groupKeys, "unit", "cur")

	index := make(map[string]int)
	var out []times.FactRow
	for i := range rows {
		parts := make([]string, len(groupKeys))
		for j, key := range groupKeys {
			parts[j], _ = rows[i].Field(key)
		}
		gk := strings.Join(parts, "\x1f")

		if pos, ok := index[gk]; ok {
			out[pos].Value += rows[i].Value
			continue
		}
		var agg times.FactRow
		for _, key := range groupKeys {
			v, _ := rows[i].Field(key)
			agg.SetField(key, v)
		}
		agg.Value = rows[i].Value
		index[gk] = len(out)
		out = append(out, agg)
	}
	return out
}

// label resolves the row label for a definition: the literal table
// name when the label column is "table", otherwise the display name of
// the label column's value, falling back to the raw code.
func (b *Builder) label(def mapping.TableDefinition, tableName string, row *times.FactRow) string {
	switch def.Label {
	case "":
		return ""
	case "table":
		return tableName
	}
	code, ok := row.Field(def.Label)
	if !ok || times.IsNull(code) {
		return ""
	}
	if desc, ok := b.labels[code]; ok && desc != "" {
		return desc
	}
	return code
}
