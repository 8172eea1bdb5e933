// Package mapping loads the declarative table-definition configuration:
// one CSV where each row derives (part of) a named table from the fact
// table through column filter patterns, a label column, and optional
// aggregation keys. Definitions are pure data; the table builder is the
// only interpreter.
package mapping

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/speedlocal-labs/timesviz/internal/times"
)

// Reserved mapping CSV headers that are not filter columns.
const (
	colTable       = "table"
	colLabel       = "label"
	colAggregation = "aggregation"
)

// FilterExpr is one filter cell: a column name and the compiled
// predicate for its pattern.
type FilterExpr struct {
	Column  string
	Pattern string
	Pred    Predicate
}

// TableDefinition derives one slice of a named table. Several
// definitions may share a table name; their results are unioned.
type TableDefinition struct {
	Table           string
	Label           string
	AggregationKeys []string
	Filters         []FilterExpr

	// Err is set when a filter pattern failed to compile. The builder
	// reports it and marks the table unavailable.
	Err error

	// Line is the 1-based CSV line the definition came from.
	Line int
}

// Load reads table definitions from a mapping CSV file.
func Load(path string) ([]TableDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping config: %w", err)
	}
	defer func() { _ = f.Close() }()
	defs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse mapping config %s: %w", path, err)
	}
	return defs, nil
}

// Parse reads table definitions from CSV content. Definitions are
// returned in declaration order. A row with an invalid pattern still
// yields a definition, with Err set; a missing table name is a hard
// error since nothing can be keyed by it.
func Parse(r io.Reader) ([]TableDefinition, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var defs []TableDefinition
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		line++

		def := TableDefinition{Line: line}
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			switch header[i] {
			case colTable:
				def.Table = cell
			case colLabel:
				def.Label = strings.ToLower(cell)
			case colAggregation:
				for _, key := range strings.Split(cell, ",") {
					if key = strings.TrimSpace(key); key != "" {
						def.AggregationKeys = append(def.AggregationKeys, strings.ToLower(key))
					}
				}
			default:
				expr := FilterExpr{Column: header[i], Pattern: cell}
				pred, perr := ParsePattern(cell)
				if perr != nil && def.Err == nil {
					def.Err = fmt.Errorf("line %d, column %s: %w", line, header[i], perr)
				}
				expr.Pred = pred
				def.Filters = append(def.Filters, expr)
			}
		}

		if def.Table == "" {
			return nil, fmt.Errorf("line %d: missing table name", line)
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// TableNames returns the distinct table names in declaration order.
func TableNames(defs []TableDefinition) []string {
	seen := make(map[string]struct{}, len(defs))
	var names []string
	for i := range defs {
		if _, ok := seen[defs[i].Table]; ok {
			continue
		}
		seen[defs[i].Table] = struct{}{}
		names = append(names, defs[i].Table)
	}
	return names
}

// KnownColumn reports whether a filter column exists in the fact schema.
func KnownColumn(col string) bool {
	var r times.FactRow
	_, ok := r.Field(col)
	return ok
}
