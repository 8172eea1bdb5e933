// Package filter implements the interactive filter engine: per-session
// column selections applied as conjunctive predicates over derived
// tables. Selections are commutative and read-only; applying a filter
// never mutates the source table.
package filter

import (
	"sort"

	"github.com/speedlocal-labs/timesviz/internal/times"
)

// Selection is the set of accepted values for one column. A nil
// *Selection means "all" (no restriction); an empty Selection means
// "none" (rejects every row). The two states are deliberately distinct
// and must never be conflated.
type Selection map[string]struct{}

// NewSelection builds a selection from explicit values.
func NewSelection(values ...string) Selection {
	s := make(Selection, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Contains reports whether a value is selected.
func (s Selection) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Values returns the selected values, sorted.
func (s Selection) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// State holds the active selections per column. Columns without an
// entry (or with a nil selection) are unrestricted. State is owned by
// one session; it is not safe for concurrent mutation.
type State struct {
	selections map[string]Selection
	schema     *times.Schema
}

// NewState creates an empty filter state constrained to the columns
// present in the given schema. A nil schema accepts any known column.
func NewState(schema *times.Schema) *State {
	return &State{
		selections: make(map[string]Selection),
		schema:     schema,
	}
}

// Set restricts a column to the given selection. A nil selection
// clears the restriction ("all"); an empty non-nil selection selects
// nothing. Columns absent from the schema are rejected.
func (s *State) Set(column string, sel Selection) bool {
	if s.schema != nil && !s.schema.HasColumn(column) {
		return false
	}
	if sel == nil {
		delete(s.selections, column)
		return true
	}
	s.selections[column] = sel
	return true
}

// Get returns the selection for a column, nil when unrestricted.
func (s *State) Get(column string) Selection {
	return s.selections[column]
}

// Clear removes the restriction on one column.
func (s *State) Clear(column string) {
	delete(s.selections, column)
}

// Reset removes all restrictions.
func (s *State) Reset() {
	s.selections = make(map[string]Selection)
}

// Active returns the current non-default selections, keyed by column.
func (s *State) Active() map[string]Selection {
	out := make(map[string]Selection, len(s.selections))
	for col, sel := range s.selections {
		out[col] = sel
	}
	return out
}

// Apply returns the rows of the table accepted by every active
// selection. Selections naming columns the table does not populate are
// ignored rather than emptying the table. The input is never mutated.
func (s *State) Apply(table *times.Table) *times.Table {
	if table == nil {
		return nil
	}
	out := times.NewTable(table.Name)

	// A selection only participates when the table populates its
	// column; the rest are no-ops for this table.
	applicable := make(map[string]Selection, len(s.selections))
	for col, sel := range s.selections {
		if len(table.DistinctValues(col)) > 0 {
			applicable[col] = sel
		}
	}

	if len(applicable) == 0 {
		out.Rows = append(out.Rows, table.Rows...)
		return out
	}
	for i := range table.Rows {
		if accepts(&table.Rows[i], applicable) {
			out.Rows = append(out.Rows, table.Rows[i])
		}
	}
	return out
}

func accepts(row *times.Row, selections map[string]Selection) bool {
	for col, sel := range selections {
		v, _ := row.Field(col)
		if !sel.Contains(v) {
			return false
		}
	}
	return true
}

// AvailableValues returns the sorted union of distinct non-null values
// of a column across all supplied tables.
func AvailableValues(column string, tables map[string]*times.Table) []string {
	seen := make(map[string]struct{})
	for _, t := range tables {
		for _, v := range t.DistinctValues(column) {
			seen[v] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
