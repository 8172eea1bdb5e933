// Package times defines the data model for TIMES reporting results:
// fact rows as extracted from the reporting database, derived tables
// materialized from them, and the schema descriptor used by the filter
// engine to know which columns are actually populated.
package times

import (
	"sort"
	"strconv"
	"strings"
)

// FactTableName is the fact table every TIMES reporting database carries.
const FactTableName = "timesreport_facts"

// FactRow is one observation from the TIMES reporting fact table.
// Rows are immutable once loaded; Value is in whatever unit the source
// model recorded (Unit/Cur columns).
type FactRow struct {
	Model     string
	Scen      string
	Sector    string
	Subsector string
	Service   string
	Techgroup string
	Comgroup  string
	Topic     string
	Attr      string
	Prc       string
	Com       string
	AllTS     string
	Reg       string
	Regfrom   string
	Regto     string
	Vntg      string
	Year      int
	Value     float64
	Unit      string
	Cur       string
}

// FilterColumns is the fixed set of columns filter expressions and
// interactive filters may address, in fact-table order.
var FilterColumns = []string{
	"model", "scen", "sector", "subsector", "service", "techgroup",
	"comgroup", "topic", "attr", "prc", "com", "all_ts",
	"reg", "regfrom", "regto", "vntg", "year", "unit", "cur",
}

// Field returns the string form of the named column and whether the
// column exists. Year is rendered as its decimal string.
func (r *FactRow) Field(col string) (string, bool) {
	switch col {
	case "model":
		return r.Model, true
	case "scen":
		return r.Scen, true
	case "sector":
		return r.Sector, true
	case "subsector":
		return r.Subsector, true
	case "service":
		return r.Service, true
	case "techgroup":
		return r.Techgroup, true
	case "comgroup":
		return r.Comgroup, true
	case "topic":
		return r.Topic, true
	case "attr":
		return r.Attr, true
	case "prc":
		return r.Prc, true
	case "com":
		return r.Com, true
	case "all_ts":
		return r.AllTS, true
	case "reg":
		return r.Reg, true
	case "regfrom":
		return r.Regfrom, true
	case "regto":
		return r.Regto, true
	case "vntg":
		return r.Vntg, true
	case "year":
		return strconv.Itoa(r.Year), true
	case "unit":
		return r.Unit, true
	case "cur":
		return r.Cur, true
	}
	return "", false
}

// SetField assigns the string form of the named column. Year values
// that do not parse leave the field at zero. Returns false for unknown
// columns.
func (r *FactRow) SetField(col, v string) bool {
	switch col {
	case "model":
		r.Model = v
	case "scen":
		r.Scen = v
	case "sector":
		r.Sector = v
	case "subsector":
		r.Subsector = v
	case "service":
		r.Service = v
	case "techgroup":
		r.Techgroup = v
	case "comgroup":
		r.Comgroup = v
	case "topic":
		r.Topic = v
	case "attr":
		r.Attr = v
	case "prc":
		r.Prc = v
	case "com":
		r.Com = v
	case "all_ts":
		r.AllTS = v
	case "reg":
		r.Reg = v
	case "regfrom":
		r.Regfrom = v
	case "regto":
		r.Regto = v
	case "vntg":
		r.Vntg = v
	case "year":
		r.Year, _ = strconv.Atoi(v)
	case "unit":
		r.Unit = v
	case "cur":
		r.Cur = v
	default:
		return false
	}
	return true
}

// IsNull reports whether a cell value counts as missing. The reporting
// exports use both empty strings and the literal "NA".
func IsNull(v string) bool {
	return v == "" || strings.EqualFold(v, "NA")
}

// Row is a fact row inside a derived table, carrying the human-readable
// label attached by the table builder (falls back to the raw code when
// no description mapping exists).
type Row struct {
	FactRow
	Label string
}

// Table is a named derived table: the fact rows that passed one table
// definition's filters, optionally pre-aggregated. Tables are never
// mutated after construction; filter and conversion operations return
// new tables.
type Table struct {
	Name string
	Rows []Row
}

// NewTable returns an empty table with the given name.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// SumValue returns the sum of the value column.
func (t *Table) SumValue() float64 {
	var sum float64
	for i := range t.Rows {
		sum += t.Rows[i].Value
	}
	return sum
}

// DistinctValues returns the sorted distinct non-null values of a column.
// Unknown columns yield nil.
func (t *Table) DistinctValues(col string) []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for i := range t.Rows {
		v, ok := t.Rows[i].Field(col)
		if !ok {
			return nil
		}
		if IsNull(v) {
			continue
		}
		seen[v] = struct{}{}
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

// UnitLabel extracts an axis label from the unit and currency columns:
// the single unit in use, a comma-joined sorted list when mixed, or
// "value" when no units are present.
func (t *Table) UnitLabel() string {
	seen := make(map[string]struct{})
	for i := range t.Rows {
		if u := t.Rows[i].Unit; !IsNull(u) {
			seen[u] = struct{}{}
		}
		if c := t.Rows[i].Cur; !IsNull(c) {
			seen[c] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return "value"
	}
	units := make([]string, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Strings(units)
	return strings.Join(units, ", ")
}

// Schema describes which filterable columns are populated in at least
// one loaded table. It is built once per load; the filter engine never
// inspects tables reflectively at filter time.
type Schema struct {
	columns map[string]struct{}
}

// SchemaOf builds the schema descriptor from the loaded tables.
func SchemaOf(tables map[string]*Table) *Schema {
	s := &Schema{columns: make(map[string]struct{})}
	for _, t := range tables {
		for _, col := range FilterColumns {
			if _, ok := s.columns[col]; ok {
				continue
			}
			if len(t.DistinctValues(col)) > 0 {
				s.columns[col] = struct{}{}
			}
		}
	}
	return s
}

// HasColumn reports whether the column is populated somewhere.
func (s *Schema) HasColumn(col string) bool {
	if s == nil {
		return false
	}
	_, ok := s.columns[col]
	return ok
}

// Columns returns the populated columns in fact-table order.
func (s *Schema) Columns() []string {
	out := make([]string, 0, len(s.columns))
	for _, col := range FilterColumns {
		if _, ok := s.columns[col]; ok {
			out = append(out, col)
		}
	}
	return out
}
