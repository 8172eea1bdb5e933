// Package units converts measurement units and currencies in derived
// tables using a declarative conversion-rules table. Rows whose unit
// has no applicable rule are excluded and tallied, never coerced or
// silently dropped.
package units

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Rule is one direct scalar conversion: value * Factor takes From to
// To within a category. Chained conversions are not derived; every
// conversion must have its own rule.
type Rule struct {
	UnitLong string
	From     string
	To       string
	Factor   float64
	Category string
}

// Ruleset indexes conversion rules for lookup.
type Ruleset struct {
	rules    []Rule
	category map[string]string  // from_unit -> category
	factor   map[string]float64 // from_unit \x1f to_unit -> factor
	longName map[string]string  // to_unit -> unit_long
}

// NewRuleset indexes the given rules.
func NewRuleset(rules []Rule) *Ruleset {
	rs := &Ruleset{
		rules:    rules,
		category: make(map[string]string, len(rules)),
		factor:   make(map[string]float64, len(rules)),
		longName: make(map[string]string, len(rules)),
	}
	for _, r := range rules {
		rs.category[r.From] = r.Category
		rs.factor[factorKey(r.From, r.To)] = r.Factor
		if _, ok := rs.longName[r.To]; !ok {
			rs.longName[r.To] = r.UnitLong
		}
	}
	return rs
}

func factorKey(from, to string) string { return from + "\x1f" + to }

// LoadRules reads conversion rules from a CSV file with columns
// unit_long, from_unit, to_unit, factor, category.
func LoadRules(path string) (*Ruleset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open conversion rules: %w", err)
	}
	defer func() { _ = f.Close() }()
	rs, err := ParseRules(f)
	if err != nil {
		return nil, fmt.Errorf("parse conversion rules %s: %w", path, err)
	}
	return rs, nil
}

// ParseRules reads conversion rules from CSV content.
func ParseRules(r io.Reader) (*Ruleset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"from_unit", "to_unit", "factor", "category"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	cell := func(record []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rules []Rule
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

		factor, err := strconv.ParseFloat(cell(record, "factor"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad factor: %w", line, err)
		}
		rules = append(rules, Rule{
			UnitLong: cell(record, "unit_long"),
			From:     cell(record, "from_unit"),
			To:       cell(record, "to_unit"),
			Factor:   factor,
			Category: cell(record, "category"),
		})
	}
	return NewRuleset(rules), nil
}

// Category returns the category a unit belongs to, "" when unknown.
func (rs *Ruleset) Category(unit string) string {
	return rs.category[unit]
}

// Known reports whether the unit appears as a conversion source.
func (rs *Ruleset) Known(unit string) bool {
	_, ok := rs.category[unit]
	return ok
}

// Factor returns the direct conversion factor from one unit to
// another. Identical units convert with factor 1.
func (rs *Ruleset) Factor(from, to string) (float64, bool) {
	if from == to {
		return 1.0, true
	}
	f, ok := rs.factor[factorKey(from, to)]
	return f, ok
}

// Categories returns all categories, sorted.
func (rs *Ruleset) Categories() []string {
	seen := make(map[string]struct{})
	for _, r := range rs.rules {
		seen[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// UnitsByCategory returns the distinct target units of a category.
func (rs *Ruleset) UnitsByCategory(category string) []string {
	seen := make(map[string]struct{})
	for _, r := range rs.rules {
		if r.Category == category {
			seen[r.To] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// DisplayName returns the long name for a unit code, or the code
// itself when no rule names it.
func (rs *Ruleset) DisplayName(unit string) string {
	if long, ok := rs.longName[unit]; ok && long != "" {
		return long
	}
	return unit
}
