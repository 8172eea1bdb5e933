package units

import (
	"fmt"
	"sort"
	"strings"

	"github.com/speedlocal-labs/timesviz/internal/times"
)

// ExclusionInfo accounts for rows dropped during conversion, per unit
// or currency. It is surfaced to the user; exclusion is never silent.
type ExclusionInfo struct {
	TotalRows    int
	ExcludedRows int

	// Unit/currency code -> number of rows excluded because the code
	// has no rule at all.
	UnknownUnits      map[string]int
	UnknownCurrencies map[string]int

	// "from→target" -> number of rows excluded because no direct rule
	// covers that conversion.
	UnconvertibleUnits      map[string]int
	UnconvertibleCurrencies map[string]int
}

func newExclusionInfo(total int) *ExclusionInfo {
	return &ExclusionInfo{
		TotalRows:               total,
		UnknownUnits:            make(map[string]int),
		UnknownCurrencies:       make(map[string]int),
		UnconvertibleUnits:      make(map[string]int),
		UnconvertibleCurrencies: make(map[string]int),
	}
}

// HasExclusions reports whether any rows were excluded.
func (e *ExclusionInfo) HasExclusions() bool {
	return e != nil && e.ExcludedRows > 0
}

// Summary renders a human-readable account of the exclusions.
func (e *ExclusionInfo) Summary() string {
	if !e.HasExclusions() {
		return "No rows excluded"
	}
	lines := []string{fmt.Sprintf("Excluded %d of %d rows:", e.ExcludedRows, e.TotalRows)}
	if len(e.UnknownUnits) > 0 {
		lines = append(lines, "  - Unknown units: "+tallyList(e.UnknownUnits))
	}
	if len(e.UnknownCurrencies) > 0 {
		lines = append(lines, "  - Unknown currencies: "+tallyList(e.UnknownCurrencies))
	}
	if len(e.UnconvertibleUnits) > 0 {
		lines = append(lines, "  - Unconvertible units: "+tallyList(e.UnconvertibleUnits))
	}
	if len(e.UnconvertibleCurrencies) > 0 {
		lines = append(lines, "  - Unconvertible currencies: "+tallyList(e.UnconvertibleCurrencies))
	}
	return strings.Join(lines, "\n")
}

func tallyList(tally map[string]int) string {
	keys := make([]string, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s (%d rows)", k, tally[k])
	}
	return strings.Join(parts, ", ")
}

// Converter applies unit and currency conversion to derived tables.
type Converter struct {
	rules    *Ruleset
	defaults Defaults
}

// NewConverter creates a converter over the given ruleset. defaults
// supplies the target units used when a caller passes nil targets.
func NewConverter(rules *Ruleset, defaults Defaults) *Converter {
	return &Converter{rules: rules, defaults: defaults}
}

// Rules exposes the underlying ruleset.
func (c *Converter) Rules() *Ruleset { return c.rules }

// DefaultTargets returns a copy of the configured default target units.
func (c *Converter) DefaultTargets() map[string]string {
	out := make(map[string]string, len(c.defaults.TargetUnits))
	for k, v := range c.defaults.TargetUnits {
		out[k] = v
	}
	return out
}

// ConvertAndFilter converts every row's unit (and currency) to the
// target unit of its category and returns a new table plus the
// exclusion accounting. Semantics per row:
//
//   - null unit: passes through untouched
//   - unit with no rule at all: row excluded, tallied as unknown
//   - category not selected or without a target unit: passes through
//     unconverted (conversion is opt-in per category)
//   - no direct rule from->target: row excluded, tallied as
//     unconvertible (chained conversions are not derived)
//   - otherwise: value multiplied by the factor, unit rewritten
//
// Currencies in the cur column follow the same rules. The input table
// is never mutated; rows_in(input) == rows_out + excluded always holds.
func (c *Converter) ConvertAndFilter(table *times.Table, targets map[string]string, categories []string) (*times.Table, *ExclusionInfo) {
	info := newExclusionInfo(table.Len())
	out := times.NewTable(table.Name)
	if table.Len() == 0 {
		return out, info
	}

	if targets == nil {
		targets = c.defaults.TargetUnits
	}
	selected := categorySet(categories, c.defaults.SelectedCategories)

	for i := range table.Rows {
		row := table.Rows[i]

		value, unit, ok := c.convertOne(row.Value, row.Unit, targets, selected, info.UnknownUnits, info.UnconvertibleUnits)
		if !ok {
			info.ExcludedRows++
			continue
		}
		value, cur, ok := c.convertOne(value, row.Cur, targets, selected, info.UnknownCurrencies, info.UnconvertibleCurrencies)
		if !ok {
			info.ExcludedRows++
			continue
		}

		row.Value = value
		row.Unit = unit
		row.Cur = cur
		out.Rows = append(out.Rows, row)
	}
	return out, info
}

// convertOne converts a single value/code pair. It returns the new
// value, the (possibly rewritten) code, and false when the row must be
// excluded, tallying the reason.
func (c *Converter) convertOne(value float64, code string, targets map[string]string, selected map[string]struct{}, unknown, unconvertible map[string]int) (float64, string, bool) {
	if times.IsNull(code) {
		return value, code, true
	}
	if !c.rules.Known(code) {
		unknown[code]++
		return value, code, false
	}
	category := c.rules.Category(code)
	if selected != nil {
		if _, ok := selected[category]; !ok {
			return value, code, true
		}
	}
	target, ok := targets[category]
	if !ok || target == "" {
		return value, code, true
	}
	factor, ok := c.rules.Factor(code, target)
	if !ok {
		unconvertible[fmt.Sprintf("%s→%s", code, target)]++
		return value, code, false
	}
	return value * factor, target, true
}

// categorySet resolves the selected categories: the explicit list, the
// configured defaults, or nil meaning all categories.
func categorySet(explicit, configured []string) map[string]struct{} {
	list := explicit
	if list == nil {
		list = configured
	}
	if list == nil {
		return nil
	}
	set := make(map[string]struct{}, len(list))
	for _, c := range list {
		set[c] = struct{}{}
	}
	return set
}
