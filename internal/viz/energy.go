package viz

import (
	"sort"
	"strconv"

	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/units"
)

// excludedSectors are system-internal sectors kept out of the annual
// energy and emissions charts (trade, distribution, system rows).
var excludedSectors = map[string]struct{}{
	"DMZ": {}, "DHT": {}, "ELT": {}, "TRD": {}, "UPS": {}, "NA": {}, "FTS": {}, "SYS": {},
}

// EnergyModule renders annual energy input as a stacked bar per
// commodity group over the model years.
type EnergyModule struct{}

// NewEnergyModule creates the energy input module.
func NewEnergyModule() *EnergyModule { return &EnergyModule{} }

func (m *EnergyModule) Name() string  { return "energy" }
func (m *EnergyModule) Title() string { return "Energy Input" }

func (m *EnergyModule) RequiredTables() []string { return []string{"energy"} }

// Build groups converted energy-input rows (attr f_in) by label and
// year and emits one bar trace per group.
func (m *EnergyModule) Build(tables map[string]*times.Table, st *filter.State, conv *units.Converter) (*ChartSpec, error) {
	t, excl, err := prepare("energy", m.Name(), tables, st, conv)
	if err != nil {
		return nil, err
	}

	traces := groupedTraces(t, func(r *times.Row) bool {
		if r.Attr != "f_in" {
			return false
		}
		_, excluded := excludedSectors[r.Sector]
		return !excluded
	})

	return &ChartSpec{
		Kind:       KindStackedBar,
		Title:      m.Title(),
		UnitLabel:  t.UnitLabel(),
		Traces:     traces,
		Exclusions: excl,
	}, nil
}

// groupedTraces sums accepted rows by (label, year) and builds one
// trace per label across the union of years.
func groupedTraces(t *times.Table, accept func(*times.Row) bool) []Trace {
	sums := make(map[string]map[int]float64)
	yearSet := make(map[int]struct{})
	for i := range t.Rows {
		r := &t.Rows[i]
		if accept != nil && !accept(r) {
			continue
		}
		label := r.Label
		if label == "" {
			label = "other"
		}
		if sums[label] == nil {
			sums[label] = make(map[int]float64)
		}
		sums[label][r.Year] += r.Value
		yearSet[r.Year] = struct{}{}
	}

	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)
	xs := make([]string, len(years))
	for i, y := range years {
		xs[i] = strconv.Itoa(y)
	}

	var traces []Trace
	for _, label := range sortedKeys(sums) {
		ys := make([]float64, len(years))
		for i, y := range years {
			ys[i] = sums[label][y]
		}
		traces = append(traces, Trace{Name: label, X: xs, Y: ys})
	}
	return traces
}
