package viz

import (
	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/units"
)

// EmissionsModule renders annual emissions as one line per label
// (typically the sector or commodity the mapping labels rows with).
type EmissionsModule struct{}

// NewEmissionsModule creates the emissions module.
func NewEmissionsModule() *EmissionsModule { return &EmissionsModule{} }

func (m *EmissionsModule) Name() string  { return "emissions" }
func (m *EmissionsModule) Title() string { return "Emissions" }

func (m *EmissionsModule) RequiredTables() []string { return []string{"emissions"} }

func (m *EmissionsModule) Build(tables map[string]*times.Table, st *filter.State, conv *units.Converter) (*ChartSpec, error) {
	t, excl, err := prepare("emissions", m.Name(), tables, st, conv)
	if err != nil {
		return nil, err
	}

	traces := groupedTraces(t, func(r *times.Row) bool {
		_, excluded := excludedSectors[r.Sector]
		return !excluded
	})

	return &ChartSpec{
		Kind:       KindLine,
		Title:      m.Title(),
		UnitLabel:  t.UnitLabel(),
		Traces:     traces,
		Exclusions: excl,
	}, nil
}
