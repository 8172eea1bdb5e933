package viz

import (
	"sort"

	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/units"
)

// Geocoder resolves a region code to a map coordinate. Real geocoding
// is an external collaborator; the map module only needs this lookup.
type Geocoder interface {
	Locate(region string) (Coord, bool)
}

// StaticGeocoder resolves regions from a fixed table.
type StaticGeocoder map[string]Coord

// Locate implements Geocoder.
func (g StaticGeocoder) Locate(region string) (Coord, bool) {
	c, ok := g[region]
	return c, ok
}

// DefaultGeocoder covers the synthetic regions of the model (energy
// islands, the external market node) that no geocoding service knows.
func DefaultGeocoder() StaticGeocoder {
	return StaticGeocoder{
		"DKISL1":        {Lat: 55.979076, Lon: 7.096848},
		"DKISL2":        {Lat: 56.068326, Lon: 6.603515},
		"DKISL3":        {Lat: 56.193403, Lon: 6.350176},
		"DKISLBH":       {Lat: 55.136895, Lon: 14.902472},
		"DEISL":         {Lat: 55.136747, Lon: 6.205615},
		"Global Market": {Lat: 65.108709, Lon: -1.337080},
	}
}

// FlowMapModule renders net transmission flows between regions. Both
// directions of a region pair are netted: the larger leg sets the
// direction, its surplus the magnitude.
type FlowMapModule struct {
	geocoder Geocoder
}

// NewFlowMapModule creates the flow map module. geocoder may be nil,
// in which case flows carry no coordinates.
func NewFlowMapModule(geocoder Geocoder) *FlowMapModule {
	return &FlowMapModule{geocoder: geocoder}
}

func (m *FlowMapModule) Name() string  { return "flowmap" }
func (m *FlowMapModule) Title() string { return "Energy Flow Map" }

func (m *FlowMapModule) RequiredTables() []string { return []string{"transmission"} }

func (m *FlowMapModule) Build(tables map[string]*times.Table, st *filter.State, conv *units.Converter) (*ChartSpec, error) {
	t, excl, err := prepare("transmission", m.Name(), tables, st, conv)
	if err != nil {
		return nil, err
	}

	type pair struct{ a, b string }
	// gross[p] holds the two directed sums of an unordered region pair:
	// [0] is a->b, [1] is b->a, with a < b.
	gross := make(map[pair][2]float64)
	for i := range t.Rows {
		r := &t.Rows[i]
		from, to := r.Regfrom, r.Regto
		if times.IsNull(from) || times.IsNull(to) || from == to {
			continue
		}
		p := pair{a: from, b: to}
		leg := 0
		if p.a > p.b {
			p.a, p.b = p.b, p.a
			leg = 1
		}
		sums := gross[p]
		sums[leg] += r.Value
		gross[p] = sums
	}

	var flows []Flow
	for p, sums := range gross {
		from, to := p.a, p.b
		net := sums[0] - sums[1]
		if net < 0 {
			from, to = to, from
			net = -net
		}
		if net == 0 {
			continue
		}
		f := Flow{From: from, To: to, Value: net}
		if m.geocoder != nil {
			if c, ok := m.geocoder.Locate(from); ok {
				f.FromCoord = &Coord{Lat: c.Lat, Lon: c.Lon}
			}
			if c, ok := m.geocoder.Locate(to); ok {
				f.ToCoord = &Coord{Lat: c.Lat, Lon: c.Lon}
			}
		}
		flows = append(flows, f)
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].From != flows[j].From {
			return flows[i].From < flows[j].From
		}
		return flows[i].To < flows[j].To
	})

	return &ChartSpec{
		Kind:       KindFlowMap,
		Title:      m.Title(),
		UnitLabel:  t.UnitLabel(),
		Flows:      flows,
		Exclusions: excl,
	}, nil
}
