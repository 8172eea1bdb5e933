package viz

import (
	"sort"

	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/units"
)

// defaultMinFlow drops negligible flows that only clutter the diagram.
const defaultMinFlow = 0.1

// SankeyModule renders commodity/process energy flows as a sankey
// diagram: f_in rows link a commodity into its consuming process,
// f_out rows link a process to the commodity it produces.
type SankeyModule struct {
	// MinFlow is the smallest aggregated flow kept, in converted units.
	MinFlow float64
	// TopN keeps only the N largest flows when > 0.
	TopN int
}

// NewSankeyModule creates the sankey module with default thresholds.
func NewSankeyModule() *SankeyModule {
	return &SankeyModule{MinFlow: defaultMinFlow}
}

func (m *SankeyModule) Name() string  { return "sankey" }
func (m *SankeyModule) Title() string { return "Energy Flow Sankey" }

func (m *SankeyModule) RequiredTables() []string { return []string{"flows"} }

func (m *SankeyModule) Build(tables map[string]*times.Table, st *filter.State, conv *units.Converter) (*ChartSpec, error) {
	t, excl, err := prepare("flows", m.Name(), tables, st, conv)
	if err != nil {
		return nil, err
	}

	type edge struct{ source, target string }
	sums := make(map[edge]float64)
	for i := range t.Rows {
		r := &t.Rows[i]
		if times.IsNull(r.Com) || times.IsNull(r.Prc) {
			continue
		}
		var e edge
		switch r.Attr {
		case "f_in":
			e = edge{source: r.Com, target: r.Prc}
		case "f_out":
			e = edge{source: r.Prc, target: r.Com}
		default:
			continue
		}
		sums[e] += r.Value
	}

	// Threshold, then order flows largest-first for the TopN cut.
	edges := make([]edge, 0, len(sums))
	minFlow := m.MinFlow
	for e, v := range sums {
		if v >= minFlow {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if sums[edges[i]] != sums[edges[j]] {
			return sums[edges[i]] > sums[edges[j]]
		}
		if edges[i].source != edges[j].source {
			return edges[i].source < edges[j].source
		}
		return edges[i].target < edges[j].target
	})
	if m.TopN > 0 && len(edges) > m.TopN {
		edges = edges[:m.TopN]
	}

	// Assign node indices in flow order.
	sankey := &Sankey{}
	index := make(map[string]int)
	node := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(sankey.Nodes)
		sankey.Nodes = append(sankey.Nodes, name)
		return index[name]
	}
	for _, e := range edges {
		sankey.Links = append(sankey.Links, Link{
			Source: node(e.source),
			Target: node(e.target),
			Value:  sums[e],
		})
	}

	return &ChartSpec{
		Kind:       KindSankey,
		Title:      m.Title(),
		UnitLabel:  t.UnitLabel(),
		Sankey:     sankey,
		Exclusions: excl,
	}, nil
}
