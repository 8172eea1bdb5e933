// Package viz turns filtered, unit-normalized derived tables into
// chart specifications. Rendering is someone else's job: a ChartSpec
// is plain data handed to whatever plotting frontend consumes the API.
// Modules never mutate the tables they receive.
package viz

import (
	"fmt"
	"sort"

	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/units"
)

// Kind identifies the chart family of a spec.
type Kind string

// Chart kinds.
const (
	KindStackedBar Kind = "stacked_bar"
	KindLine       Kind = "line"
	KindSankey     Kind = "sankey"
	KindFlowMap    Kind = "flow_map"
)

// Trace is one named series of a bar or line chart.
type Trace struct {
	Name string    `json:"name"`
	X    []string  `json:"x"`
	Y    []float64 `json:"y"`
}

// Link is one sankey flow between node indices.
type Link struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Value  float64 `json:"value"`
}

// Sankey holds the node/link data of a sankey diagram.
type Sankey struct {
	Nodes []string `json:"nodes"`
	Links []Link   `json:"links"`
}

// Coord is a WGS84 coordinate.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Flow is one net transmission flow between two regions on a map.
type Flow struct {
	From      string `json:"from"`
	To        string `json:"to"`
	FromCoord *Coord `json:"from_coord,omitempty"`
	ToCoord   *Coord `json:"to_coord,omitempty"`
	// Value is the net flow From -> To, always >= 0 (direction is
	// normalized so the larger leg wins).
	Value float64 `json:"value"`
}

// ChartSpec is the renderable output of one visualization module.
type ChartSpec struct {
	Kind      Kind   `json:"kind"`
	Title     string `json:"title"`
	UnitLabel string `json:"unit_label,omitempty"`

	Traces []Trace `json:"traces,omitempty"`
	Sankey *Sankey `json:"sankey,omitempty"`
	Flows  []Flow  `json:"flows,omitempty"`

	// Exclusions accounts for rows dropped by unit conversion while
	// building this chart. Never hidden from the caller.
	Exclusions *units.ExclusionInfo `json:"exclusions,omitempty"`
}

// Module builds one chart from the session's tables and filter state.
type Module interface {
	// Name is the stable identifier used in URLs and configuration.
	Name() string
	// Title is the human-readable chart title.
	Title() string
	// RequiredTables lists the derived tables the module reads.
	RequiredTables() []string
	// Build produces the chart spec. It must treat tables as read-only.
	Build(tables map[string]*times.Table, st *filter.State, conv *units.Converter) (*ChartSpec, error)
}

// MissingTableError reports that a module's required table was not
// built (or is unavailable).
type MissingTableError struct {
	Module string
	Table  string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("module %s: required table %q not loaded", e.Module, e.Table)
}

// Registry holds visualization modules in registration order.
type Registry struct {
	order   []string
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module. Re-registering a name replaces the module
// but keeps its position.
func (r *Registry) Register(m Module) {
	if _, ok := r.modules[m.Name()]; !ok {
		r.order = append(r.order, m.Name())
	}
	r.modules[m.Name()] = m
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns the module names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// DefaultRegistry returns the built-in module set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewEnergyModule())
	r.Register(NewEmissionsModule())
	r.Register(NewSankeyModule())
	r.Register(NewFlowMapModule(DefaultGeocoder()))
	return r
}

// prepare applies the filter state and unit conversion to a module's
// source table. Shared by every module.
func prepare(name string, module string, tables map[string]*times.Table, st *filter.State, conv *units.Converter) (*times.Table, *units.ExclusionInfo, error) {
	t, ok := tables[name]
	if !ok {
		return nil, nil, &MissingTableError{Module: module, Table: name}
	}
	filtered := st.Apply(t)
	converted, excl := conv.ConvertAndFilter(filtered, nil, nil)
	return converted, excl, nil
}

// sortedKeys returns map keys in sorted order for deterministic output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
