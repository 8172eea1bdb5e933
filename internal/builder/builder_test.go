package builder

import (
	"strings"
	"testing"

	"github.com/speedlocal-labs/timesviz/internal/mapping"
	"github.com/speedlocal-labs/timesviz/internal/testutil"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDefs(t *testing.T, csv string) []mapping.TableDefinition {
	t.Helper()
	defs, err := mapping.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	return defs
}

func testFacts() []times.FactRow {
	return []times.FactRow{
		{Scen: "A", Sector: "TRA", Comgroup: "OIL", Year: 2030, Value: 10, Unit: "PJ"},
		{Scen: "A", Sector: "IND", Comgroup: "GAS", Year: 2030, Value: 5, Unit: "PJ"},
		{Scen: "A", Sector: "TRA", Comgroup: "OIL", Year: 2040, Value: 7, Unit: "PJ"},
		{Scen: "B", Sector: "TRA", Comgroup: "ELC", Year: 2030, Value: 3, Unit: "PJ"},
	}
}

func TestBuild_SectorFilter(t *testing.T) {
	facts := []times.FactRow{
		{Scen: "A", Sector: "TRA", Value: 10, Unit: "PJ"},
		{Scen: "A", Sector: "IND", Value: 5, Unit: "PJ"},
	}
	defs := parseDefs(t, "table,sector\ntransport,TRA\n")

	tables, report := New(nil, testutil.NewTestLogger(t)).Build(facts, defs)

	require.Contains(t, tables, "transport")
	require.Equal(t, 1, tables["transport"].Len())
	assert.Equal(t, "TRA", tables["transport"].Rows[0].Sector)
	assert.InDelta(t, 10, tables["transport"].Rows[0].Value, 1e-9)
	assert.True(t, report.Available("transport"))
}

func TestBuild_SubsetProperty(t *testing.T) {
	facts := testFacts()
	defs := parseDefs(t, "table,sector,scen\nt1,TRA,\nt2,,A\nt3,!TRA,B\n")

	tables, _ := New(nil, nil).Build(facts, defs)

	inFacts := func(r times.Row) bool {
		for _, f := range facts {
			if f == r.FactRow {
				return true
			}
		}
		return false
	}
	for name, table := range tables {
		for _, row := range table.Rows {
			assert.True(t, inFacts(row), "table %s invented row %+v", name, row)
		}
	}
}

func TestBuild_ZeroMatchesYieldsEmptyTable(t *testing.T) {
	defs := parseDefs(t, "table,sector\nnothing,AGR\n")
	tables, report := New(nil, nil).Build(testFacts(), defs)

	require.Contains(t, tables, "nothing")
	assert.True(t, tables["nothing"].Empty())
	assert.True(t, report.Available("nothing"))
	assert.Empty(t, report.Errors)
}

func TestBuild_UnionOfSameNamedDefinitions(t *testing.T) {
	defs := parseDefs(t, "table,sector\nboth,TRA\nboth,IND\n")
	tables, _ := New(nil, nil).Build(testFacts(), defs)

	assert.Equal(t, 4, tables["both"].Len())
}

func TestBuild_Aggregation(t *testing.T) {
	defs := parseDefs(t, `table,aggregation,sector
agg,"comgroup,year",TRA
`)
	tables, _ := New(nil, nil).Build(testFacts(), defs)

	table := tables["agg"]
	require.Equal(t, 3, table.Len(), "OIL/2030, OIL/2040, ELC/2030")

	// Aggregation conserves the total and never changes the unit.
	assert.InDelta(t, 20, table.SumValue(), 1e-9)
	for _, row := range table.Rows {
		assert.Equal(t, "PJ", row.Unit)
		assert.Empty(t, row.Sector, "columns outside the group key are cleared")
	}
}

func TestBuild_AggregationKeepsUnitsApart(t *testing.T) {
	facts := []times.FactRow{
		{Sector: "TRA", Year: 2030, Value: 1, Unit: "PJ"},
		{Sector: "TRA", Year: 2030, Value: 2, Unit: "kt"},
	}
	defs := parseDefs(t, "table,aggregation\nagg,year\n")
	tables, _ := New(nil, nil).Build(facts, defs)

	require.Equal(t, 2, tables["agg"].Len(), "different units must not be summed together")
}

func TestBuild_DefinitionErrorIsolated(t *testing.T) {
	defs := parseDefs(t, "table,prc\nbroken,^[unclosed\nok,\n")
	tables, report := New(nil, nil).Build(testFacts(), defs)

	assert.False(t, report.Available("broken"))
	assert.True(t, tables["broken"].Empty())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "broken", report.Errors[0].Table)
	assert.Equal(t, 2, report.Errors[0].Line)

	assert.True(t, report.Available("ok"))
	assert.Equal(t, 4, tables["ok"].Len())
}

func TestBuild_UnknownColumnWarns(t *testing.T) {
	defs := []mapping.TableDefinition{{
		Table:   "odd",
		Line:    2,
		Filters: []mapping.FilterExpr{{Column: "nosuchcol", Pattern: "x", Pred: mustPattern(t, "x")}},
	}}
	tables, report := New(nil, nil).Build(testFacts(), defs)

	assert.True(t, tables["odd"].Empty())
	assert.True(t, report.Available("odd"), "unknown column is a warning, not an error")
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "nosuchcol")
}

func mustPattern(t *testing.T, pattern string) mapping.Predicate {
	t.Helper()
	pred, err := mapping.ParsePattern(pattern)
	require.NoError(t, err)
	return pred
}

func TestBuild_Labels(t *testing.T) {
	labels := map[string]string{"OIL": "Oil products"}
	defs := parseDefs(t, "table,label,sector\nlabeled,comgroup,TRA\nnamed,table,IND\n")

	tables, _ := New(labels, nil).Build(testFacts(), defs)

	got := make(map[string]bool)
	for _, row := range tables["labeled"].Rows {
		got[row.Label] = true
	}
	assert.True(t, got["Oil products"], "described code uses its display name")
	assert.True(t, got["ELC"], "undescribed code falls back to itself")

	require.Equal(t, 1, tables["named"].Len())
	assert.Equal(t, "named", tables["named"].Rows[0].Label)
}

func TestReport_Summary(t *testing.T) {
	defs := parseDefs(t, "table,prc\nbroken,^[unclosed\nok,\n")
	_, report := New(nil, nil).Build(testFacts(), defs)

	assert.Contains(t, report.Summary(), "2 tables")
	assert.Contains(t, report.Summary(), "1 definition errors")
}
