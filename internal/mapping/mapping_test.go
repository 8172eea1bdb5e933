package mapping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Definitions(t *testing.T) {
	csv := `table,label,aggregation,sector,topic,attr
energy,comgroup,"comgroup,year",!TRD,energy,f_in
emissions,sector,,,"emissions",
flows,table,,TRA,,f_out
`
	defs, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, defs, 3)

	energy := defs[0]
	assert.Equal(t, "energy", energy.Table)
	assert.Equal(t, "comgroup", energy.Label)
	assert.Equal(t, []string{"comgroup", "year"}, energy.AggregationKeys)
	assert.NoError(t, energy.Err)
	require.Len(t, energy.Filters, 3)
	assert.Equal(t, "sector", energy.Filters[0].Column)
	assert.True(t, energy.Filters[0].Pred.Match("IND"))
	assert.False(t, energy.Filters[0].Pred.Match("TRD"))

	emissions := defs[1]
	assert.Equal(t, "emissions", emissions.Table)
	assert.Empty(t, emissions.AggregationKeys)
	require.Len(t, emissions.Filters, 1)
	assert.Equal(t, "topic", emissions.Filters[0].Column)

	flows := defs[2]
	assert.Equal(t, "table", flows.Label)
	assert.Equal(t, 4, flows.Line)
}

func TestParse_EmptyCellsAreNoFilter(t *testing.T) {
	csv := "table,sector,attr\nall,,\n"
	defs, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Empty(t, defs[0].Filters)
}

func TestParse_InvalidPatternKeepsDefinition(t *testing.T) {
	csv := "table,prc\nbroken,^[unclosed\nok,EXP*\n"
	defs, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Error(t, defs[0].Err)
	assert.Contains(t, defs[0].Err.Error(), "prc")
	assert.NoError(t, defs[1].Err)
}

func TestParse_MissingTableName(t *testing.T) {
	csv := "table,sector\n,TRA\n"
	_, err := Parse(strings.NewReader(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing table name")
}

func TestParse_HeaderNormalization(t *testing.T) {
	csv := "Table, Sector\nenergy,TRA\n"
	defs, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "energy", defs[0].Table)
	require.Len(t, defs[0].Filters, 1)
	assert.Equal(t, "sector", defs[0].Filters[0].Column)
}

func TestTableNames_DeclarationOrder(t *testing.T) {
	csv := "table,sector\nb,TRA\na,IND\nb,RES\n"
	defs, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, TableNames(defs))
}

func TestKnownColumn(t *testing.T) {
	assert.True(t, KnownColumn("sector"))
	assert.True(t, KnownColumn("regfrom"))
	assert.True(t, KnownColumn("year"))
	assert.False(t, KnownColumn("bogus"))
}
