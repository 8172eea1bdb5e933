package units

import (
	"testing"

	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConverter(t *testing.T) *Converter {
	t.Helper()
	return NewConverter(testRuleset(t), Defaults{
		TargetUnits: map[string]string{"energy": "GJ", "currency": "EUR"},
	})
}

func rowsTable(rows ...times.FactRow) *times.Table {
	t := times.NewTable("test")
	for _, r := range rows {
		t.Rows = append(t.Rows, times.Row{FactRow: r})
	}
	return t
}

func TestConvertAndFilter_ScalarMultiply(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(times.FactRow{Value: 2, Unit: "PJ"})

	out, info := conv.ConvertAndFilter(table, nil, nil)

	require.Equal(t, 1, out.Len())
	assert.InDelta(t, 2_000_000, out.Rows[0].Value, 1e-6)
	assert.Equal(t, "GJ", out.Rows[0].Unit)
	assert.False(t, info.HasExclusions())
}

func TestConvertAndFilter_UnknownUnitExcluded(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(
		times.FactRow{Value: 1, Unit: "XYZ"},
		times.FactRow{Value: 2, Unit: "PJ"},
	)

	out, info := conv.ConvertAndFilter(table, nil, nil)

	require.Equal(t, 1, out.Len())
	assert.True(t, info.HasExclusions())
	assert.Equal(t, 1, info.ExcludedRows)
	assert.Equal(t, 1, info.UnknownUnits["XYZ"])
	assert.Contains(t, info.Summary(), "XYZ (1 rows)")
}

func TestConvertAndFilter_UnconvertibleExcluded(t *testing.T) {
	conv := testConverter(t)
	// DKK is a known currency but no direct rule reaches USD, and
	// chained conversions are never derived.
	table := rowsTable(times.FactRow{Value: 5, Unit: "PJ", Cur: "DKK"})

	out, info := conv.ConvertAndFilter(table, map[string]string{"energy": "GJ", "currency": "USD"}, nil)

	assert.Equal(t, 0, out.Len())
	assert.Equal(t, 1, info.ExcludedRows)
	assert.Equal(t, 1, info.UnconvertibleCurrencies["DKK→USD"])
}

func TestConvertAndFilter_UnconfiguredCategoryPassesThrough(t *testing.T) {
	conv := testConverter(t)
	// mass has no target unit configured; the row is kept unconverted.
	table := rowsTable(times.FactRow{Value: 4, Unit: "t"})

	out, info := conv.ConvertAndFilter(table, nil, nil)

	require.Equal(t, 1, out.Len())
	assert.InDelta(t, 4, out.Rows[0].Value, 1e-12)
	assert.Equal(t, "t", out.Rows[0].Unit)
	assert.False(t, info.HasExclusions())
}

func TestConvertAndFilter_UnselectedCategoryPassesThrough(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(times.FactRow{Value: 2, Unit: "PJ"})

	out, info := conv.ConvertAndFilter(table, nil, []string{"currency"})

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "PJ", out.Rows[0].Unit)
	assert.InDelta(t, 2, out.Rows[0].Value, 1e-12)
	assert.False(t, info.HasExclusions())
}

func TestConvertAndFilter_NullUnitPassesThrough(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(times.FactRow{Value: 9, Unit: ""}, times.FactRow{Value: 1, Unit: "NA"})

	out, info := conv.ConvertAndFilter(table, nil, nil)

	assert.Equal(t, 2, out.Len())
	assert.False(t, info.HasExclusions())
}

func TestConvertAndFilter_CurrencyConversion(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(times.FactRow{Value: 100, Cur: "DKK"})

	out, info := conv.ConvertAndFilter(table, nil, nil)

	require.Equal(t, 1, out.Len())
	assert.InDelta(t, 13.4, out.Rows[0].Value, 1e-9)
	assert.Equal(t, "EUR", out.Rows[0].Cur)
	assert.False(t, info.HasExclusions())
}

func TestConvertAndFilter_ExclusionCompleteness(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(
		times.FactRow{Value: 1, Unit: "PJ"},
		times.FactRow{Value: 2, Unit: "XYZ"},
		times.FactRow{Value: 3, Unit: "t"},
		times.FactRow{Value: 4, Unit: "ABC"},
		times.FactRow{Value: 5, Unit: "GJ"},
	)

	out, info := conv.ConvertAndFilter(table, nil, nil)

	assert.Equal(t, table.Len(), out.Len()+info.ExcludedRows)
	assert.Equal(t, table.Len(), info.TotalRows)

	tallied := 0
	for _, n := range info.UnknownUnits {
		tallied += n
	}
	for _, n := range info.UnconvertibleUnits {
		tallied += n
	}
	assert.Equal(t, info.ExcludedRows, tallied)
}

func TestConvertAndFilter_RoundTrip(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(times.FactRow{Value: 2.5, Unit: "PJ"})

	toGJ, info := conv.ConvertAndFilter(table, map[string]string{"energy": "GJ"}, nil)
	require.False(t, info.HasExclusions())
	back, info := conv.ConvertAndFilter(toGJ, map[string]string{"energy": "PJ"}, nil)
	require.False(t, info.HasExclusions())

	require.Equal(t, 1, back.Len())
	assert.InDelta(t, 2.5, back.Rows[0].Value, 1e-9)
	assert.Equal(t, "PJ", back.Rows[0].Unit)
}

func TestConvertAndFilter_DoesNotMutateInput(t *testing.T) {
	conv := testConverter(t)
	table := rowsTable(times.FactRow{Value: 2, Unit: "PJ"})

	_, _ = conv.ConvertAndFilter(table, nil, nil)

	assert.InDelta(t, 2, table.Rows[0].Value, 1e-12)
	assert.Equal(t, "PJ", table.Rows[0].Unit)
}

func TestExclusionInfo_Summary(t *testing.T) {
	info := newExclusionInfo(10)
	assert.False(t, info.HasExclusions())
	assert.Equal(t, "No rows excluded", info.Summary())

	info.ExcludedRows = 3
	info.UnknownUnits["XYZ"] = 2
	info.UnconvertibleCurrencies["DKK→USD"] = 1

	s := info.Summary()
	assert.Contains(t, s, "Excluded 3 of 10 rows")
	assert.Contains(t, s, "Unknown units: XYZ (2 rows)")
	assert.Contains(t, s, "Unconvertible currencies: DKK→USD (1 rows)")
}
