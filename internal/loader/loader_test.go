package loader

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/speedlocal-labs/timesviz/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var factColumns = []string{
	"model", "scen", "sector", "subsector", "service", "techgroup", "comgroup",
	"topic", "attr", "prc", "com", "all_ts", "reg", "regfrom", "regto", "vntg",
	"year", "value", "unit", "cur",
}

// mockLoader wires a sqlmock connection into a loader, bypassing
// Connect.
func mockLoader(t *testing.T) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l := New(Source{Path: "mock.duckdb"}, testutil.NewTestLogger(t))
	l.db = db
	return l, mock
}

func TestLoadFacts(t *testing.T) {
	l, mock := mockLoader(t)

	rows := sqlmock.NewRows(factColumns).
		AddRow("times-dk", "BASE", "TRA", "ROAD", "", "", "OIL",
			"energy", "f_in", "TCAR", "DST", "ANNUAL", "DK", "", "", "",
			2030, 12.5, "PJ", "").
		AddRow("times-dk", "BASE", "ELC", nil, nil, nil, "ELC",
			"energy", "f_out", "EWIND", "ELC", "ANNUAL", "DK", "DK", "DE", nil,
			2040, 3.25, "PJ", nil)
	mock.ExpectQuery("SELECT model, scen, sector").WillReturnRows(rows)

	facts, err := l.LoadFacts(context.Background())
	require.NoError(t, err)
	require.Len(t, facts, 2)

	assert.Equal(t, "BASE", facts[0].Scen)
	assert.Equal(t, "TRA", facts[0].Sector)
	assert.Equal(t, 2030, facts[0].Year)
	assert.InDelta(t, 12.5, facts[0].Value, 1e-9)
	assert.Equal(t, "PJ", facts[0].Unit)

	// NULL columns scan to empty strings.
	assert.Empty(t, facts[1].Subsector)
	assert.Empty(t, facts[1].Cur)
	assert.Equal(t, "DE", facts[1].Regto)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFacts_QueryFailureIsSourceUnavailable(t *testing.T) {
	l, mock := mockLoader(t)
	mock.ExpectQuery("SELECT model, scen, sector").WillReturnError(assert.AnError)

	_, err := l.LoadFacts(context.Background())
	require.Error(t, err)

	var unavailable *SourceUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestLoadDescriptions(t *testing.T) {
	l, mock := mockLoader(t)

	mock.ExpectQuery("information_schema.tables").WillReturnRows(
		sqlmock.NewRows([]string{"table_name"}).
			AddRow("comgroup_desc").
			AddRow("timesreport_facts").
			AddRow("sector_desc"))

	mock.ExpectQuery(`SELECT id, description FROM "comgroup_desc"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "description"}).
			AddRow("OIL", "Oil products").
			AddRow("ELC", "Electricity"))
	mock.ExpectQuery(`SELECT id, description FROM "sector_desc"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "description"}).
			AddRow("TRA", "Transport").
			AddRow("OIL", "ignored duplicate").
			AddRow("", "blank codes are skipped"))

	descs, err := l.LoadDescriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"OIL": "Oil products",
		"ELC": "Electricity",
		"TRA": "Transport",
	}, descs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDescriptions_SkipsUnreadableTable(t *testing.T) {
	l, mock := mockLoader(t)

	mock.ExpectQuery("information_schema.tables").WillReturnRows(
		sqlmock.NewRows([]string{"table_name"}).
			AddRow("broken_desc").
			AddRow("sector_desc"))
	mock.ExpectQuery(`SELECT id, description FROM "broken_desc"`).WillReturnError(assert.AnError)
	mock.ExpectQuery(`SELECT id, description FROM "sector_desc"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "description"}).AddRow("TRA", "Transport"))

	descs, err := l.LoadDescriptions(context.Background())
	require.NoError(t, err, "one unreadable description table must not fail the load")
	assert.Equal(t, map[string]string{"TRA": "Transport"}, descs)
}

func TestTables(t *testing.T) {
	l, mock := mockLoader(t)
	mock.ExpectQuery("information_schema.tables").WillReturnRows(
		sqlmock.NewRows([]string{"table_name"}).
			AddRow("sector_desc").
			AddRow("timesreport_facts"))

	names, err := l.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sector_desc", "timesreport_facts"}, names)
}

func TestDistinctValues(t *testing.T) {
	l, mock := mockLoader(t)
	mock.ExpectQuery("SELECT DISTINCT").WillReturnRows(
		sqlmock.NewRows([]string{"scen"}).AddRow("BASE").AddRow("NETZERO"))

	values, err := l.DistinctValues(context.Background(), "scen")
	require.NoError(t, err)
	assert.Equal(t, []string{"BASE", "NETZERO"}, values)
}

func TestDistinctValues_RejectsUnknownColumn(t *testing.T) {
	l, _ := mockLoader(t)
	_, err := l.DistinctValues(context.Background(), "scen; DROP TABLE x")
	assert.Error(t, err)
}

func TestNotConnected(t *testing.T) {
	l := New(Source{Path: "x.duckdb"}, nil)
	ctx := context.Background()

	_, err := l.LoadFacts(ctx)
	assert.Error(t, err)
	_, err = l.LoadDescriptions(ctx)
	assert.Error(t, err)
	_, err = l.Tables(ctx)
	assert.Error(t, err)
	assert.NoError(t, l.Close())
}
