package session

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/loader"
	"github.com/speedlocal-labs/timesviz/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/marcboeker/go-duckdb"
)

// fixtureDB writes a small reporting database with a fact table and
// one description table.
func fixtureDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "results.duckdb")

	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	_, err = db.Exec(`CREATE TABLE timesreport_facts (
		model VARCHAR, scen VARCHAR, sector VARCHAR, subsector VARCHAR,
		service VARCHAR, techgroup VARCHAR, comgroup VARCHAR, topic VARCHAR,
		attr VARCHAR, prc VARCHAR, com VARCHAR, all_ts VARCHAR,
		reg VARCHAR, regfrom VARCHAR, regto VARCHAR, vntg VARCHAR,
		year INTEGER, value DOUBLE, unit VARCHAR, cur VARCHAR)`)
	require.NoError(t, err)

	facts := []struct {
		scen, sector, comgroup, topic, attr string
		year                                int
		value                               float64
		unit                                string
	}{
		{"BASE", "TRA", "OIL", "energy", "f_in", 2030, 10, "PJ"},
		{"BASE", "IND", "GAS", "energy", "f_in", 2030, 5, "PJ"},
		{"BASE", "TRA", "OIL", "energy", "f_in", 2040, 7, "PJ"},
		{"NETZERO", "TRA", "ELC", "energy", "f_in", 2040, 3, "PJ"},
	}
	for _, f := range facts {
		_, err = db.Exec(`INSERT INTO timesreport_facts
			(model, scen, sector, comgroup, topic, attr, year, value, unit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			"times-dk", f.scen, f.sector, f.comgroup, f.topic, f.attr, f.year, f.value, f.unit)
		require.NoError(t, err)
	}

	_, err = db.Exec(`CREATE TABLE comgroup_desc (id VARCHAR, description VARCHAR)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO comgroup_desc VALUES ('OIL', 'Oil products'), ('GAS', 'Natural gas')`)
	require.NoError(t, err)

	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		Source:      loader.Source{Path: fixtureDB(t, dir)},
		MappingPath: writeFile(t, dir, "mapping.csv", "table,label,topic\nenergy,comgroup,energy\n"),
		UnitsPath: writeFile(t, dir, "units.csv",
			"unit_long,from_unit,to_unit,factor,category\nGigajoule,PJ,GJ,1e6,energy\n"),
		DefaultsPath: writeFile(t, dir, "default_units.yaml", "default_units:\n  energy: GJ\n"),
		Logger:       testutil.NewTestLogger(t),
	}
}

func TestManager_Reload(t *testing.T) {
	mgr := NewManager(testConfig(t))
	assert.Nil(t, mgr.Current())

	sess, err := mgr.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, sess, mgr.Current())
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, uint64(1), sess.Generation())

	energy := sess.Table("energy")
	require.NotNil(t, energy)
	assert.Equal(t, 4, energy.Len())
	assert.True(t, sess.Report.Available("energy"))
	assert.Equal(t, "Oil products", energy.Rows[0].Label)

	assert.True(t, sess.Schema.HasColumn("scen"))
	assert.Equal(t, "Oil products", sess.Descriptions["OIL"])
	assert.Equal(t, map[string]string{"energy": "GJ"}, sess.Converter.DefaultTargets())
}

func TestManager_ReloadReplacesSession(t *testing.T) {
	mgr := NewManager(testConfig(t))
	ctx := context.Background()

	first, err := mgr.Reload(ctx)
	require.NoError(t, err)
	second, err := mgr.Reload(ctx)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, uint64(2), second.Generation())
	assert.Same(t, second, mgr.Current())
}

func TestManager_StaleReloadDiscarded(t *testing.T) {
	mgr := NewManager(testConfig(t))
	ctx := context.Background()

	// Generation 1 starts building first but finishes last.
	stale, err := mgr.build(ctx, mgr.nextGen.Add(1))
	require.NoError(t, err)
	newer, err := mgr.Reload(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), newer.Generation())

	_, err = mgr.publish(stale)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Same(t, newer, mgr.Current(), "only the newer generation is visible")
}

func TestManager_ReloadFailureKeepsSession(t *testing.T) {
	cfg := testConfig(t)
	mgr := NewManager(cfg)
	ctx := context.Background()

	sess, err := mgr.Reload(ctx)
	require.NoError(t, err)

	// Break the mapping file; the next reload fails but the old
	// session stays in place.
	require.NoError(t, os.Remove(cfg.MappingPath))
	_, err = mgr.Reload(ctx)
	require.Error(t, err)
	assert.Same(t, sess, mgr.Current())
}

func TestManager_ReloadMissingSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source = loader.Source{Path: filepath.Join(t.TempDir(), "absent.duckdb")}
	mgr := NewManager(cfg)

	_, err := mgr.Reload(context.Background())
	require.Error(t, err)

	var unavailable *loader.SourceUnavailableError
	assert.True(t, errors.As(err, &unavailable), "got %v", err)
	assert.Nil(t, mgr.Current())
}

func TestManager_Disconnect(t *testing.T) {
	mgr := NewManager(testConfig(t))
	_, err := mgr.Reload(context.Background())
	require.NoError(t, err)

	mgr.Disconnect()
	assert.Nil(t, mgr.Current())
}

func TestSession_FilteredTable(t *testing.T) {
	mgr := NewManager(testConfig(t))
	sess, err := mgr.Reload(context.Background())
	require.NoError(t, err)

	require.True(t, sess.Filters.Set("scen", filter.NewSelection("NETZERO")))
	filtered := sess.FilteredTable("energy")
	require.NotNil(t, filtered)
	assert.Equal(t, 1, filtered.Len())
	assert.Equal(t, 4, sess.Table("energy").Len(), "source table untouched")

	assert.Nil(t, sess.FilteredTable("nope"))
}

func TestSession_TableNames(t *testing.T) {
	mgr := NewManager(testConfig(t))
	sess, err := mgr.Reload(context.Background())
	require.NoError(t, err)

	names := sess.TableNames()
	require.Len(t, names, 1)
	assert.Equal(t, "energy", names[0])
}
