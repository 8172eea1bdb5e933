// Package loader connects to a TIMES reporting database (a DuckDB file,
// local or downloaded from a URL) and extracts fact rows and label
// descriptions for the table builder. It is the only component that
// touches the network or the database; everything downstream operates
// on in-memory tables.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/speedlocal-labs/timesviz/internal/times"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// SourceUnavailableError reports that the data source could not be
// reached, has expired, or is corrupt. It is fatal to the reload
// attempt that hit it, and to nothing else.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("data source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// Source describes where the reporting database lives.
type Source struct {
	// Path is a local DuckDB file. Ignored when URL is set.
	Path string
	// URL is a remote DuckDB file downloaded and cached locally.
	URL string
	// CacheDir is where downloaded databases are kept. Defaults to a
	// subdirectory of the user cache dir.
	CacheDir string
}

func (s Source) String() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

// Loader owns the database connection for one session.
type Loader struct {
	source Source
	db     *sql.DB
	logger *slog.Logger
}

// New creates a loader for the given source. logger may be nil.
func New(source Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{source: source, logger: logger}
}

// Connect resolves the source (downloading and caching remote files)
// and opens a read-only DuckDB connection.
func (l *Loader) Connect(ctx context.Context) error {
	path := l.source.Path
	if l.source.URL != "" {
		downloaded, err := l.download(ctx)
		if err != nil {
			return &SourceUnavailableError{Source: l.source.String(), Err: err}
		}
		path = downloaded
	} else if _, err := os.Stat(path); err != nil {
		return &SourceUnavailableError{Source: l.source.String(), Err: err}
	}

	db, err := sql.Open("duckdb", path+"?access_mode=READ_ONLY")
	if err != nil {
		return &SourceUnavailableError{Source: l.source.String(), Err: fmt.Errorf("open duckdb: %w", err)}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &SourceUnavailableError{Source: l.source.String(), Err: fmt.Errorf("ping duckdb: %w", err)}
	}

	l.db = db
	l.logger.Info("connected to reporting database", "source", l.source.String())
	return nil
}

// DB exposes the underlying connection for ad-hoc queries (REPL).
func (l *Loader) DB() *sql.DB { return l.db }

// Close releases the database connection.
func (l *Loader) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// LoadFacts reads the full fact table.
func (l *Loader) LoadFacts(ctx context.Context) ([]times.FactRow, error) {
	if l.db == nil {
		return nil, fmt.Errorf("not connected")
	}

	query := `SELECT model, scen, sector, subsector, service, techgroup, comgroup,
		topic, attr, prc, com, all_ts, reg, regfrom, regto, vntg, year, value, unit, cur
		FROM ` + times.FactTableName

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &SourceUnavailableError{Source: l.source.String(), Err: fmt.Errorf("query facts: %w", err)}
	}
	defer func() { _ = rows.Close() }()

	var facts []times.FactRow
	for rows.Next() {
		var (
			str  [16]sql.NullString
			year sql.NullInt64
			val  sql.NullFloat64
			unit sql.NullString
			cur  sql.NullString
		)
		if err := rows.Scan(
			&str[0], &str[1], &str[2], &str[3], &str[4], &str[5], &str[6],
			&str[7], &str[8], &str[9], &str[10], &str[11], &str[12], &str[13],
			&str[14], &str[15], &year, &val, &unit, &cur,
		); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		facts = append(facts, times.FactRow{
			Model: str[0].String, Scen: str[1].String, Sector: str[2].String,
			Subsector: str[3].String, Service: str[4].String, Techgroup: str[5].String,
			Comgroup: str[6].String, Topic: str[7].String, Attr: str[8].String,
			Prc: str[9].String, Com: str[10].String, AllTS: str[11].String,
			Reg: str[12].String, Regfrom: str[13].String, Regto: str[14].String,
			Vntg: str[15].String,
			Year: int(year.Int64), Value: val.Float64,
			Unit: unit.String, Cur: cur.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}

	l.logger.Info("loaded fact rows", "rows", len(facts))
	return facts, nil
}

// LoadDescriptions scans every *_desc table (id, description columns)
// into a single code -> display-name lookup. Tables without the two
// columns are skipped with a debug log; the first description for a
// code wins.
func (l *Loader) LoadDescriptions(ctx context.Context) (map[string]string, error) {
	if l.db == nil {
		return nil, fmt.Errorf("not connected")
	}

	names, err := l.Tables(ctx)
	if err != nil {
		return nil, err
	}

	descs := make(map[string]string)
	for _, name := range names {
		if !strings.HasSuffix(strings.ToLower(name), "_desc") {
			continue
		}
		query := fmt.Sprintf(`SELECT id, description FROM %q`, name)
		rows, err := l.db.QueryContext(ctx, query)
		if err != nil {
			l.logger.Debug("skipping description table", "table", name, "error", err)
			continue
		}
		count := 0
		for rows.Next() {
			var id, desc sql.NullString
			if err := rows.Scan(&id, &desc); err != nil {
				break
			}
			if id.String == "" || desc.String == "" {
				continue
			}
			if _, ok := descs[id.String]; !ok {
				descs[id.String] = desc.String
			}
			count++
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			l.logger.Debug("skipping description table", "table", name, "error", err)
			continue
		}
		l.logger.Debug("loaded description table", "table", name, "records", count)
	}
	return descs, nil
}

// Tables lists the tables in the database.
func (l *Loader) Tables(ctx context.Context) ([]string, error) {
	if l.db == nil {
		return nil, fmt.Errorf("not connected")
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DistinctValues returns the distinct non-null values of a fact-table
// column, ordered.
func (l *Loader) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if l.db == nil {
		return nil, fmt.Errorf("not connected")
	}
	if !validColumn(column) {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	query := fmt.Sprintf(`SELECT DISTINCT CAST(%s AS VARCHAR) FROM %s WHERE %s IS NOT NULL ORDER BY 1`,
		column, times.FactTableName, column)
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func validColumn(col string) bool {
	for _, c := range times.FilterColumns {
		if c == col {
			return true
		}
	}
	return false
}
