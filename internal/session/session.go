// Package session owns the per-session state of the explorer: the
// derived tables, the interactive filter state, and the reload cycle.
// A session's tables are exclusively owned and never mutated in place;
// reload builds a complete replacement and swaps it in atomically.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/speedlocal-labs/timesviz/internal/builder"
	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/loader"
	"github.com/speedlocal-labs/timesviz/internal/mapping"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/units"
)

// ErrSuperseded is returned by Reload when a newer reload finished
// first; the stale result has been discarded.
var ErrSuperseded = errors.New("reload superseded by a newer one")

// Session is one fully built view of the data: derived tables, schema,
// filter state, converter, and the build report. Created on connect,
// replaced wholesale on reload, discarded on disconnect.
type Session struct {
	ID           string
	Tables       map[string]*times.Table
	Schema       *times.Schema
	Filters      *filter.State
	Report       *builder.Report
	Converter    *units.Converter
	Descriptions map[string]string

	generation uint64
}

// Generation returns the reload generation that produced this session.
func (s *Session) Generation() uint64 { return s.generation }

// Table returns a named derived table, nil when absent.
func (s *Session) Table(name string) *times.Table { return s.Tables[name] }

// FilteredTable applies the session's filter state to a table,
// returning a new table. Nil for unknown tables.
func (s *Session) FilteredTable(name string) *times.Table {
	t := s.Tables[name]
	if t == nil {
		return nil
	}
	return s.Filters.Apply(t)
}

// TableNames returns the names of the loaded tables, unordered.
func (s *Session) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	return names
}

// Config wires a Manager to its data source and configuration files.
type Config struct {
	Source       loader.Source
	MappingPath  string
	UnitsPath    string
	DefaultsPath string
	Logger       *slog.Logger
}

// Manager builds sessions and guards reloads with a monotonically
// increasing generation so a stale in-flight rebuild never overwrites
// a newer one.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	current *Session
	nextGen atomic.Uint64
}

// NewManager creates a manager. No session exists until Reload runs.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Current returns the active session, nil before the first reload.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload builds a complete new session and swaps it in. When a newer
// reload was published while this one was in flight, the result is
// discarded and ErrSuperseded returned. Failures leave the previous
// session in place.
func (m *Manager) Reload(ctx context.Context) (*Session, error) {
	gen := m.nextGen.Add(1)
	m.logger.Info("reload started", "generation", gen)

	sess, err := m.build(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("reload generation %d: %w", gen, err)
	}
	return m.publish(sess)
}

// publish swaps a freshly built session in, unless a newer generation
// already took its place.
func (m *Manager) publish(sess *Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.generation > sess.generation {
		m.logger.Warn("discarding stale reload", "generation", sess.generation, "current", m.current.generation)
		return nil, ErrSuperseded
	}
	m.current = sess
	m.logger.Info("reload complete", "generation", sess.generation, "tables", len(sess.Tables))
	return sess, nil
}

// Disconnect discards the active session.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// build assembles a session from scratch: configuration, facts,
// descriptions, derived tables, schema, and a fresh filter state.
func (m *Manager) build(ctx context.Context, gen uint64) (*Session, error) {
	defs, err := mapping.Load(m.cfg.MappingPath)
	if err != nil {
		return nil, err
	}
	rules, err := units.LoadRules(m.cfg.UnitsPath)
	if err != nil {
		return nil, err
	}
	var defaults units.Defaults
	if m.cfg.DefaultsPath != "" {
		defaults, err = units.LoadDefaults(m.cfg.DefaultsPath)
		if err != nil {
			return nil, err
		}
	}

	ld := loader.New(m.cfg.Source, m.logger)
	if err := ld.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = ld.Close() }()

	facts, err := ld.LoadFacts(ctx)
	if err != nil {
		return nil, err
	}
	descs, err := ld.LoadDescriptions(ctx)
	if err != nil {
		return nil, err
	}

	tables, report := builder.New(descs, m.logger).Build(facts, defs)
	schema := times.SchemaOf(tables)

	return &Session{
		ID:           uuid.NewString(),
		Tables:       tables,
		Schema:       schema,
		Filters:      filter.NewState(schema),
		Report:       report,
		Converter:    units.NewConverter(rules, defaults),
		Descriptions: descs,
		generation:   gen,
	}, nil
}
