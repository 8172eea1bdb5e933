package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/session"
	"github.com/speedlocal-labs/timesviz/internal/times"
	"github.com/speedlocal-labs/timesviz/internal/viz"
)

const defaultRowLimit = 500

func (s *Server) routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{name}", s.handleGetTable)
		r.Get("/filters", s.handleGetFilters)
		r.Put("/filters", s.handleSetFilters)
		r.Delete("/filters", s.handleResetFilters)
		r.Get("/filters/{column}/values", s.handleFilterValues)
		r.Get("/charts", s.handleListCharts)
		r.Get("/charts/{name}", s.handleGetChart)
		r.Get("/report", s.handleReport)
		r.Post("/reload", s.handleReload)
		r.Get("/events", s.handleEvents)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// current returns the active session or replies 503.
func (s *Server) current(w http.ResponseWriter) *session.Session {
	sess := s.manager.Current()
	if sess == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no data loaded; reload the source"))
	}
	return sess
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var generation uint64
	if sess := s.manager.Current(); sess != nil {
		generation = sess.Generation()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": generation,
	})
}

type tableInfo struct {
	Name      string `json:"name"`
	Rows      int    `json:"rows"`
	Available bool   `json:"available"`
}

func (s *Server) handleListTables(w http.ResponseWriter, _ *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	names := sess.TableNames()
	sort.Strings(names)
	infos := make([]tableInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, tableInfo{
			Name:      name,
			Rows:      sess.Table(name).Len(),
			Available: sess.Report.Available(name),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// rowPayload is the wire form of a derived-table row.
type rowPayload struct {
	Scen      string  `json:"scen,omitempty"`
	Sector    string  `json:"sector,omitempty"`
	Subsector string  `json:"subsector,omitempty"`
	Service   string  `json:"service,omitempty"`
	Techgroup string  `json:"techgroup,omitempty"`
	Comgroup  string  `json:"comgroup,omitempty"`
	Topic     string  `json:"topic,omitempty"`
	Attr      string  `json:"attr,omitempty"`
	Prc       string  `json:"prc,omitempty"`
	Com       string  `json:"com,omitempty"`
	Reg       string  `json:"reg,omitempty"`
	Regfrom   string  `json:"regfrom,omitempty"`
	Regto     string  `json:"regto,omitempty"`
	Year      int     `json:"year,omitempty"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Cur       string  `json:"cur,omitempty"`
	Label     string  `json:"label,omitempty"`
}

func toPayload(r *times.Row) rowPayload {
	return rowPayload{
		Scen: r.Scen, Sector: r.Sector, Subsector: r.Subsector,
		Service: r.Service, Techgroup: r.Techgroup, Comgroup: r.Comgroup,
		Topic: r.Topic, Attr: r.Attr, Prc: r.Prc, Com: r.Com,
		Reg: r.Reg, Regfrom: r.Regfrom, Regto: r.Regto,
		Year: r.Year, Value: r.Value, Unit: r.Unit, Cur: r.Cur,
		Label: r.Label,
	}
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	name := chi.URLParam(r, "name")
	table := sess.Table(name)
	if table == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown table %q", name))
		return
	}

	state := s.clientState(w, r, sess)
	filtered := state.Apply(table)

	limit := defaultRowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	rows := filtered.Rows
	truncated := false
	if len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	}
	payload := make([]rowPayload, len(rows))
	for i := range rows {
		payload[i] = toPayload(&rows[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      name,
		"total":     filtered.Len(),
		"truncated": truncated,
		"rows":      payload,
	})
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	state := s.clientState(w, r, sess)
	out := make(map[string][]string)
	for col, sel := range state.Active() {
		out[col] = sel.Values()
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSetFilters replaces selections from a {column: values} body.
// A JSON null value clears a column back to "all"; an empty array
// selects nothing.
func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	var body map[string]*[]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode filters: %w", err))
		return
	}

	state := s.clientState(w, r, sess)
	for col, values := range body {
		var sel filter.Selection
		if values != nil {
			sel = filter.NewSelection(*values...)
		}
		if !state.Set(col, sel) {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("column %q not present in any loaded table", col))
			return
		}
	}
	s.handleGetFilters(w, r)
}

func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	s.clientState(w, r, sess).Reset()
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleFilterValues(w http.ResponseWriter, r *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	column := chi.URLParam(r, "column")
	if !sess.Schema.HasColumn(column) {
		writeError(w, http.StatusNotFound, fmt.Errorf("column %q not present in any loaded table", column))
		return
	}
	writeJSON(w, http.StatusOK, filter.AvailableValues(column, sess.Tables))
}

type chartInfo struct {
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Tables []string `json:"tables"`
}

func (s *Server) handleListCharts(w http.ResponseWriter, _ *http.Request) {
	infos := make([]chartInfo, 0)
	for _, name := range s.registry.Names() {
		m, _ := s.registry.Get(name)
		infos = append(infos, chartInfo{Name: m.Name(), Title: m.Title(), Tables: m.RequiredTables()})
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	name := chi.URLParam(r, "name")
	module, ok := s.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown chart %q", name))
		return
	}

	state := s.clientState(w, r, sess)
	spec, err := module.Build(sess.Tables, state, sess.Converter)
	if err != nil {
		var missing *viz.MissingTableError
		if errors.As(err, &missing) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

type definitionErrorPayload struct {
	Table string `json:"table"`
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	report := sess.Report
	errs := make([]definitionErrorPayload, 0, len(report.Errors))
	for _, e := range report.Errors {
		errs = append(errs, definitionErrorPayload{Table: e.Table, Line: e.Line, Error: e.Err.Error()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":           report.Summary(),
		"counts":            report.Counts,
		"definition_errors": errs,
		"warnings":          report.Warnings,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Reload(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrSuperseded) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	s.notifier.broadcast()
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": sess.Generation(),
		"tables":     len(sess.Tables),
		"summary":    sess.Report.Summary(),
	})
}

// handleEvents streams reload pings as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ch := s.notifier.subscribe()
	defer s.notifier.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			_, _ = fmt.Fprint(w, "event: reload\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
