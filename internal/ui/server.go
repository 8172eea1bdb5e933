// Package ui serves the dashboard API: derived tables, filter state,
// chart specs, and reload control over HTTP. Chart rendering happens
// client-side; this server only ships data.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/speedlocal-labs/timesviz/internal/filter"
	"github.com/speedlocal-labs/timesviz/internal/session"
	"github.com/speedlocal-labs/timesviz/internal/viz"
	"golang.org/x/sync/errgroup"
)

const sessionCookie = "timesviz_session"

// Config holds configuration for the dashboard server.
type Config struct {
	Manager       *session.Manager
	Registry      *viz.Registry
	Port          int
	Watch         bool
	WatchPaths    []string
	SessionSecret string
	Logger        *slog.Logger
}

// Server is the dashboard API server. Each browser session gets its
// own filter state over the shared, read-only derived tables.
type Server struct {
	manager      *session.Manager
	registry     *viz.Registry
	sessionStore *sessions.CookieStore
	port         int
	watch        bool
	watchPaths   []string
	logger       *slog.Logger
	notifier     *notifier

	mu      sync.Mutex
	filters map[string]*clientFilters
}

// clientFilters is one browser's filter state, pinned to the reload
// generation it was built against. A newer generation resets it.
type clientFilters struct {
	generation uint64
	state      *filter.State
}

// NewServer creates a dashboard server.
func NewServer(cfg Config) *Server {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.MaxAge(86400 * 30)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		manager:      cfg.Manager,
		registry:     cfg.Registry,
		sessionStore: store,
		port:         cfg.Port,
		watch:        cfg.Watch,
		watchPaths:   cfg.WatchPaths,
		logger:       logger,
		notifier:     newNotifier(),
		filters:      make(map[string]*clientFilters),
	}
}

// Serve runs the server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting dashboard server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.routes(r)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down dashboard server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchFiles reloads the session when a watched configuration file
// (mapping CSV, conversion rules) changes on disk.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, path := range s.watchPaths {
		if path == "" {
			continue
		}
		if err := watcher.Add(path); err != nil {
			s.logger.Warn("cannot watch file", "path", path, "error", err)
		}
	}

	// Editors fire bursts of events on save; debounce before rebuilding.
	var timer *time.Timer
	reload := func() {
		s.logger.Info("configuration changed, reloading")
		if _, err := s.manager.Reload(ctx); err != nil {
			if !errors.Is(err, session.ErrSuperseded) {
				s.logger.Error("reload failed", "error", err)
			}
			return
		}
		s.notifier.broadcast()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(500*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

// clientState returns (creating if needed) the filter state for the
// requesting browser, reset whenever the table generation moved on.
func (s *Server) clientState(w http.ResponseWriter, r *http.Request, sess *session.Session) *filter.State {
	httpSess, _ := s.sessionStore.Get(r, sessionCookie)
	id, _ := httpSess.Values["id"].(string)
	if id == "" {
		id = uuid.NewString()
		httpSess.Values["id"] = id
		_ = httpSess.Save(r, w)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cf, ok := s.filters[id]
	if !ok || cf.generation != sess.Generation() {
		cf = &clientFilters{
			generation: sess.Generation(),
			state:      filter.NewState(sess.Schema),
		}
		s.filters[id] = cf
	}
	return cf.state
}
