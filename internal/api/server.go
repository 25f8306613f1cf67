// Package api implements SyncAPI (C7, spec §6.1 and §6.3): the HTTP
// surface for controlling sync runs and the WebSocket stream that fans
// out ProgressBus events, plus the /health aggregator.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/progressbus"
)

// syncController is the subset of *syncengine.Engine the API drives.
// Defined here, not in syncengine, per "accept interfaces at the
// consumer".
type syncController interface {
	Start(ctx context.Context, mode model.SyncMode, opts model.SyncOptions, triggeredBy model.TriggerSource) (model.SyncLog, error)
	Pause(syncID string) error
	Resume(syncID string) error
	Cancel(syncID string) error
	Current() (model.SyncLog, bool)
	Get(ctx context.Context, syncID string) (model.SyncLog, bool, error)
	History(ctx context.Context, filter model.SyncLogFilter, page model.Page) ([]model.SyncLog, error)
}

// pinger is satisfied by every storage-adjacent collaborator's Ping
// method (repository.Store, objectstore.MinioStore/FakeStore,
// upstream.Client). An alias, so callers outside this package can pass a
// map keyed by the equivalent interface literal.
type pinger = interface {
	Ping(ctx context.Context) error
}

// Config holds Server's collaborators.
type Config struct {
	Engine syncController
	Bus    *progressbus.Bus

	// Dependencies checked by GET /health, keyed by the name reported in
	// the response (e.g. "documentStore", "objectStore", "upstream").
	Dependencies map[string]pinger

	// SchedulerHealthy reports scheduler liveness for /health. Nil means
	// the scheduler is not wired into this process (e.g. a worker-only
	// deployment) and is reported as "not_configured".
	SchedulerHealthy func() bool

	Logger *slog.Logger
}

// Server is the HTTP surface, an *http.Handler via Handler().
type Server struct {
	engine       syncController
	bus          *progressbus.Bus
	dependencies map[string]pinger
	schedulerOK  func() bool
	logger       *slog.Logger

	router *mux.Router
}

// New builds a Server and registers every route.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:       cfg.Engine,
		bus:          cfg.Bus,
		dependencies: cfg.Dependencies,
		schedulerOK:  cfg.SchedulerHealthy,
		logger:       logger,
		router:       mux.NewRouter(),
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sync/start", s.handleSyncStart).Methods(http.MethodPost)
	api.HandleFunc("/sync/current", s.handleSyncCurrent).Methods(http.MethodGet)
	api.HandleFunc("/sync/history", s.handleSyncHistory).Methods(http.MethodGet)
	api.HandleFunc("/sync/progress", s.handleProgressStream).Methods(http.MethodGet)
	api.HandleFunc("/sync/{id}/pause", s.handleSyncPause).Methods(http.MethodPost)
	api.HandleFunc("/sync/{id}/resume", s.handleSyncResume).Methods(http.MethodPost)
	api.HandleFunc("/sync/{id}/cancel", s.handleSyncCancel).Methods(http.MethodPost)
	api.HandleFunc("/sync/{id}", s.handleSyncGet).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the server as an http.Handler, for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs one line per request, grounded on the pack's
// own request-logging middleware shape, translated from logrus to slog
// to match this module's ambient logging choice.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("api: request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
