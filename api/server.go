// Package api exposes the grading workspace over HTTP for the surrounding
// UI. One grader, one active session: starting a new session discards the
// previous one.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/judge"
	"github.com/rubricguard/rubricguard/workspace"
)

// Source yields the active catalog. A fsnotify-backed catalog.Watcher
// satisfies it; StaticSource wraps a catalog that never changes.
type Source interface {
	Current() *catalog.Catalog
}

// StaticSource serves a fixed catalog.
type StaticSource struct {
	Catalog *catalog.Catalog
}

// Current returns the wrapped catalog.
func (s StaticSource) Current() *catalog.Catalog { return s.Catalog }

// Server routes grading workspace operations over HTTP.
type Server struct {
	source   Source
	judge    judge.Interface
	wsConfig workspace.Config
	logger   *slog.Logger

	mu sync.Mutex
	ws *workspace.Workspace
}

// NewServer creates an API server over the given catalog source and
// judgment service.
func NewServer(source Source, j judge.Interface, wsConfig workspace.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		source:   source,
		judge:    j,
		wsConfig: wsConfig,
		logger:   logger,
	}
}

// Routes builds the chi router for the API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/assignments", s.listAssignments)

	r.Route("/session", func(sr chi.Router) {
		sr.Post("/", s.startSession)
		sr.Delete("/", s.closeSession)
		sr.Get("/", s.getSession)
		sr.Get("/analytics", s.getAnalytics)
		sr.Post("/next", s.nextSubmission)
		sr.Post("/previous", s.previousSubmission)
		sr.Post("/finalize", s.finalizeSession)
		sr.Patch("/criteria/{criterionID}", s.updateCriterion)
		sr.Post("/criteria/{criterionID}/highlight", s.attachHighlight)
	})

	return r
}

// active returns the current workspace, or nil when no session is running.
func (s *Server) active() *workspace.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

// writeWorkspaceError maps workspace errors onto HTTP status codes.
func writeWorkspaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrUnknownCriterion):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workspace.ErrIncompleteSubmission),
		errors.Is(err, workspace.ErrAtBoundary),
		errors.Is(err, workspace.ErrFinalized):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
