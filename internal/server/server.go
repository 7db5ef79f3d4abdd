// Package server exposes the casefolio REST API: case-study CRUD with
// optimistic concurrency and conflict resolution, template rendering, and a
// websocket stream of template changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/casefolio/casefolio/internal/config"
	"github.com/casefolio/casefolio/internal/conflict"
	"github.com/casefolio/casefolio/internal/logging"
	"github.com/casefolio/casefolio/internal/registry"
	"github.com/casefolio/casefolio/internal/store"
	"github.com/casefolio/casefolio/internal/template"
)

// Server wires the HTTP surface to the repositories and processors. All
// collaborators are injected; the server holds no ambient global state.
type Server struct {
	config    *config.Config
	logger    logging.Logger
	repo      *store.CaseStudyRepository
	templates *registry.TemplateRegistry
	processor *template.Processor
	resolver  *conflict.Resolver

	httpServer *http.Server
}

// New creates a server from its collaborators.
func New(
	cfg *config.Config,
	logger logging.Logger,
	repo *store.CaseStudyRepository,
	templates *registry.TemplateRegistry,
) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger.WithComponent("server"),
		repo:      repo,
		templates: templates,
		processor: template.NewProcessor(),
		resolver:  conflict.NewResolver(),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/case-studies", s.handleListCaseStudies)
	mux.HandleFunc("POST /api/case-studies", s.handleCreateCaseStudy)
	mux.HandleFunc("GET /api/case-studies/{id}", s.handleGetCaseStudy)
	mux.HandleFunc("PUT /api/case-studies/{id}", s.handleUpdateCaseStudy)
	mux.HandleFunc("DELETE /api/case-studies/{id}", s.handleDeleteCaseStudy)
	mux.HandleFunc("POST /api/case-studies/{id}/resolve", s.handleResolveConflict)

	mux.HandleFunc("GET /api/case-studies/{id}/revisions", s.handleListRevisions)
	mux.HandleFunc("GET /api/case-studies/{id}/revisions/{rev}", s.handleGetRevision)
	mux.HandleFunc("POST /api/case-studies/{id}/revisions/{rev}/restore", s.handleRestoreRevision)

	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("GET /api/templates/{name}", s.handleGetTemplate)
	mux.HandleFunc("GET /api/templates/{name}/variables", s.handleTemplateVariables)
	mux.HandleFunc("POST /api/templates/{name}/validate", s.handleValidateTemplate)
	mux.HandleFunc("POST /api/templates/{name}/render", s.handleRenderTemplate)
	mux.HandleFunc("POST /api/templates/{name}/apply", s.handleApplyTemplate)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the fully assembled HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info(shutdownCtx, "shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// withMiddleware wraps the mux with recovery, CORS and request logging, in
// that order from the outside in.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return s.recoverPanics(s.cors(s.logRequests(next)))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error(r.Context(), fmt.Errorf("panic: %v", rec), "handler panicked",
					"path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
