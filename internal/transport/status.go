// Package transport serves the read-only status surface: run summary,
// health, version, and Prometheus metrics. Triggering and upload
// endpoints belong to the surrounding function layer, not here.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"sensorstd/internal/engine"
	apierrors "sensorstd/internal/errors"
	"sensorstd/pkg/contracts"
)

// StatusServer exposes the engine's run state over HTTP.
type StatusServer struct {
	tracker *engine.RunTracker
	metrics http.Handler
	logger  *slog.Logger
	server  *http.Server
}

// NewStatusServer creates the status server. metricsHandler may be nil
// when metrics are disabled.
func NewStatusServer(port int, tracker *engine.RunTracker, metricsHandler http.Handler, logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StatusServer{
		tracker: tracker,
		metrics: metricsHandler,
		logger:  logger.With(slog.String("component", "status_server")),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *StatusServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/version", s.handleVersion)
	r.Get("/api/run", s.handleRun)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, apierrors.ErrNotFound)
	})
	return r
}

func (s *StatusServer) renderError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	if err := render.Render(w, r, apierrors.NewErrorResponse(apiErr)); err != nil {
		s.logger.Error("failed to render error response", slog.String("error", err.Error()))
	}
}

// handleHealth handles GET /healthz
func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// handleVersion handles GET /api/version
func (s *StatusServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}

// handleRun handles GET /api/run
func (s *StatusServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.tracker.Started() {
		s.renderError(w, r, apierrors.ErrRunNotStarted)
		return
	}
	render.JSON(w, r, s.tracker.Snapshot())
}

// Start begins serving in the background.
func (s *StatusServer) Start() {
	go func() {
		s.logger.Info("status server listening", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
