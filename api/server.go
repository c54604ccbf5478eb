package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/arbiter/engine"
	"github.com/sentinelops/arbiter/telemetry"
)

// Server exposes the review queue over HTTP
type Server struct {
	router  *chi.Mux
	logger  *telemetry.Logger
	service *engine.Service
	started time.Time
}

// NewServer creates the HTTP surface for the engine
func NewServer(service *engine.Service) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		logger:  telemetry.NewLogger("api"),
		service: service,
		started: time.Now(),
	}

	s.routes()
	return s
}

// Handler returns the root http handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/actions", s.handleCreateAction)
		r.Post("/actions/correlate", s.handleCorrelate)
		r.Get("/actions", s.handleListActions)
		r.Get("/actions/{id}", s.handleGetAction)
		r.Get("/actions/{id}/history", s.handleActionHistory)
		r.Post("/actions/{id}/approve", s.handleApprove)
		r.Post("/actions/{id}/reject", s.handleReject)
		r.Post("/actions/{id}/release", s.handleRelease)
		r.Post("/actions/{id}/dispatch", s.handleDispatch)
		r.Get("/stats", s.handleStats)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}
