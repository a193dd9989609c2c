// Package api exposes pulse's local web API: health probes, Prometheus
// metrics, day summaries, readiness assessments and a sync trigger.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bernardmuller/pulse/internal/cache"
	"github.com/bernardmuller/pulse/internal/config"
	"github.com/bernardmuller/pulse/internal/health"
	"github.com/bernardmuller/pulse/internal/jobs"
	"github.com/bernardmuller/pulse/internal/store"
)

// apiVersion is sent on every response so clients can detect contract changes.
const apiVersion = "1"

// Deps carries everything the server needs; all fields are required unless
// noted.
type Deps struct {
	Config  *config.Holder
	Store   *store.Store
	Cache   cache.Cache // optional, nil disables caching
	Syncer  *jobs.Syncer
	Health  *health.Manager
	Version string
}

// Server is the pulse HTTP API.
type Server struct {
	deps   Deps
	router chi.Router
}

// New builds the router. Call Handler to serve it.
func New(deps Deps) *Server {
	if deps.Cache == nil {
		deps.Cache = cache.NewNoOp()
	}
	s := &Server{deps: deps}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	cfg := s.deps.Config.Current()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(versionHeaderMiddleware)
	r.Use(tracingMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recovererMiddleware)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRPM > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRPM, time.Minute))
		}
		if cfg.APIToken != "" {
			r.Use(bearerAuthMiddleware(cfg.APIToken))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/summary/{date}", s.handleSummary)
		r.Get("/readiness/{date}", s.handleReadiness)
		r.Post("/sync", s.handleSync)
	})

	s.router = r
}
