// Package core provides the HTTP chassis for the announcer: a chi router
// carrying the control API, the inbound webhook surface and the health and
// metrics endpoints. It enforces cross-cutting concerns (panic recovery,
// request correlation, logging, timeouts) before requests reach handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"homeweather/internal/config"
)

// MetricsCollector records HTTP request telemetry.
type MetricsCollector interface {
	// RecordRequest records one request. endpoint is the route pattern, not
	// the raw path, so webhook ids do not explode label cardinality.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the dependencies of the HTTP surface.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  MetricsCollector
	Webhooks *WebhookRegistry

	// HealthProbes are fanned out by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount the control API under /v1. They are supplied
	// by the entry point so core does not import the handler packages.
	V1RouteRegistrars []func(chi.Router)

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	router *chi.Mux
}

// NewServer validates its inputs and returns a server with an empty router.
// Callers mount routes with MountRoutes after filling the optional fields.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Webhooks: NewWebhookRegistry(logger),
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// HTTPServer builds the listener for addr with timeouts derived from config.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.requestTimeout() + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Shutdown drains the listener. Webhook handlers are already detached from
// the request and are not waited on here.
func (s *Server) Shutdown(ctx context.Context, srv *http.Server) error {
	s.Logger.Info("server shutdown initiated")
	if err := srv.Shutdown(ctx); err != nil {
		s.Logger.Error("error draining http server", "error", err)
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
