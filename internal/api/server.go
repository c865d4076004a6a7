// Package api is the HTTP chassis for the job and notification service.
// It builds a chi router with request-ID, tenant, logging, and recovery
// middleware, a JSON response envelope, and the domain handlers for job
// intake, cancellation, and billing summaries.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shiksha/internal/config"
)

// Server holds the API dependencies and the router they are mounted on.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	Jobs    *JobHandler
	Billing *BillingHandler

	// HealthProbes are checked by GET /health. Optional.
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer wires the server and performs fail-fast checks on required
// dependencies. The caller mounts routes afterwards via MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger, jobs *JobHandler, billing *BillingHandler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job handler must not be nil")
	}
	if billing == nil {
		return nil, fmt.Errorf("billing handler must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		Jobs:      jobs,
		Billing:   billing,
		router:    chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain and all routes.
//
// Middleware order matters: Recoverer is outermost so every panic is caught;
// RequestID runs before the logger so log lines carry the correlation ID;
// the tenant middleware applies only inside /v1, keeping /health public.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(OrganizationMiddleware)
		s.Jobs.RegisterRoutes(r)
		s.Billing.RegisterRoutes(r)
	})

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux, used by tests to mount fixtures.
func (s *Server) Router() *chi.Mux {
	return s.router
}
