package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/engine"
	"github.com/locumbnb/enforcement/internal/screening"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, screener *screening.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, eng, screener, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Cancellation cases
		r.Post("/cancellations", handler.CreateCancellation)
		r.Post("/cancellations/{id}/transition", handler.TransitionCancellation)

		// Penalty charges
		r.Get("/charges/{id}", handler.GetCharge)
		r.Post("/charges/{id}/waive", handler.WaiveCharge)

		// Circumvention violations
		r.Post("/violations", handler.ReportViolation)
		r.Post("/violations/{id}/transition", handler.TransitionViolation)

		// Penalty invoices
		r.Get("/invoices/{id}", handler.GetInvoice)

		// Disputes
		r.Get("/disputes/eligibility", handler.DisputeEligibility)
		r.Post("/disputes", handler.CreateDispute)
		r.Post("/disputes/{id}/transition", handler.TransitionDispute)
		r.Post("/disputes/{id}/resolve", handler.ResolveDispute)

		// Case retrieval (any kind)
		r.Get("/cases", handler.ListCases)
		r.Get("/cases/{id}", handler.GetCase)
		r.Get("/cases/{id}/audit", handler.GetCaseAudit)

		// Abuse flags
		r.Get("/abuse-flags/{userId}", handler.GetAbuseFlag)

		// Cancellation policies
		r.Get("/policies/defaults", handler.GetDefaultWindows)
		r.Post("/policies/validate", handler.ValidatePolicy)
		r.Post("/policies", handler.SavePolicy)
		r.Get("/policies/{assignmentId}", handler.GetPolicy)

		// Screening rule management
		r.Get("/screening-rules", handler.ListScreeningRules)
		r.Get("/screening-rules/{id}", handler.GetScreeningRule)
		r.Post("/screening-rules", handler.CreateScreeningRule)
		r.Post("/screening-rules/reload", handler.ReloadScreeningRules)

		// Scheduled maintenance, callable on demand
		r.Post("/sweeps/grace", handler.SweepGracePeriods)
		r.Post("/sweeps/invoices", handler.SweepInvoices)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
