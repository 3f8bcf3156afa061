package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. The metrics route is mounted only when
// mt is non-nil.
func NewServer(cfg domain.ServerConfig, mon *monitor.Monitor, cache domain.Cache, bus domain.EventBus, mt *metrics.Metrics, metricsPath, version string) *Server {
	handler := NewHandler(mon, cache, bus, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/", handler.Root)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if mt != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.Method(http.MethodGet, metricsPath, mt.Handler())
	}

	// Batch analysis
	router.Post("/generate-report", handler.GenerateReport)
	router.Get("/report", handler.GetReport)
	router.Get("/transactions", handler.ListTransactions)

	// Single-transaction checks
	router.Post("/fraud-check", handler.FraudCheck)
	router.Get("/fraud-check/{requestId}", handler.GetFraudCheck)

	// Persisted history and runs
	router.Post("/transactions/import", handler.ImportTransactions)
	router.Get("/runs", handler.ListRuns)
	router.Get("/runs/{id}", handler.GetRun)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// SetWorker reports the async check worker on /ready. Call before Start.
func (s *Server) SetWorker(w *worker.Worker) {
	s.handler.worker = w
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
