// Package server exposes concept validation, schema introspection and the run
// ledger over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/handler"
	"github.com/ambigdb/ambigdb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	MaxBodySize     int64 // bytes
	// RateLimit is requests per minute per client IP and endpoint; zero
	// disables limiting.
	RateLimit int
	// MaxBatch caps the candidates of one batch request; zero means no cap.
	MaxBatch int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		MaxBodySize:     10 * 1024 * 1024, // 10MB
		RateLimit:       100,
		MaxBatch:        500,
	}
}

// Ledger is the run ledger as the server uses it: readable and pingable.
type Ledger interface {
	handler.RunReader
	Ping(ctx context.Context) error
}

// Server is the top-level HTTP server. It owns the Chi router and routes
// requests to the validator, the connector registry and the run ledger.
type Server struct {
	cfg        Config
	router     chi.Router
	validator  handler.Validator
	registry   *connector.Registry
	ledger     Ledger
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. ledger may be nil, in which case the runs endpoints
// answer 503.
func New(cfg Config, validator handler.Validator, registry *connector.Registry, ledger Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		validator: validator,
		registry:  registry,
		ledger:    ledger,
		logger:    logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Compress(5))

	// --- Health checks ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.MaxBodySize > 0 {
			r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
		}
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(s.cfg.RateLimit))
		}

		validateHandler := handler.NewValidateHandler(s.validator, s.cfg.MaxBatch)
		introspectHandler := handler.NewIntrospectHandler(s.registry, s.logger)

		r.Post("/validate", validateHandler.Validate)
		r.Post("/introspect", introspectHandler.Introspect)

		r.Route("/runs", func(r chi.Router) {
			if s.ledger == nil {
				r.HandleFunc("/*", s.handleNoLedger)
				r.HandleFunc("/", s.handleNoLedger)
				return
			}
			runsHandler := handler.NewRunsHandler(s.ledger)
			r.Get("/", runsHandler.ListRuns)
			r.Get("/{runID}", runsHandler.GetRun)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the run ledger is
// reachable (or not configured), 503 otherwise. The registered candidate
// drivers are listed for operators.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.ledger == nil {
		checks["ledger"] = "disabled"
	} else if err := s.ledger.Ping(r.Context()); err != nil {
		checks["ledger"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"checks":  checks,
		"drivers": s.registry.Drivers(),
	})
}

func (s *Server) handleNoLedger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":{"code":503,"message":"Run ledger is not configured"}}`))
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled or
// a SIGINT or SIGTERM is received. It then performs a graceful shutdown,
// draining in-flight validations.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Batches validate many candidates inside one request.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "drivers", s.registry.Drivers())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining requests...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
