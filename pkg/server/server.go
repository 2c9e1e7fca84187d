package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"pilothouse-hq/ganymede/pkg/audit"
	"pilothouse-hq/ganymede/pkg/config"
	"pilothouse-hq/ganymede/pkg/engine"
	"pilothouse-hq/ganymede/pkg/policy/store"
	"pilothouse-hq/ganymede/pkg/telemetry/metrics"
)

// Server is the HTTP management server.
type Server struct {
	config     *config.ServerConfig
	metricsCfg *config.MetricsConfig
	engine     *engine.Engine
	store      *store.Store
	audit      audit.Storage
	collector  *metrics.Collector
	logger     *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a management server. The collector may be nil when
// metrics are disabled.
func NewServer(cfg *config.ServerConfig, metricsCfg *config.MetricsConfig, eng *engine.Engine, st *store.Store, auditStore audit.Storage, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	return &Server{
		config:     cfg,
		metricsCfg: metricsCfg,
		engine:     eng,
		store:      st,
		audit:      auditStore,
		collector:  collector,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting management server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("management server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/preview", s.handlePreview)

	mux.HandleFunc("GET /v1/policies", s.handleListPolicies)
	mux.HandleFunc("POST /v1/policies", s.handleCreatePolicy)
	mux.HandleFunc("GET /v1/policies/{id}", s.handleGetPolicy)
	mux.HandleFunc("PUT /v1/policies/{id}", s.handleUpdatePolicy)
	mux.HandleFunc("DELETE /v1/policies/{id}", s.handleDeletePolicy)

	mux.HandleFunc("GET /v1/evaluations", s.handleListEvaluations)
	mux.HandleFunc("GET /v1/evaluations/stats", s.handleEvaluationStats)

	mux.HandleFunc("GET /health", s.handleHealth)

	if s.collector != nil && s.metricsCfg != nil && s.metricsCfg.Enabled {
		mux.Handle("GET "+s.metricsCfg.Path, s.collector.Handler())
	}

	return s.logRequests(mux)
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
