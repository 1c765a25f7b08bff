package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/aegis-risk/pkg/config"
	"github.com/wonny/aegis-risk/pkg/logger"
)

// Server is the ops HTTP server: health, metrics and the monitor endpoints
// SSOT: ops server settings live in this file only
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new ops server listening on METRICS_PORT
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log.Component("api"),
		config: cfg,
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port": s.config.MetricsPort,
		"env":  s.config.Env,
	}).Info("Starting ops server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down ops server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
