// Package server exposes a running engine over HTTP: health, Prometheus
// metrics, index statistics, snapshots and background experiment runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sanonone/irishnsw/pkg/config"
	"github.com/sanonone/irishnsw/pkg/engine"
)

// Server holds the HTTP interface and the engine it serves.
type Server struct {
	Engine *engine.Engine

	httpServer  *http.Server
	taskManager *TaskManager
	search      config.SearchConfig
	logger      *slog.Logger
}

// NewServer wraps an open engine. The engine must outlive the server;
// Shutdown does not close it.
func NewServer(eng *engine.Engine, addr string, search config.SearchConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Engine:      eng,
		taskManager: NewTaskManager(),
		search:      search,
		logger:      logger.With("component", "http"),
	}

	// Recovery must be outer-most to catch everything.
	var handler http.Handler = s.routes()
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
