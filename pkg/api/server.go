// Package api serves the local status endpoints of a long-running yeepctl
// process: liveness, the state of the kept session and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/yeep/internal/logger"
)

// Server is the status HTTP server.
//
// Endpoints:
//   - GET /health: Liveness probe
//   - GET /health/session: Session probe
//   - GET /metrics: Prometheus metrics
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a status server for the session exposed by source.
// The server is created in a stopped state. Call Start to begin serving.
func NewServer(config APIConfig, source SessionSource, gatherer prometheus.Gatherer) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:         net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Handler:      NewRouter(NewHealthHandler("yeepctl", source), gatherer),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Listen binds the server address. Start calls it when needed; calling it
// first lets callers learn the bound address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Status server listening", "addr", s.Addr())
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The canceled ctx would abort shutdown at once
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("status server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("status server shutdown error: %w", err)
			logger.Error("Status server shutdown error", logger.Err(err))
		} else {
			logger.Debug("Status server stopped")
		}
	})
	return shutdownErr
}
