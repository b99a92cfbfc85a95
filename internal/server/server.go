// Package server exposes build state, artifacts, logs and the preview page
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/livetex/internal/config"
	"github.com/conneroisu/livetex/internal/logging"
	"golang.org/x/net/netutil"
)

// ShutdownTimeout bounds how long Start waits for in-flight requests after
// its context is cancelled.
const ShutdownTimeout = 30 * time.Second

// NewHandler wires the router behind request logging and panic recovery.
func NewHandler(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return Chain(NewRouter(deps), RequestLogging(logger), Recovery(logger))
}

// Server owns the listener and http.Server lifecycle.
//
// Invariants:
//   - httpServer and listener are nil until Listen succeeds
//   - isShutdown transitions from false to true exactly once
type Server struct {
	cfg     *config.Config
	handler http.Handler
	events  *EventHub
	logger  logging.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	isShutdown bool
}

// New creates a server for handler. events, if non-nil, is closed on shutdown
// so websocket clients are released.
func New(cfg *config.Config, handler http.Handler, events *EventHub, logger logging.Logger) *Server {
	if cfg == nil {
		panic("Server: config cannot be nil")
	}
	if handler == nil {
		panic("Server: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		events:  events,
		logger:  logger.WithComponent("server"),
	}
}

// Listen binds the configured address. Calling it before Start lets callers
// learn the actual address when port 0 is configured.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShutdown {
		return nil, fmt.Errorf("server has been shut down")
	}
	if s.listener != nil {
		return s.listener.Addr(), nil
	}

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	if n := s.cfg.Server.MaxConnections; n > 0 {
		listener = netutil.LimitListener(listener, n)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return listener.Addr(), nil
}

// Start serves until ctx is cancelled, then shuts down gracefully. It returns
// nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	s.mu.RLock()
	server, listener := s.httpServer, s.listener
	s.mu.RUnlock()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	s.logger.Info(ctx, "Listening", "addr", addr.String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}

		return err
	}
}

// Shutdown stops accepting connections, releases websocket clients and waits
// for in-flight requests. It is idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShutdown {
		return nil
	}
	s.isShutdown = true

	if s.events != nil {
		s.events.Close()
	}

	if s.httpServer == nil {
		return nil
	}

	s.logger.Info(ctx, "Shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.cfg.Addr()
}

// IsShutdown reports whether Shutdown has been called.
func (s *Server) IsShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.isShutdown
}
