package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/pulse/pkg/config"
	"mercator-hq/pulse/pkg/telemetry/health"
	"mercator-hq/pulse/pkg/telemetry/tracing"
)

// Server serves the self-metrics, health and status endpoints of a replica.
type Server struct {
	config     config.ServerConfig
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// Routes describes what the server exposes. A nil Metrics handler or
// Status func leaves the corresponding endpoint out.
type Routes struct {
	Health  config.HealthConfig
	Checker *health.Checker
	Status  health.StatusFunc
	Version health.VersionInfo

	MetricsPath string
	Metrics     http.Handler
}

// Handler builds the mux for r wrapped in the middleware chain.
func (r Routes) Handler() http.Handler {
	mux := http.NewServeMux()
	if r.Metrics != nil && r.MetricsPath != "" {
		mux.Handle(r.MetricsPath, r.Metrics)
	}
	checker := r.Checker
	if checker == nil {
		checker = health.New(r.Health.CheckTimeout)
	}
	health.Mount(mux, checker, r.Health, r.Status, r.Version)

	var handler http.Handler = mux
	handler = LoggingMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	// Recovery middleware (outermost)
	handler = RecoveryMiddleware(handler)
	return handler
}

// New creates a server for handler.
func New(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "server"),
	}
}

// Start listens on the configured address and blocks until ctx is
// cancelled or the listener fails. Cancellation triggers a graceful
// shutdown bounded by ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully stops the server. Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("HTTP server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
