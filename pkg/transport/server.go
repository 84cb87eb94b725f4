package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// Server wraps an http.Server with graceful shutdown. It serves the
// given handler as-is; middleware is expected to be applied by the
// caller before construction.
type Server struct {
	srv      *http.Server
	logger   *slog.Logger
	shutdown time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithTimeouts sets the read and write timeouts. A zero write timeout
// disables it, which streaming endpoints rely on.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.srv.ReadTimeout = read
		s.srv.WriteTimeout = write
	}
}

// WithShutdownTimeout sets how long graceful shutdown waits for
// in-flight requests before forcing connections closed.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.shutdown = d }
}

// NewServer creates a Server listening on the given port.
func NewServer(port int, handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
		},
		logger:   slog.Default(),
		shutdown: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves until the context is cancelled or SIGINT/SIGTERM arrives,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.shutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// ServeOn serves on an existing listener without signal handling.
// Intended for tests.
func (s *Server) ServeOn(ln net.Listener) error {
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close immediately closes the server and any open connections.
func (s *Server) Close() error {
	return s.srv.Close()
}
