package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirigent-dev/dirigent/pkg/transport"
)

// Server owns the http.Server lifecycle around the transport adapter:
// startup, signal handling, and graceful drain on shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// NewServer builds a transport server around the given creator. The
// Backends fields are optional; leave them zero for stateless-only
// deployments. Recovery, request ID, and logging middleware are always
// installed.
func NewServer(creator transport.ResponseCreator, backends Backends, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.adapter = NewAdapter(creator, backends, Config{
		Addr:            s.config.Addr,
		MaxBodySize:     s.config.MaxBodySize,
		ShutdownTimeout: int(s.config.ShutdownTimeout.Seconds()),
	},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)

	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.adapter.Handler(),
	}
	return s
}

// ListenAndServe starts the server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests within the shutdown timeout.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server starting", slog.String("addr", s.config.Addr))
	return s.run(s.httpServer.ListenAndServe)
}

// ServeOn starts the server on an existing listener. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	return s.run(func() error { return s.httpServer.Serve(ln) })
}

// run executes the serve function and waits for either a serve error
// or a shutdown signal.
func (s *Server) run(serve func() error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := serve(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.drain()
}

func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown stops the server, honoring the given context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
