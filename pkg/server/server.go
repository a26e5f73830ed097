package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/spendcap/pkg/config"
	"mercator-hq/spendcap/pkg/limits"
	"mercator-hq/spendcap/pkg/security/auth"
	"mercator-hq/spendcap/pkg/telemetry/health"
	"mercator-hq/spendcap/pkg/telemetry/metrics"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// Options contains the dependencies of a Server.
type Options struct {
	// Limits is the admission engine. Required.
	Limits *limits.Controller

	// Health serves /health and /ready.
	// Default: a checker with no registered checks
	Health *health.Checker

	// Metrics records HTTP metrics and serves MetricsPath. Nil disables both.
	Metrics *metrics.Collector

	// MetricsPath is where the metrics endpoint is mounted.
	// Default: "/metrics"
	MetricsPath string

	// FencedRecord makes the record route check and insert atomically.
	FencedRecord bool

	// TLS serves HTTPS when set. Client identities from verified
	// certificates are logged using the configured identity source.
	TLS *tls.Config

	// Tracer creates server spans.
	// Default: the global OpenTelemetry tracer provider
	Tracer trace.Tracer

	// Logger is the structured logger.
	// Default: slog.Default()
	Logger *slog.Logger

	// Version, Commit and BuildTime are reported by /version.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the internal REST server for the limits engine.
type Server struct {
	cfg        config.ServerConfig
	opts       Options
	logger     *slog.Logger
	guard      *auth.SharedSecret
	handler    http.Handler
	httpServer *http.Server

	mu        sync.RWMutex
	isRunning bool
	addr      net.Addr
}

// New creates a server. The handler is built once; Start serves it.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Limits == nil {
		return nil, errors.New("server: limits controller is required")
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultMetricsPath
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("mercator-hq/spendcap/pkg/server")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cfg.InternalAuthHeader == "" {
		cfg.InternalAuthHeader = config.DefaultInternalAuthHeader
	}

	s := &Server{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
		guard:  auth.NewSharedSecret(cfg.InternalAuthHeader, cfg.InternalAuthSecret, cfg.InternalAuthSecondarySecret),
	}
	s.handler = s.routes()
	return s, nil
}

// routes builds the mux and the middleware chain.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	api := NewAPI(s.opts.Limits, s.opts.FencedRecord, s.opts.Logger)

	handle := func(pattern string, h http.HandlerFunc, authenticated bool) {
		var handler http.Handler = h
		if authenticated {
			handler = s.guard.Middleware(writeAuthError)(handler)
		}
		mux.Handle(pattern, instrument(pattern, s.opts.Tracer, s.opts.Metrics, handler))
	}

	handle("GET /limits/check", api.Check, true)
	handle("GET /limits/remaining", api.Remaining, true)
	handle("POST /spending/record", api.Record, true)
	handle("PUT /limits/{window}", api.SetLimit, true)
	handle("DELETE /limits/{window}", api.RemoveLimit, true)
	handle("DELETE /limits", api.RemoveAllLimits, true)

	handle("GET /health", s.opts.Health.LivenessHandler(), false)
	handle("GET /ready", s.opts.Health.ReadinessHandler(), false)
	handle("GET /version", health.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime), false)

	if s.opts.Metrics != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.opts.Logger, s.cfg.TLS.IdentitySource)(handler)
	handler = requestIDMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler = recoveryMiddleware(s.opts.Logger)(handler)
	return handler
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}

	if s.opts.TLS != nil {
		ln = tls.NewListener(ln, s.opts.TLS)
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		TLSConfig:    s.opts.TLS,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	if !s.guard.Enabled() {
		s.logger.Warn("internal auth disabled on loopback listener; limits routes are unauthenticated")
	}
	s.logger.Info("starting limits server",
		"address", ln.Addr().String(),
		"tls", s.opts.TLS != nil,
		"mtls", s.opts.TLS != nil && s.opts.TLS.ClientCAs != nil,
		"fenced_record", s.opts.FencedRecord,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	srv := s.httpServer
	s.mu.Unlock()

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.ShutdownTimeout.String())
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("limits server stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
