package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/security/auth"
	"mercator-hq/arbiter/pkg/server/handlers"
	"mercator-hq/arbiter/pkg/server/middleware"
	"mercator-hq/arbiter/pkg/telemetry/health"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
	"mercator-hq/arbiter/pkg/telemetry/tracing"
)

// Options are the server's collaborators.
type Options struct {
	// Engine serves the API. Required.
	Engine handlers.Engine

	// Health backs the liveness and readiness probes. Required.
	Health *health.Checker

	// Metrics exposes MetricsPath when non-nil.
	Metrics     *metrics.Collector
	MetricsPath string

	LivenessPath  string
	ReadinessPath string

	// Auth protects admin routes when non-nil.
	Auth *auth.APIKeyMiddleware

	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP API server.
type Server struct {
	config     config.ServerConfig
	opts       Options
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	mu           sync.RWMutex
	running      bool
	shutdownOnce sync.Once
}

// New creates a server. Routes are built once.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if opts.Health == nil {
		return nil, errors.New("server: health checker is required")
	}
	if opts.LivenessPath == "" {
		opts.LivenessPath = config.DefaultLivenessPath
	}
	if opts.ReadinessPath == "" {
		opts.ReadinessPath = config.DefaultReadinessPath
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = config.DefaultPrometheusPath
	}

	s := &Server{
		config: cfg,
		opts:   opts,
		logger: slog.Default().With("component", "server"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		srv := s.httpServer
		s.mu.RUnlock()
		if srv == nil {
			return
		}

		s.logger.Info("shutting down API server", "timeout", s.config.ShutdownTimeout.String())
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown: %w", err)
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	})
	return shutdownErr
}

// IsRunning reports whether Serve is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) routes() http.Handler {
	api := handlers.New(s.opts.Engine)

	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(tracing.HTTPMiddleware)
	r.Use(middleware.LoggingMiddleware)

	r.Get(s.opts.LivenessPath, s.opts.Health.LivenessHandler())
	r.Get(s.opts.ReadinessPath, s.opts.Health.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime))
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, s.opts.MetricsPath, s.opts.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.BodyLimitMiddleware(s.config.MaxBodyBytes))
		r.Use(middleware.TimeoutMiddleware(s.config.WriteTimeout))

		r.Post("/decisions", api.Evaluate)
		r.Post("/decisions/batch", api.EvaluateBatch)

		r.Get("/logs", api.QueryLogs)
		r.Get("/logs/export", api.ExportLogs)
		r.Get("/logs/{id}", api.GetLog)
		r.Post("/logs/{id}/outcome", api.RecordOutcome)

		r.Get("/reports", api.ListReports)
		r.Get("/reports/{type}", api.GetReport)
		r.Get("/stats", api.Stats)

		r.Group(func(r chi.Router) {
			if s.opts.Auth != nil {
				r.Use(s.opts.Auth.Handle)
			}
			r.Get("/policies", api.ListPolicies)
			r.Put("/policies/{id}", api.PutPolicy)
			r.Delete("/policies/{id}", api.DeletePolicy)

			r.Post("/admin/purge", api.Purge)
			r.Post("/admin/verify", api.Verify)
			r.Post("/admin/cache/clear", api.ClearCache)
			r.Get("/admin/operations", api.ListOperations)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, http.StatusNotFound, middleware.ErrorTypeNotFound, "no such endpoint", "")
	})
	return r
}
