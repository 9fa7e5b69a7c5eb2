// Package server exposes the HTTP API: authorization flow endpoints,
// token status and refresh, health, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokend/internal/flow"
	"tokend/internal/ratelimit"
	"tokend/internal/token"
	"tokend/pkg/logging"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second

	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP front end over the flow controller and token manager.
type Server struct {
	flows      *flow.Controller
	tokens     *token.Manager
	limiter    *ratelimit.Limiter
	httpServer *http.Server

	// trustForwardedFor keys the rate limiter on X-Forwarded-For. Only
	// safe behind a proxy that overwrites the header.
	trustForwardedFor bool
}

// New creates a Server listening on addr. The limiter may be nil, in which
// case authorization attempts are not rate limited.
func New(addr string, flows *flow.Controller, tokens *token.Manager, limiter *ratelimit.Limiter, trustForwardedFor bool) *Server {
	s := &Server{
		flows:             flows,
		tokens:            tokens,
		limiter:           limiter,
		trustForwardedFor: trustForwardedFor,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/authorize", s.handleAuthorize)
		r.Get("/callback", s.handleCallback)
		r.Get("/status/{tenantKey}", s.handleStatus)
		r.Post("/refresh/{tenantKey}", s.handleRefresh)
	})

	return r
}

// Handler exposes the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until the context is canceled, then shuts it
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP", "Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	logging.Info("HTTP", "Server stopped")
	return <-errCh
}
