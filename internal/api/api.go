// Package api provides HTTP handlers and the main API server logic for PlanLoom.
//
// It exposes RESTful endpoints for the conversational planning engine
// and read-back of materialized activities.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PlanLoom/PlanLoom/internal/flow"
	"github.com/PlanLoom/PlanLoom/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// shutdownTimeout bounds how long in-flight requests may run during
// graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires the planning engine and storage to HTTP.
type Server struct {
	engine *flow.Engine
	store  store.Store
	addr   string
}

// NewServer creates an API server around the planning engine.
func NewServer(engine *flow.Engine, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("Server.NewServer: creating API server", "addr", cfg.Addr)
	return &Server{engine: engine, store: st, addr: cfg.Addr}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/planning/message", s.planningMessageHandler)
		r.Get("/planning/session", s.planningSessionHandler)
		r.Get("/activities/{activityID}", s.activityHandler)
		r.Get("/activities/{activityID}/tasks", s.activityTasksHandler)
	})
	return r
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}
