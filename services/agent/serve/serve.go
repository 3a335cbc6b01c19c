// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package serve hosts the agent's read-only HTTP surface: health,
// status, report, heartbeat, persisted history, recent loop outcomes,
// and Prometheus metrics. It runs standalone or beside the loop in the
// same process, sharing the loop's outcome tracker in the latter case.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/history"
)

// serviceName tags the otelgin middleware's spans.
const serviceName = "sentinel-agent"

// shutdownTimeout bounds how long Run waits for in-flight requests
// after the context ends.
const shutdownTimeout = 5 * time.Second

// Server hosts the read-only HTTP API over the agent's artifacts.
//
// # Thread Safety
//
// Safe after construction; the router is read-only once built. Run
// blocks and should be called once per instance.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	addr     string
	router   *gin.Engine
	handlers *Handlers
}

// Option customizes a Server.
type Option func(*Server)

// WithTracker exposes a loop's outcome buffer through /api/v1/recent.
func WithTracker(t *history.Tracker) Option {
	return func(s *Server) {
		s.handlers.WithTracker(t)
	}
}

// New creates a server listening on addr when Run is called.
func New(cfg *config.Config, addr string, logger *logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		addr:     addr,
		handlers: NewHandlers(cfg, logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	registerRoutes(router, s.handlers)
	s.router = router
	return s
}

// Router returns the underlying gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until the context ends or the
// listener fails.
//
// Outputs:
//
//	error - Nil after a graceful context-driven shutdown; the listener
//	        or shutdown error otherwise.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting agent api server", "addr", s.addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	s.logger.Info("shutting down agent api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-errCh
	return nil
}

// registerRoutes registers all agent API routes with the router.
//
// Endpoints:
//
//	GET /healthz - Liveness check
//	GET /metrics - Prometheus exposition
//	GET /api/v1/status - Last status payload, verbatim
//	GET /api/v1/report - Last markdown report
//	GET /api/v1/heartbeat - Last heartbeat
//	GET /api/v1/history - Persisted run history
//	GET /api/v1/recent - Loop outcome ring buffer
func registerRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", h.HandleMetrics)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.HandleStatus)
		v1.GET("/report", h.HandleReport)
		v1.GET("/heartbeat", h.HandleHeartbeat)
		v1.GET("/history", h.HandleHistory)
		v1.GET("/recent", h.HandleRecent)
	}
}
