// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arcfield/toolgate/pkg/config"
	"github.com/arcfield/toolgate/pkg/logger"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server is the toolgate HTTP server.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
}

// New assembles the router and returns a server ready to start.
func New(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		requestSizeLimiter(cfg.MaxRequestBody),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: cfg.CORSAllowCredentials(),
			MaxAge:           300,
		}),
	)

	probes := &probeRoutes{pinger: deps.Pinger}
	r.Get("/health", probes.health)
	r.Get("/live", probes.health)
	r.Get("/ready", probes.ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Mount("/mcp", MCPRouter(deps.Searcher, deps.Caller, deps.Catalog, cfg.Debug))
	r.With(adminAuth(cfg.AdminAPIKey)).Mount("/admin", AdminRouter(deps.Catalog, deps.Syncer, cfg.Debug))

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Serve starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the assembled router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
