// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the agent and its tools over HTTP.
//
// Routes:
//
//	POST /v1/ask               run one session, reply with the result
//	POST /v1/ask/stream        run one session, stream turns as server-sent events
//	GET  /v1/tools             list tool definitions
//	POST /v1/tools/{name}      dispatch one tool with the request body as arguments
//	GET  /health               liveness
//	GET  /metrics              Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/esagent/pkg/agent"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

// Agent runs sessions. *agent.Agent implements it.
type Agent interface {
	Run(ctx context.Context, question string) (*agent.Result, error)
	Stream(ctx context.Context, question string) iter.Seq2[agent.Turn, error]
}

// Server is the HTTP front end.
type Server struct {
	cfg     config.ServerConfig
	agent   Agent
	tools   agent.Dispatcher
	metrics *observability.Metrics

	// sessions bounds concurrent sessions; nil means unlimited.
	sessions chan struct{}
}

// New creates a server. metrics may be nil.
func New(cfg config.ServerConfig, a Agent, tools agent.Dispatcher, metrics *observability.Metrics) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, agent: a, tools: tools, metrics: metrics}
	if cfg.MaxConcurrentSessions > 0 {
		s.sessions = make(chan struct{}, cfg.MaxConcurrentSessions)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMiddleware(s.metrics))
	r.Use(loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/ask/stream", s.handleAskStream)
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleCallTool)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "address", s.cfg.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// acquire takes a session slot, reporting false when all are busy.
func (s *Server) acquire() (release func(), ok bool) {
	if s.sessions == nil {
		return func() {}, true
	}
	select {
	case s.sessions <- struct{}{}:
		return func() { <-s.sessions }, true
	default:
		return nil, false
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
