// Package server exposes the chat flow over HTTP: a streaming chat
// endpoint plus session history, usage, health, and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/fraudflow-dev/fraudflow/internal/flow"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
	"github.com/fraudflow-dev/fraudflow/internal/session"
)

// Server serves the chat API.
type Server struct {
	flow     *flow.Flow
	sessions session.Store

	httpServer *http.Server
}

// New creates a server over the given flow and session store.
func New(addr string, f *flow.Flow, sessions session.Store) *Server {
	s := &Server{flow: f, sessions: sessions}
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler builds the routed handler with middleware applied. Exposed
// for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agentic/v1/chat", s.handleChat)
	mux.HandleFunc("GET /agentic/v1/chat/history", s.handleHistory)
	mux.HandleFunc("GET /agentic/v1/chat/usage", s.handleUsage)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return withRequestID(withMetrics(mux))
}

// Start blocks serving requests until Shutdown or failure.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
