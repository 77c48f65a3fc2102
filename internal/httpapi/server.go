// Package httpapi provides the HTTP API for the copilot service.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finsight/copilot"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxUploadBytes caps the multipart upload size. Default 32 MiB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUploadBytes = n }
}

// WithFallbackHook registers a callback invoked whenever a question is
// answered without a live model. Used to feed metrics.
func WithFallbackHook(fn func(ctx context.Context, model string)) Option {
	return func(s *Server) { s.onFallback = fn }
}

// Server is the HTTP server for the copilot API.
type Server struct {
	pipeline       *copilot.Pipeline
	logger         *slog.Logger
	maxUploadBytes int64
	onFallback     func(ctx context.Context, model string)
	server         *http.Server
}

// NewServer creates a server around the given pipeline.
func NewServer(pipeline *copilot.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline:       pipeline,
		logger:         copilot.NopLogger(),
		maxUploadBytes: 32 << 20,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Post("/upload", s.handleUpload)
	r.Post("/ask", s.handleAsk)
	r.Get("/stats", s.handleStats)
	r.Delete("/documents", s.handleClear)
	r.Get("/healthz", s.handleHealth)

	return r
}

// Start starts the HTTP server on addr and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http: server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
