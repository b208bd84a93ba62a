// Package api provides the HTTP surface of the truenorth backend.
//
// Endpoints:
//
//	GET /ws      - WebSocket question/answer streaming
//	GET /health  - liveness probe
//	GET /ready   - readiness probe (database ping)
//
// The package frames the pipeline's (context, language) and answer
// stream into WebSocket messages; pipeline semantics live in
// internal/rag.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery and request logging
//   - health.go: health check endpoints
//   - ws.go: WebSocket session handling and retry policy
package api

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"time"

	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

// Server timeout configuration. Write timeout is generous because one
// answer stream can stay open for the duration of a generation call.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// Pipeline is the part of the RAG core the transport layer consumes.
type Pipeline interface {
	HandleRetrieval(ctx context.Context, query string) (string, rag.Language, error)
	GenerateStream(ctx context.Context, question, docs string, language rag.Language) (iter.Seq2[string, error], error)
}

// Pinger is the readiness dependency (satisfied by *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig contains all required parameters for the Server.
type ServerConfig struct {
	Logger   log.Logger
	Pipeline Pipeline
	DB       Pinger

	// RateLimit is the per-connection question rate in requests per
	// second; 0 disables limiting. RateBurst is the burst allowance.
	RateLimit float64
	RateBurst int
}

// Server is the HTTP server hosting the WebSocket endpoint.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	mux := http.NewServeMux()
	s := &Server{mux: mux, logger: cfg.Logger}

	health := &HealthHandler{db: cfg.DB}
	health.RegisterRoutes(mux)

	ws := NewWSHandler(cfg.Pipeline, cfg.Logger.With("component", "ws"), cfg.RateLimit, cfg.RateBurst)
	ws.RegisterRoutes(mux)

	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery -> logging -> handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, s.recoveryMiddleware, s.loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
