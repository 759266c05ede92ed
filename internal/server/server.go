// Package server owns the HTTP runtime: the chi mux, the ambient
// middleware stack, and server lifecycle. Route semantics live in the
// router and dispatch packages; this package only accepts connections
// and hands requests to whatever was registered on the mux.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures the HTTP runtime.
type Options struct {
	Port int
	// Tracing wraps the mux with OpenTelemetry HTTP spans.
	Tracing bool
}

// Server wraps the chi mux and the net/http server driving it.
type Server struct {
	mux    *chi.Mux
	server *http.Server
	logger *slog.Logger
	port   int
}

// New builds a Server with the ambient middleware applied, in order:
// request id, structured logging, the chi panic belt, and optionally
// otel instrumentation. The dispatcher has its own fault boundary; the
// Recoverer here covers plain mux handlers like the health check.
func New(opts Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	if opts.Tracing {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "relay-gateway")
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		mux:    r,
		logger: logger,
		port:   opts.Port,
	}
}

// Mux exposes the router for route registration. Registration must
// finish before Start; the mux is read-only while serving.
func (s *Server) Mux() *chi.Mux {
	return s.mux
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("server listening", slog.Int("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
