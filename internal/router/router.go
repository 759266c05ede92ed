// Package router is the registration boundary between the chi mux and
// the dispatch pipeline. Per route it accepts an ordered list of
// request steps, a terminal handler, and an optional list of response
// steps; chi does the URL matching, the dispatcher does everything
// else.
package router

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/relay-gateway/internal/core/domain"
	"github.com/tjfontaine/relay-gateway/internal/dispatch"
	"github.com/tjfontaine/relay-gateway/internal/pipeline"
	"github.com/tjfontaine/relay-gateway/internal/server"
)

// Table registers routes on a chi mux and adapts matched requests into
// dispatches. Registration happens once at startup; after the server
// starts, the table is read-only.
type Table struct {
	mux        chi.Router
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// New builds a Table over mux.
func New(mux chi.Router, d *dispatch.Dispatcher, logger *slog.Logger) *Table {
	return &Table{mux: mux, dispatcher: d, logger: logger}
}

// RouteOption attaches chains or policy to a route at registration.
type RouteOption func(*dispatch.Route)

// WithRequestSteps sets the ordered request chain for the route.
func WithRequestSteps(steps ...pipeline.Step[*domain.Request]) RouteOption {
	return func(r *dispatch.Route) { r.Pre = pipeline.NewChain(steps...) }
}

// WithResponseSteps sets the ordered response chain for the route.
func WithResponseSteps(steps ...pipeline.Step[*domain.Response]) RouteOption {
	return func(r *dispatch.Route) { r.Post = pipeline.NewChain(steps...) }
}

// WithPolicy sets whether the response chain runs after explicit
// handler failures.
func WithPolicy(p dispatch.ResponsePolicy) RouteOption {
	return func(r *dispatch.Route) { r.Policy = p }
}

// Get registers a GET route.
func (t *Table) Get(pattern string, h dispatch.Handler, opts ...RouteOption) {
	t.Handle(http.MethodGet, pattern, h, opts...)
}

// Post registers a POST route.
func (t *Table) Post(pattern string, h dispatch.Handler, opts ...RouteOption) {
	t.Handle(http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT route.
func (t *Table) Put(pattern string, h dispatch.Handler, opts ...RouteOption) {
	t.Handle(http.MethodPut, pattern, h, opts...)
}

// Delete registers a DELETE route.
func (t *Table) Delete(pattern string, h dispatch.Handler, opts ...RouteOption) {
	t.Handle(http.MethodDelete, pattern, h, opts...)
}

// Handle registers a route for an arbitrary method.
func (t *Table) Handle(method, pattern string, h dispatch.Handler, opts ...RouteOption) {
	route := &dispatch.Route{Pattern: pattern, Handler: h}
	for _, opt := range opts {
		opt(route)
	}

	t.mux.Method(method, pattern, t.entry(route))
	t.logger.Info("registered route",
		slog.String("method", method),
		slog.String("pattern", pattern),
		slog.Int("request_steps", route.Pre.Len()),
		slog.Int("response_steps", route.Post.Len()))
}

// entry adapts one matched transport request into a dispatch and
// serializes the resulting response. One request in, one response out.
func (t *Table) entry(route *dispatch.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := buildRequest(r, route.Pattern)
		res := t.dispatcher.Dispatch(r.Context(), route, req)
		t.writeResponse(w, r, res)
	}
}

// buildRequest converts the transport request plus connection metadata
// into the dispatch payload.
func buildRequest(r *http.Request, pattern string) *domain.Request {
	params := url.Values{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			params.Set(key, rctx.URLParams.Values[i])
		}
	}

	return &domain.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Params: params,
		Header: r.Header,
		Body:   r.Body,
		Context: domain.DispatchContext{
			RequestID:  server.RequestIDFromContext(r.Context()),
			RemoteAddr: r.RemoteAddr,
			Route:      pattern,
			StartedAt:  time.Now(),
		},
	}
}

// writeResponse serializes headers and status, then either the
// in-memory body or the streaming source. A stream error after the
// status line cannot be turned into a new response; the write is
// aborted and the failure logged.
func (t *Table) writeResponse(w http.ResponseWriter, r *http.Request, res *domain.Response) {
	for key, values := range res.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(res.Status)

	if src := res.Stream(); src != nil {
		defer src.Close()
		for {
			chunk, err := src.Next(r.Context())
			if err == io.EOF {
				return
			}
			if err != nil {
				t.logger.Error("response stream failed",
					slog.String("request_id", server.RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()))
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}

	if len(res.Body) > 0 {
		if _, err := w.Write(res.Body); err != nil {
			t.logger.Warn("response write failed",
				slog.String("request_id", server.RequestIDFromContext(r.Context())),
				slog.String("error", err.Error()))
		}
	}
}
