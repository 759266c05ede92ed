// Package domain defines the payload types that flow through the
// dispatch pipeline: the Request and Response values mutated by steps,
// the per-dispatch context attached to them, and the explicit-failure
// error channel handlers use to reject a request with a specific
// response.
package domain

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DispatchContext is the ephemeral per-request metadata attached to a
// Request when the transport hands it to the dispatcher. It is created
// by the serving boundary, read during one dispatch, and discarded once
// the response has been produced.
type DispatchContext struct {
	// RequestID uniquely identifies this dispatch across logs and the
	// journal.
	RequestID string
	// RemoteAddr is the peer network address as reported by the
	// transport.
	RemoteAddr string
	// Route is the matched route pattern, e.g. "/files/{name}".
	Route string
	// StartedAt is when the transport delivered the request.
	StartedAt time.Time
}

// Request is the payload flowing through a request chain. One Request
// is exclusively owned by its dispatch; steps may mutate it freely but
// must never share it with another in-flight dispatch.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Params holds route parameters extracted by the router.
	Params url.Values
	Header http.Header
	Body   io.ReadCloser

	Context DispatchContext

	ext map[string]any
}

// NewRequest builds a bare Request, mainly for tests and adapters that
// do not start from a transport request.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Query:  url.Values{},
		Params: url.Values{},
		Header: http.Header{},
	}
}

// Param returns the named route parameter, or "" if absent.
func (r *Request) Param(name string) string {
	return r.Params.Get(name)
}

// Set attaches an extension value under key. Extensions are the
// per-request side-table: a step stores a value here and a later step
// or the handler reads it back. They never outlive the dispatch.
func (r *Request) Set(key string, value any) {
	if r.ext == nil {
		r.ext = make(map[string]any)
	}
	r.ext[key] = value
}

// Get returns the extension value stored under key.
func (r *Request) Get(key string) (any, bool) {
	v, ok := r.ext[key]
	return v, ok
}

// Extension returns the typed extension value stored under key,
// reporting false when the key is absent or holds a different type.
func Extension[T any](r *Request, key string) (T, bool) {
	v, ok := r.ext[key]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ReadJSON decodes the request body into target. A missing or
// malformed body is reported as a *Reply carrying a 422 response, so
// handlers can return the error unchanged and have the rejection reach
// the client as-is.
func (r *Request) ReadJSON(target any) error {
	if r.Body == nil {
		return Fail(JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": "missing request body",
		}))
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return Fail(JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": "malformed request body: " + err.Error(),
		}))
	}
	return nil
}
