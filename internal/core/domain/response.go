package domain

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tjfontaine/relay-gateway/internal/bodystream"
)

// Response is the single outbound result of a dispatch: status,
// headers, and either an in-memory body or a streaming source. Like
// Request, a Response is exclusively owned by its dispatch.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	stream bodystream.Source
}

// NewResponse returns an empty 200 response for handlers to build on.
func NewResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{},
	}
}

// WithStatus sets the status code and returns the response for
// chaining.
func (r *Response) WithStatus(code int) *Response {
	r.Status = code
	return r
}

// Text builds a plain-text response.
func Text(code int, body string) *Response {
	res := NewResponse().WithStatus(code)
	res.Header.Set("Content-Type", "text/plain; charset=utf-8")
	res.Body = []byte(body)
	return res
}

// JSON builds a JSON response. A value that cannot be marshalled
// degrades to the generic failure response; response payloads are
// producer-controlled, so this is a programming error rather than an
// input error.
func JSON(code int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return InternalError()
	}
	res := NewResponse().WithStatus(code)
	res.Header.Set("Content-Type", "application/json")
	res.Body = body
	return res
}

// ServeFile attaches a file-backed streaming body. The transport
// drains the source chunk by chunk instead of buffering the file.
// Content-Length is set when the source can report its size.
func (r *Response) ServeFile(src *bodystream.FileSource) *Response {
	if size, err := src.Size(); err == nil {
		r.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	r.Body = nil
	r.stream = src
	return r
}

// Stream returns the streaming body source, or nil for in-memory
// bodies.
func (r *Response) Stream() bodystream.Source {
	return r.stream
}

// InternalError is the fixed generic-failure response produced when a
// dispatch faults. Its shape is deliberately constant so callers can
// tell a caught fault apart from a deliberate rejection.
func InternalError() *Response {
	res := NewResponse().WithStatus(http.StatusInternalServerError)
	res.Header.Set("Content-Type", "application/json")
	res.Body = []byte(`{"error":"internal_error"}`)
	return res
}
