// Package dispatch drives one inbound request through its route's
// chains and terminal handler, and guarantees exactly one well-formed
// response under every failure mode. It is the only place where an
// abnormal termination inside a step or handler is converted into a
// value.
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/tjfontaine/relay-gateway/internal/core/domain"
	"github.com/tjfontaine/relay-gateway/internal/pipeline"
)

// State tracks where a dispatch is in its lifecycle.
type State uint8

const (
	StateReceived State = iota
	StateRequestChain
	StateHandler
	StateResponseChain
	StateCompleted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateRequestChain:
		return "request_chain"
	case StateHandler:
		return "handler"
	case StateResponseChain:
		return "response_chain"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// ResponsePolicy decides whether the response chain runs after an
// explicit handler failure. The default is RunAlways, so response
// steps see deliberate rejections too; RunOnSuccess limits them to the
// success branch. A caught fault skips the response chain under either
// policy — the fixed failure response is terminal.
type ResponsePolicy int

const (
	RunAlways ResponsePolicy = iota
	RunOnSuccess
)

// Handler is the terminal function of a route. It receives the request
// after the request chain and a blank response to build on. Returning
// a nil error means success; returning a *domain.Reply is a deliberate
// rejection carrying its own response; any other error is classified
// as a fault and mapped to the fixed generic-failure response.
type Handler func(ctx context.Context, req *domain.Request, res *domain.Response) (*domain.Response, error)

// Route binds the ordered step lists and terminal handler executed for
// one matched route. Routes are built once at registration time and
// are read-only while serving.
type Route struct {
	Pattern string
	Pre     *pipeline.Chain[*domain.Request]
	Handler Handler
	Post    *pipeline.Chain[*domain.Response]
	Policy  ResponsePolicy
}

// Outcome classification for logs and the journal.
const (
	OutcomeSuccess      = "success"
	OutcomeShortCircuit = "short_circuit"
	OutcomeFault        = "fault"
)

// Entry describes one finished dispatch.
type Entry struct {
	ID         string
	Method     string
	Path       string
	Route      string
	RemoteAddr string
	Status     int
	Outcome    string
	Duration   time.Duration
}

// Recorder receives one Entry per completed dispatch.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Dispatcher is the per-request supervisor. It is safe for concurrent
// use; all per-dispatch state lives in the arguments.
type Dispatcher struct {
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder journals every completed dispatch to r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a Dispatcher.
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs req through route's request chain, handler, and
// response chain, returning exactly one response. Any panic raised by
// a step or the handler is recovered here and converted into the fixed
// generic-failure response; nothing escapes to the transport, and a
// faulted dispatch leaves no shared state behind — the route table and
// other in-flight dispatches are untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, route *Route, req *domain.Request) *domain.Response {
	res, outcome := d.run(ctx, route, req)

	duration := time.Duration(0)
	if !req.Context.StartedAt.IsZero() {
		duration = time.Since(req.Context.StartedAt)
	}

	d.logger.Info("dispatch completed",
		slog.String("request_id", req.Context.RequestID),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("route", route.Pattern),
		slog.Int("status", res.Status),
		slog.String("outcome", outcome),
		slog.Duration("duration", duration),
	)

	if d.recorder != nil {
		entry := Entry{
			ID:         req.Context.RequestID,
			Method:     req.Method,
			Path:       req.Path,
			Route:      route.Pattern,
			RemoteAddr: req.Context.RemoteAddr,
			Status:     res.Status,
			Outcome:    outcome,
			Duration:   duration,
		}
		if err := d.recorder.Record(ctx, entry); err != nil {
			d.logger.Warn("journal record failed",
				slog.String("request_id", req.Context.RequestID),
				slog.String("error", err.Error()))
		}
	}

	return res
}

// run is the fault boundary proper. The named returns let the deferred
// recover replace a partially-computed result: whatever the payload
// looked like when the fault hit is discarded, and the caller sees
// only the fixed failure response.
func (d *Dispatcher) run(ctx context.Context, route *Route, req *domain.Request) (res *domain.Response, outcome string) {
	state := StateReceived

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch fault",
				slog.String("request_id", req.Context.RequestID),
				slog.String("state", state.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = domain.InternalError()
			outcome = OutcomeFault
		}
	}()

	state = StateRequestChain
	pre := route.Pre.Run(ctx, req)
	if pre.Halted() {
		state = StateCompleted
		return d.haltResponse(req, "request chain", pre.Alt())
	}

	state = StateHandler
	res, outcome = d.invokeHandler(ctx, route, pre.Payload())

	if d.shouldRunPost(route, outcome) {
		state = StateResponseChain
		post := route.Post.Run(ctx, res)
		if post.Halted() {
			res, outcome = d.haltResponse(req, "response chain", post.Alt())
		} else if post.Payload() == nil {
			d.logger.Error("nil response from response chain",
				slog.String("request_id", req.Context.RequestID),
				slog.String("route", route.Pattern))
			res, outcome = domain.InternalError(), OutcomeFault
		} else {
			res = post.Payload()
		}
	}

	state = StateCompleted
	return res, outcome
}

// haltResponse validates a short-circuit alternate. A nil alternate is
// a step bug: it is classified as a fault so the fixed failure
// response still reaches the transport instead of a nil dereference
// escaping the boundary.
func (d *Dispatcher) haltResponse(req *domain.Request, origin string, alt *domain.Response) (*domain.Response, string) {
	if alt != nil {
		return alt, OutcomeShortCircuit
	}
	d.logger.Error("nil short-circuit response",
		slog.String("request_id", req.Context.RequestID),
		slog.String("origin", origin))
	return domain.InternalError(), OutcomeFault
}

// invokeHandler adapts the terminal handler so both of its branches
// converge on a well-formed response before anything else sees the
// result.
func (d *Dispatcher) invokeHandler(ctx context.Context, route *Route, req *domain.Request) (*domain.Response, string) {
	res, err := route.Handler(ctx, req, domain.NewResponse())
	if err == nil {
		if res == nil {
			res = domain.NewResponse()
		}
		return res, OutcomeSuccess
	}

	if reply, ok := domain.AsReply(err); ok {
		if reply.Response == nil {
			d.logger.Error("handler replied with nil response",
				slog.String("request_id", req.Context.RequestID),
				slog.String("route", route.Pattern))
			return domain.InternalError(), OutcomeFault
		}
		return reply.Response, OutcomeShortCircuit
	}

	// An error the handler didn't shape into a reply is a fault, same
	// classification as a panic.
	d.logger.Error("handler error",
		slog.String("request_id", req.Context.RequestID),
		slog.String("route", route.Pattern),
		slog.String("error", err.Error()))
	return domain.InternalError(), OutcomeFault
}

func (d *Dispatcher) shouldRunPost(route *Route, outcome string) bool {
	if route.Post.Len() == 0 || outcome == OutcomeFault {
		return false
	}
	if route.Policy == RunOnSuccess {
		return outcome == OutcomeSuccess
	}
	return true
}
