package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/tjfontaine/relay-gateway/internal/core/domain"
	"github.com/tjfontaine/relay-gateway/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRequest(method, path string) *domain.Request {
	req := domain.NewRequest(method, path)
	req.Context.RequestID = "test-" + path
	return req
}

// memoryRecorder collects journal entries in-process.
type memoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *memoryRecorder) Record(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func TestDispatch_EmptyChain_HandlerResponse(t *testing.T) {
	d := New(testLogger())
	route := &Route{
		Pattern: "/hi",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return domain.Text(http.StatusOK, "hi"), nil
		},
	}

	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/hi"))
	if res.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", res.Status)
	}
	if string(res.Body) != "hi" {
		t.Errorf("expected body %q, got %q", "hi", res.Body)
	}
}

func TestDispatch_RequestChainShortCircuit_SkipsHandler(t *testing.T) {
	var continueCalls int
	stepA := pipeline.NewStep("a", func(_ context.Context, req *domain.Request) pipeline.Outcome[*domain.Request] {
		continueCalls++
		return pipeline.Next(req)
	})
	stepB := pipeline.NewStep("b", func(_ context.Context, _ *domain.Request) pipeline.Outcome[*domain.Request] {
		return pipeline.Halt[*domain.Request](domain.JSON(http.StatusUnauthorized, map[string]string{"error": "denied"}))
	})

	handlerCalled := false
	route := &Route{
		Pattern: "/guarded",
		Pre:     pipeline.NewChain(stepA, stepB),
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			handlerCalled = true
			return domain.NewResponse(), nil
		},
	}

	d := New(testLogger())
	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/guarded"))

	if res.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", res.Status)
	}
	if continueCalls != 1 {
		t.Errorf("expected the continuing step to run once, got %d", continueCalls)
	}
	if handlerCalled {
		t.Error("handler must not run after a request-chain short-circuit")
	}
}

func TestDispatch_HandlerPanic_FixedFailureResponse(t *testing.T) {
	d := New(testLogger())
	panicking := &Route{
		Pattern: "/boom",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			panic("boom")
		},
	}

	res := d.Dispatch(context.Background(), panicking, newRequest(http.MethodGet, "/boom"))
	if res.Status != http.StatusInternalServerError {
		t.Errorf("expected 500 for a faulted dispatch, got %d", res.Status)
	}

	// The same dispatcher keeps serving: an unrelated dispatch right
	// after the fault completes normally.
	healthy := &Route{
		Pattern: "/ok",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return domain.Text(http.StatusOK, "fine"), nil
		},
	}
	res = d.Dispatch(context.Background(), healthy, newRequest(http.MethodGet, "/ok"))
	if res.Status != http.StatusOK || string(res.Body) != "fine" {
		t.Errorf("dispatch after a fault must succeed, got %d %q", res.Status, res.Body)
	}
}

func TestDispatch_StepPanic_FixedFailureResponse(t *testing.T) {
	route := &Route{
		Pattern: "/step-boom",
		Pre: pipeline.NewChain(pipeline.NewStep("explode", func(_ context.Context, _ *domain.Request) pipeline.Outcome[*domain.Request] {
			panic("step exploded")
		})),
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			t.Error("handler must not run after a step fault")
			return nil, nil
		},
	}

	d := New(testLogger())
	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/step-boom"))
	if res.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", res.Status)
	}
}

func TestDispatch_HandlerReply_DeliberateRejection(t *testing.T) {
	d := New(testLogger())
	route := &Route{
		Pattern: "/reject",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return nil, domain.Fail(domain.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"}))
		},
	}

	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/reject"))
	if res.Status != http.StatusForbidden {
		t.Errorf("an explicit reply must pass through unchanged, got %d", res.Status)
	}
}

func TestDispatch_HandlerPlainError_ClassifiedAsFault(t *testing.T) {
	recorder := &memoryRecorder{}
	d := New(testLogger(), WithRecorder(recorder))
	route := &Route{
		Pattern: "/oops",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return nil, errors.New("database fell over")
		},
	}

	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/oops"))
	if res.Status != http.StatusInternalServerError {
		t.Errorf("expected the fixed failure response, got %d", res.Status)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Outcome != OutcomeFault {
		t.Errorf("expected one fault entry, got %+v", recorder.entries)
	}
}

func TestDispatch_HandlerNilReply_FixedFailureResponse(t *testing.T) {
	recorder := &memoryRecorder{}
	d := New(testLogger(), WithRecorder(recorder))
	route := &Route{
		Pattern: "/nil-reply",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return nil, domain.Fail(nil)
		},
	}

	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/nil-reply"))
	if res == nil {
		t.Fatal("a nil reply must still yield a response")
	}
	if res.Status != http.StatusInternalServerError {
		t.Errorf("expected the fixed failure response, got %d", res.Status)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Outcome != OutcomeFault {
		t.Errorf("expected one fault entry, got %+v", recorder.entries)
	}
}

func TestDispatch_StepNilHalt_FixedFailureResponse(t *testing.T) {
	route := &Route{
		Pattern: "/nil-halt",
		Pre: pipeline.NewChain(pipeline.NewStep("broken", func(_ context.Context, _ *domain.Request) pipeline.Outcome[*domain.Request] {
			return pipeline.Halt[*domain.Request](nil)
		})),
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			t.Error("handler must not run after a request-chain halt")
			return domain.NewResponse(), nil
		},
	}

	d := New(testLogger())
	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/nil-halt"))
	if res == nil {
		t.Fatal("a nil halt must still yield a response")
	}
	if res.Status != http.StatusInternalServerError {
		t.Errorf("expected the fixed failure response, got %d", res.Status)
	}
}

func TestDispatch_ResponseChainNilResults_FixedFailureResponse(t *testing.T) {
	ok := func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
		return domain.Text(http.StatusOK, "ok"), nil
	}
	d := New(testLogger())

	nilHalt := &Route{
		Pattern: "/post-nil-halt",
		Handler: ok,
		Post: pipeline.NewChain(pipeline.NewStep("broken", func(_ context.Context, _ *domain.Response) pipeline.Outcome[*domain.Response] {
			return pipeline.Halt[*domain.Response](nil)
		})),
	}
	res := d.Dispatch(context.Background(), nilHalt, newRequest(http.MethodGet, "/post-nil-halt"))
	if res == nil || res.Status != http.StatusInternalServerError {
		t.Errorf("a nil halt in the response chain must yield the fixed failure response, got %+v", res)
	}

	nilNext := &Route{
		Pattern: "/post-nil-next",
		Handler: ok,
		Post: pipeline.NewChain(pipeline.NewStep("broken", func(_ context.Context, _ *domain.Response) pipeline.Outcome[*domain.Response] {
			return pipeline.Next[*domain.Response](nil)
		})),
	}
	res = d.Dispatch(context.Background(), nilNext, newRequest(http.MethodGet, "/post-nil-next"))
	if res == nil || res.Status != http.StatusInternalServerError {
		t.Errorf("a nil payload from the response chain must yield the fixed failure response, got %+v", res)
	}
}

func TestDispatch_ResponseChain_RunsAfterSuccess(t *testing.T) {
	stamp := pipeline.NewStep("stamp", func(_ context.Context, res *domain.Response) pipeline.Outcome[*domain.Response] {
		res.Header.Set("X-Stamped", "yes")
		return pipeline.Next(res)
	})

	route := &Route{
		Pattern: "/stamped",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return domain.Text(http.StatusOK, "ok"), nil
		},
		Post: pipeline.NewChain(stamp),
	}

	d := New(testLogger())
	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/stamped"))
	if res.Header.Get("X-Stamped") != "yes" {
		t.Error("response chain must run on the success branch")
	}
}

func TestDispatch_ResponseChain_PolicyControlsFailureBranch(t *testing.T) {
	reject := func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
		return nil, domain.Fail(domain.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "bad"}))
	}
	stamp := pipeline.NewStep("stamp", func(_ context.Context, res *domain.Response) pipeline.Outcome[*domain.Response] {
		res.Header.Set("X-Stamped", "yes")
		return pipeline.Next(res)
	})

	d := New(testLogger())

	always := &Route{Pattern: "/always", Handler: reject, Post: pipeline.NewChain(stamp), Policy: RunAlways}
	res := d.Dispatch(context.Background(), always, newRequest(http.MethodGet, "/always"))
	if res.Header.Get("X-Stamped") != "yes" {
		t.Error("RunAlways must run the response chain on explicit failures")
	}

	onSuccess := &Route{Pattern: "/success-only", Handler: reject, Post: pipeline.NewChain(stamp), Policy: RunOnSuccess}
	res = d.Dispatch(context.Background(), onSuccess, newRequest(http.MethodGet, "/success-only"))
	if res.Header.Get("X-Stamped") != "" {
		t.Error("RunOnSuccess must skip the response chain on explicit failures")
	}
}

func TestDispatch_ResponseChain_HaltReplacesResponse(t *testing.T) {
	squelch := pipeline.NewStep("squelch", func(_ context.Context, _ *domain.Response) pipeline.Outcome[*domain.Response] {
		return pipeline.Halt[*domain.Response](domain.Text(http.StatusNoContent, ""))
	})

	route := &Route{
		Pattern: "/squelched",
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return domain.Text(http.StatusOK, "original"), nil
		},
		Post: pipeline.NewChain(squelch),
	}

	d := New(testLogger())
	res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, "/squelched"))
	if res.Status != http.StatusNoContent {
		t.Errorf("a halting response step must replace the response, got %d", res.Status)
	}
}

func TestDispatch_ConcurrentDispatches_IsolatedExtensions(t *testing.T) {
	// Two interleaved dispatches attach distinct extension values and
	// must each read back only their own at handler time.
	attach := pipeline.NewStep("attach", func(_ context.Context, req *domain.Request) pipeline.Outcome[*domain.Request] {
		req.Set("who", req.Path)
		return pipeline.Next(req)
	})

	route := &Route{
		Pattern: "/who",
		Pre:     pipeline.NewChain(attach),
		Handler: func(_ context.Context, req *domain.Request, _ *domain.Response) (*domain.Response, error) {
			who, _ := req.Get("who")
			return domain.Text(http.StatusOK, who.(string)), nil
		},
	}

	d := New(testLogger())
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/who/" + string(rune('a'+i%26))
			res := d.Dispatch(context.Background(), route, newRequest(http.MethodGet, path))
			if string(res.Body) != path {
				t.Errorf("dispatch %d read a foreign extension value: %q", i, res.Body)
			}
		}(i)
	}
	wg.Wait()
}

func TestDispatch_Recorder_ReceivesOutcomes(t *testing.T) {
	recorder := &memoryRecorder{}
	d := New(testLogger(), WithRecorder(recorder))

	ok := &Route{Pattern: "/ok", Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
		return domain.Text(http.StatusOK, "ok"), nil
	}}
	denied := &Route{
		Pattern: "/denied",
		Pre: pipeline.NewChain(pipeline.NewStep("deny", func(_ context.Context, _ *domain.Request) pipeline.Outcome[*domain.Request] {
			return pipeline.Halt[*domain.Request](domain.Text(http.StatusUnauthorized, "no"))
		})),
		Handler: func(_ context.Context, _ *domain.Request, _ *domain.Response) (*domain.Response, error) {
			return domain.NewResponse(), nil
		},
	}

	d.Dispatch(context.Background(), ok, newRequest(http.MethodGet, "/ok"))
	d.Dispatch(context.Background(), denied, newRequest(http.MethodGet, "/denied"))

	if len(recorder.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recorder.entries))
	}
	if recorder.entries[0].Outcome != OutcomeSuccess {
		t.Errorf("expected success outcome, got %s", recorder.entries[0].Outcome)
	}
	if recorder.entries[1].Outcome != OutcomeShortCircuit {
		t.Errorf("expected short_circuit outcome, got %s", recorder.entries[1].Outcome)
	}
}
