package pipeline

import "context"

// Step processes a request or response payload in a chain. Call may
// block on downstream work (ctx flows through untouched), may mutate
// or replace the payload, and may attach extension data — but a Step
// value is shared by every dispatch that uses its chain, so it must be
// safe to invoke concurrently.
type Step[T any] interface {
	// Name identifies the step in logs.
	Name() string
	// Call produces exactly one Outcome for the given payload.
	Call(ctx context.Context, payload T) Outcome[T]
}

type stepFunc[T any] struct {
	name string
	fn   func(ctx context.Context, payload T) Outcome[T]
}

func (s stepFunc[T]) Name() string { return s.name }

func (s stepFunc[T]) Call(ctx context.Context, payload T) Outcome[T] {
	return s.fn(ctx, payload)
}

// NewStep adapts a function to the Step interface.
func NewStep[T any](name string, fn func(ctx context.Context, payload T) Outcome[T]) Step[T] {
	return stepFunc[T]{name: name, fn: fn}
}
