package pipeline

import "context"

// Chain is an ordered sequence of steps evaluated with short-circuit
// semantics. The step list is copied at construction and never mutated
// afterwards, so a single *Chain can be reached from the route table
// by any number of concurrent dispatches.
type Chain[T any] struct {
	steps []Step[T]
}

// NewChain builds a chain over the given steps, in order.
func NewChain[T any](steps ...Step[T]) *Chain[T] {
	c := &Chain[T]{steps: make([]Step[T], len(steps))}
	copy(c.steps, steps)
	return c
}

// Len returns the number of steps.
func (c *Chain[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.steps)
}

// Run folds the payload through the steps left to right. A Next
// outcome feeds the next step; the first Halt skips every remaining
// step unevaluated and is returned unchanged. The empty (or nil) chain
// is the identity transform. Run itself never fails outside the
// Outcome channel — all control flow is expressed through Halt.
func (c *Chain[T]) Run(ctx context.Context, payload T) Outcome[T] {
	out := Next(payload)
	if c == nil {
		return out
	}
	for _, step := range c.steps {
		out = step.Call(ctx, out.Payload())
		if out.Halted() {
			return out
		}
	}
	return out
}
