package pipeline

import "github.com/tjfontaine/relay-gateway/internal/core/domain"

// Outcome is the tagged result of one step invocation: either the
// payload continues to the next step, or the chain short-circuits with
// an alternate response. For a request chain the alternate becomes the
// dispatch's outbound response; for a response chain it replaces the
// in-progress response.
type Outcome[T any] struct {
	payload T
	alt     *domain.Response
	halted  bool
}

// Next continues the chain with payload.
func Next[T any](payload T) Outcome[T] {
	return Outcome[T]{payload: payload}
}

// Halt short-circuits the chain with alt.
func Halt[T any](alt *domain.Response) Outcome[T] {
	return Outcome[T]{alt: alt, halted: true}
}

// Halted reports whether the chain short-circuited.
func (o Outcome[T]) Halted() bool { return o.halted }

// Payload returns the continuing payload. Only meaningful when Halted
// is false.
func (o Outcome[T]) Payload() T { return o.payload }

// Alt returns the short-circuit response. Only meaningful when Halted
// is true.
func (o Outcome[T]) Alt() *domain.Response { return o.alt }
