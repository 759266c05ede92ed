// Package pipeline provides the ordered, short-circuiting step chains
// that pre- and post-process every dispatch.
//
// A Step is a single asynchronous transform over a payload (a request
// or a response). Each invocation produces exactly one Outcome: either
// the payload continues to the next step, or the chain halts with an
// alternate response and every remaining step is skipped unevaluated.
//
// A Chain is built once at registration time and is immutable from
// then on. Chains are distributed by pointer, so many concurrent
// dispatches fold over the same step list without synchronization;
// steps therefore must not assume exclusive ownership of their own
// state.
package pipeline
