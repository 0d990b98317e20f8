// Package abort implements the single atomic cancellation flag shared by
// the rule-matching loop, the pagination engine, and long-running action
// handlers. It is deliberately not a context.Context: observing it must
// return partial results rather than unwind via an error.
package abort

import "sync/atomic"

// Flag is a single boolean, safe for concurrent use, polled at every
// suspension point.
type Flag struct {
	v int32
}

// Set marks the flag as aborted. Idempotent.
func (f *Flag) Set() {
	atomic.StoreInt32(&f.v, 1)
}

// IsSet reports whether the flag has been set.
func (f *Flag) IsSet() bool {
	return atomic.LoadInt32(&f.v) == 1
}

// Reset clears the flag, part of the loop's cleanup contract.
func (f *Flag) Reset() {
	atomic.StoreInt32(&f.v, 0)
}
