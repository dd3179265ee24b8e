package throttle

import (
	"errors"
	"fmt"
)

// UnknownRuleError is returned synchronously by Throttle (or raised by the
// driver against an already-queued item) when a cost vector references a
// rule id that does not exist in the throttler's rule table.
type UnknownRuleError struct {
	ID       string
	KnownIDs []string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("throttle: unknown rule %q (known rules: %v)", e.ID, e.KnownIDs)
}

// QueueFullError is returned synchronously by Throttle when the queue is at
// its configured capacity.
type QueueFullError struct {
	Cap int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("throttle: queue full (max_capacity=%d)", e.Cap)
}

// ErrCancelled is the error a pending completion resolves with when its
// caller abandons it before admission. It is not itself an engine error —
// cancellation is an ordinary, expected outcome (spec.md §7).
var ErrCancelled = errors.New("throttle: waiter cancelled")
