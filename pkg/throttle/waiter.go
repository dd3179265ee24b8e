package throttle

import (
	"context"
	"sync"
	"sync/atomic"
)

// waiter is the single-use completion primitive behind a Completion. Resume
// is idempotent: completing an already-completed waiter is a no-op, and
// cancelling an already-resumed waiter does nothing either.
type waiter struct {
	done      chan error
	resumeOne sync.Once
	cancelled atomic.Bool
}

func newWaiter() *waiter {
	return &waiter{done: make(chan error, 1)}
}

// resume wakes the waiter with err. Safe to call more than once; only the
// first call has an effect. Never blocks, so the driver loop can resume an
// abandoned waiter without a reader on the other end.
func (w *waiter) resume(err error) {
	w.resumeOne.Do(func() {
		w.done <- err
	})
}

// cancel marks the waiter cancelled, returning true the first time. The
// driver skips a cancelled head without debiting its tokens.
func (w *waiter) cancel() bool {
	return w.cancelled.CompareAndSwap(false, true)
}

func (w *waiter) isCancelled() bool {
	return w.cancelled.Load()
}

// Completion is the handle a caller awaits after Throttle enqueues a
// request. It resolves (nil error) once the request has been admitted and
// its tokens debited, or with ErrCancelled/ctx.Err() if abandoned first.
type Completion struct {
	w *waiter
}

// Wait blocks until the request is admitted or ctx is cancelled. Cancelling
// ctx marks the underlying waiter cancelled so the driver can pop it out of
// the queue without stalling on its place in line (spec.md §5 cancellation).
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case err := <-c.w.done:
		return err
	case <-ctx.Done():
		c.w.cancel()
		c.w.resume(ErrCancelled)
		return ctx.Err()
	}
}
