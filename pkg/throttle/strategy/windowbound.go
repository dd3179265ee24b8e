package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WindowLimit describes one service's fixed window: Limit requests per
// WindowMs.
type WindowLimit struct {
	Limit    int
	WindowMs int
}

// WindowBound is a per-service fixed-window limiter (spec.md §4.6). Unlike
// the source this spec was distilled from — which conflated "remaining"
// and "original limit" and reset remaining to itself, a no-op bug — this
// implementation stores the original limit separately so a window reset
// always restores the configured quota (spec.md §4.6, §9).
type WindowBound struct {
	mu          sync.Mutex
	service     string
	limit       int
	windowMs    int
	remaining   int
	windowStart time.Time
}

// NewWindowBound looks up service in table and returns a strategy scoped to
// that single service's window.
func NewWindowBound(service string, table map[string]WindowLimit) (*WindowBound, error) {
	wl, ok := table[service]
	if !ok {
		return nil, fmt.Errorf("strategy: no window configured for service %q", service)
	}
	if wl.Limit <= 0 || wl.WindowMs <= 0 {
		return nil, fmt.Errorf("strategy: service %q has non-positive limit/window", service)
	}
	return &WindowBound{
		service:     service,
		limit:       wl.Limit,
		windowMs:    wl.WindowMs,
		remaining:   wl.Limit,
		windowStart: time.Now(),
	}, nil
}

// Throttle subtracts cost (default 1) from the window's remaining quota,
// resetting the window first if it has elapsed and suspending until the
// window rolls over if the quota is already exhausted.
func (w *WindowBound) Throttle(ctx context.Context, cost float64) error {
	if cost <= 0 {
		cost = 1
	}

	for {
		w.mu.Lock()
		now := time.Now()
		windowEnd := w.windowStart.Add(time.Duration(w.windowMs) * time.Millisecond)

		if now.After(windowEnd) {
			w.remaining = w.limit
			w.windowStart = now
			windowEnd = now.Add(time.Duration(w.windowMs) * time.Millisecond)
		}

		if w.remaining > 0 {
			w.remaining -= int(cost)
			w.mu.Unlock()
			return nil
		}

		wait := time.Until(windowEnd)
		w.mu.Unlock()

		if wait <= 0 {
			continue // window just rolled over; loop will re-check under lock
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			timer.Stop()
			continue
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
