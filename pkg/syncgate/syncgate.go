// Package syncgate provides the minimum-interval serialization gate used by
// blocking callers that don't want a queue (spec.md §4.7, component C4).
package syncgate

import (
	"context"
	"sync"
	"time"

	"ratethrottle/pkg/logx"
)

// Serializer enforces a minimum interval between the returns of consecutive
// Throttle calls on the same instance. Steps 2-4 of spec.md §4.7 — read
// elapsed, maybe sleep, update the timestamp — are serialized as one atomic
// block under a single lock (held across the sleep, not released for it):
// otherwise two concurrent callers could both observe "enough elapsed" and
// proceed together, breaking the §8.2 property.
type Serializer struct {
	// mu is a plain, non-reentrant mutex: Throttle locks it exactly once
	// and holds it across the sleep itself — see DESIGN.md "Reentrant
	// mutex" for why no goroutine-aware re-entry is needed here.
	mu          sync.Mutex
	rateLimitMs int64
	lastRequest time.Time // zero until the first call, making it free
	log         *logx.Logger
}

// NewSerializer creates a Serializer enforcing at least rateLimitMs
// milliseconds between consecutive calls at cost 1.
func NewSerializer(rateLimitMs int) *Serializer {
	return &Serializer{
		rateLimitMs: int64(rateLimitMs),
		log:         logx.NewLogger("syncgate"),
	}
}

// Throttle blocks the calling goroutine until rate_limit_ms * cost
// milliseconds have elapsed since the last call returned (spec.md §4.7).
// cost <= 0 is treated as 1.
func (s *Serializer) Throttle(ctx context.Context, cost float64) error {
	if cost <= 0 {
		cost = 1
	}
	required := time.Duration(float64(s.rateLimitMs)*cost) * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var elapsed time.Duration
	if s.lastRequest.IsZero() {
		elapsed = required // first call is free
	} else {
		elapsed = now.Sub(s.lastRequest)
	}

	if elapsed < required {
		wait := required - elapsed
		s.log.Debug("waiting %s before next request (elapsed %s, required %s)", wait, elapsed, required)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.lastRequest = time.Now()
	return nil
}
