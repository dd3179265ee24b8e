package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// SimpleBucket is a single token bucket: capacity, refill_rate_per_sec, and
// a current balance that refills continuously and is debited per call
// (spec.md §4.4). It is built on golang.org/x/time/rate.Limiter rather than
// hand-rolling a second token-bucket accountant — Limiter already carries
// exactly this capacity/refill/debit bookkeeping and is safe for concurrent
// use, satisfying this strategy's §5 serialization requirement for free.
type SimpleBucket struct {
	limiter *rate.Limiter
}

// NewSimpleBucket creates a bucket with the given capacity (burst, rounded
// up to the nearest whole token — rate.Limiter's reservations are integral)
// and refill rate in tokens per second.
func NewSimpleBucket(capacity, refillRatePerSec float64) *SimpleBucket {
	burst := int(math.Ceil(capacity))
	if burst < 1 {
		burst = 1
	}
	return &SimpleBucket{limiter: rate.NewLimiter(rate.Limit(refillRatePerSec), burst)}
}

// Throttle debits cost tokens (default 1 when cost <= 0) and suspends the
// caller for however long it takes the bucket to cover that debit.
func (b *SimpleBucket) Throttle(ctx context.Context, cost float64) error {
	if cost <= 0 {
		cost = 1
	}
	n := int(math.Ceil(cost))

	reservation := b.limiter.ReserveN(time.Now(), n)
	if !reservation.OK() {
		reservation.Cancel()
		return fmt.Errorf("strategy: cost %v exceeds bucket capacity", cost)
	}

	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}
