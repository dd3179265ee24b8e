package strategy

import (
	"context"
	"testing"
	"time"
)

func TestFixedDelayWaits(t *testing.T) {
	f := NewFixedDelay(30)
	start := time.Now()
	if err := f.Throttle(context.Background(), 0); err != nil {
		t.Fatalf("Throttle: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("expected roughly 30ms delay, elapsed %s", elapsed)
	}
}

func TestFixedDelayRespectsCancellation(t *testing.T) {
	f := NewFixedDelay(10_000)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.Throttle(ctx, 0)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}
