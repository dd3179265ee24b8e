package strategy

import (
	"context"
	"testing"
	"time"
)

func TestWindowBoundUnknownServiceErrors(t *testing.T) {
	_, err := NewWindowBound("missing", map[string]WindowLimit{"known": {Limit: 1, WindowMs: 100}})
	if err == nil {
		t.Fatal("expected error for unconfigured service")
	}
}

func TestWindowBoundAdmitsUpToLimitThenBlocks(t *testing.T) {
	w, err := NewWindowBound("svc", map[string]WindowLimit{"svc": {Limit: 2, WindowMs: 10_000}})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := w.Throttle(ctx, 1); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := w.Throttle(ctx, 1); err != nil {
		t.Fatalf("second call: %v", err)
	}

	// Quota exhausted within a long window; a short-deadline ctx must expire
	// rather than wait for the full window to roll over.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = w.Throttle(shortCtx, 1)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded once quota exhausted, got %v", err)
	}
}

func TestWindowBoundResetsFullQuotaAfterRollover(t *testing.T) {
	w, err := NewWindowBound("svc", map[string]WindowLimit{"svc": {Limit: 1, WindowMs: 20}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := w.Throttle(ctx, 1); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// The window must roll over and restore the *configured* limit, not
	// whatever "remaining" happened to be left (spec.md §9 bug fix).
	start := time.Now()
	if err := w.Throttle(ctx, 1); err != nil {
		t.Fatalf("second call after rollover: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected to wait roughly one window for rollover, elapsed %s", elapsed)
	}

	w.mu.Lock()
	remaining := w.remaining
	limit := w.limit
	w.mu.Unlock()
	if remaining != limit-1 {
		t.Errorf("after rollover+one debit, remaining = %d, want %d", remaining, limit-1)
	}
}
