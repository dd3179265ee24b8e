package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustThrottler(t *testing.T, rules []Rule, cfg Config) *MultiThrottler {
	t.Helper()
	m, err := NewMultiThrottler(rules, cfg)
	if err != nil {
		t.Fatalf("NewMultiThrottler: %v", err)
	}
	return m
}

func TestEmptyCostVectorAdmitsImmediately(t *testing.T) {
	// The bucket starts full so the driver's elapsed-time refill (clamped at
	// capacity) cannot change the balance: any debit would show.
	m := mustThrottler(t, []Rule{{ID: "w", Capacity: 1, RefillRate: 0.0001, Tokens: 1}}, DefaultConfig())

	completion, err := m.Throttle(CostVector{})
	if err != nil {
		t.Fatalf("Throttle(empty): %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := completion.Wait(ctx); err != nil {
		t.Fatalf("expected empty cost vector to admit immediately, got %v", err)
	}

	status := m.Status()
	if status["w"].Tokens != 1 {
		t.Errorf("empty cost vector must not consume tokens, got tokens=%v", status["w"].Tokens)
	}
}

func TestUnknownRuleRejectedSynchronously(t *testing.T) {
	m := mustThrottler(t, []Rule{{ID: "a", Capacity: 1, RefillRate: 1, Tokens: 1}}, DefaultConfig())

	_, err := m.Throttle(CostVector{"missing": 1})
	var unknown *UnknownRuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRuleError, got %v", err)
	}
	if unknown.ID != "missing" {
		t.Errorf("expected offending id %q, got %q", "missing", unknown.ID)
	}
	if m.QueueLength() != 0 {
		t.Errorf("unknown-rule rejection must not enqueue, queue length = %d", m.QueueLength())
	}
}

func TestQueueFull(t *testing.T) {
	m := mustThrottler(t, []Rule{{ID: "a", Capacity: 1, RefillRate: 0.00001, Tokens: 0}}, Config{MaxCapacity: 3, DelayMs: 1})

	for i := 0; i < 3; i++ {
		if _, err := m.Throttle(CostVector{"a": 1}); err != nil {
			t.Fatalf("Throttle[%d]: %v", i, err)
		}
	}

	_, err := m.Throttle(CostVector{"a": 1})
	var full *QueueFullError
	if !errors.As(err, &full) {
		t.Fatalf("expected QueueFullError, got %v", err)
	}
	if full.Cap != 3 {
		t.Errorf("expected cap=3, got %d", full.Cap)
	}
}

func TestFIFOOrderingUnderBindingHead(t *testing.T) {
	// Single rule starts empty; the first two X:1 calls must admit before
	// the later zero-cost call, even though the zero-cost call could be
	// admitted immediately on its own (spec.md §4.2 ordering, scenario S3).
	m := mustThrottler(t, []Rule{{ID: "X", Capacity: 1, RefillRate: 1, Tokens: 0}}, Config{MaxCapacity: 10, DelayMs: 1})

	order := make(chan string, 3)
	c1, err := m.Throttle(CostVector{"X": 1})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := m.Throttle(CostVector{"X": 1})
	if err != nil {
		t.Fatal(err)
	}
	c3, err := m.Throttle(CostVector{})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		_ = c1.Wait(context.Background())
		order <- "first"
	}()
	go func() {
		_ = c2.Wait(context.Background())
		order <- "second"
	}()
	go func() {
		_ = c3.Wait(context.Background())
		order <- "third"
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got []string
	for i := 0; i < 3; i++ {
		select {
		case name := <-order:
			got = append(got, name)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for admission order, got %v so far", got)
		}
	}

	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("admission order = %v, want %v", got, want)
		}
	}
}

func TestCancellationProgress(t *testing.T) {
	// Rule with a near-zero refill rate can never admit on its own within the
	// test window, so both calls stay queued until we cancel the head.
	m := mustThrottler(t, []Rule{{ID: "x", Capacity: 1, RefillRate: 0.0000001, Tokens: 0}}, Config{MaxCapacity: 10, DelayMs: 5})

	ctx1, cancel1 := context.WithCancel(context.Background())
	c1, err := m.Throttle(CostVector{"x": 1})
	if err != nil {
		t.Fatal(err)
	}
	c2, err := m.Throttle(CostVector{"x": 1})
	if err != nil {
		t.Fatal(err)
	}

	done1 := make(chan error, 1)
	go func() { done1 <- c1.Wait(ctx1) }()

	// Give the driver a moment to start and park on the head, then cancel it.
	time.Sleep(20 * time.Millisecond)
	cancel1()

	select {
	case err := <-done1:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancelled head to resolve")
	}

	// c2 must still be pending — cancelling the head is progress, not an
	// admission, so c2 has not been granted tokens it doesn't have.
	select {
	case <-c2.w.done:
		t.Fatal("second item must not be admitted while its rule has no tokens")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetTokensClampsIntoRange(t *testing.T) {
	m := mustThrottler(t, []Rule{{ID: "a", Capacity: 10, RefillRate: 1, Tokens: 5}}, DefaultConfig())

	if err := m.SetTokens("a", -5); err != nil {
		t.Fatal(err)
	}
	if got := m.Status()["a"].Tokens; got != 0 {
		t.Errorf("SetTokens(-5) clamped tokens = %v, want 0", got)
	}

	if err := m.SetTokens("a", 1000); err != nil {
		t.Fatal(err)
	}
	if got := m.Status()["a"].Tokens; got != 10 {
		t.Errorf("SetTokens(1000) clamped tokens = %v, want 10", got)
	}

	if err := m.SetTokens("missing", 1); err == nil {
		t.Error("expected UnknownRuleError for missing rule")
	}
}

func TestResetIsIdempotent(t *testing.T) {
	m := mustThrottler(t, []Rule{{ID: "a", Capacity: 10, RefillRate: 1, Tokens: 3}}, DefaultConfig())

	m.Reset()
	m.Reset()

	if got := m.Status()["a"].Tokens; got != 10 {
		t.Errorf("after reset();reset(), tokens = %v, want 10", got)
	}
}

func TestRemoveRuleDrainsQueueWithError(t *testing.T) {
	m := mustThrottler(t, []Rule{{ID: "a", Capacity: 1, RefillRate: 0.0000001, Tokens: 0}}, Config{MaxCapacity: 10, DelayMs: 5})

	c1, err := m.Throttle(CostVector{"a": 1})
	if err != nil {
		t.Fatal(err)
	}

	// Let the driver start and park on the head before the rule disappears.
	time.Sleep(20 * time.Millisecond)
	m.RemoveRule("a")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = c1.Wait(ctx)
	var unknown *UnknownRuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownRuleError after referenced rule removal, got %v", err)
	}
}

// TestRefillAdvancesTokensViaElapsedWallClock verifies the refill formula
// deterministically, without a real sleep, by rewinding the unexported
// lastTick field under the instance's own lock — the same technique as
// pkg/limiter/limiter_test.go's TestTokenRefill, which manually rewinds
// modelLimiter.lastRefill rather than sleeping a full minute.
func TestRefillAdvancesTokensViaElapsedWallClock(t *testing.T) {
	// refill_rate is tokens per millisecond; 0.001/ms * 5000ms = ~5 tokens.
	m := mustThrottler(t, []Rule{{ID: "a", Capacity: 10, RefillRate: 0.001, Tokens: 0}}, DefaultConfig())

	m.mu.Lock()
	m.lastTick = time.Now().Add(-5 * time.Second)
	m.refillLocked(time.Since(m.lastTick))
	m.lastTick = time.Now()
	m.mu.Unlock()

	got := m.Status()["a"].Tokens
	if got < 4.5 || got > 5.5 {
		t.Errorf("after rewinding lastTick by 5s at refill_rate=0.001/ms, tokens = %v, want ~5", got)
	}
}

func TestTwoBindingRulesAdmitsSeparately(t *testing.T) {
	rules := []Rule{
		{ID: "A", Capacity: 2, RefillRate: 1, Tokens: 2},
		{ID: "B", Capacity: 5, RefillRate: 5, Tokens: 5},
	}
	m := mustThrottler(t, rules, Config{MaxCapacity: 10, DelayMs: 1})

	var completions []*Completion
	for i := 0; i < 3; i++ {
		c, err := m.Throttle(CostVector{"A": 1, "B": 1})
		if err != nil {
			t.Fatalf("Throttle[%d]: %v", i, err)
		}
		completions = append(completions, c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for i, c := range completions {
		if err := c.Wait(ctx); err != nil {
			t.Fatalf("completion %d: %v", i, err)
		}
	}
}
