package throttle

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"ratethrottle/pkg/logx"
	"ratethrottle/pkg/metrics"
)

// Config configures a MultiThrottler's queue bound and driver poll cadence.
type Config struct {
	MaxCapacity int // hard queue-length cap, default 2000
	DelayMs     int // upper bound on driver sleep between polls, default 1
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxCapacity: 2000, DelayMs: 1}
}

func (c Config) withDefaults() Config {
	if c.MaxCapacity <= 0 {
		c.MaxCapacity = 2000
	}
	if c.DelayMs < 0 {
		c.DelayMs = 1
	}
	return c
}

// yieldEvery is how many admissions the driver performs before yielding to
// the scheduler, so a hot queue can't starve cooperating goroutines.
const yieldEvery = 10

// MultiThrottler is the multi-rule token-bucket scheduler with a FIFO
// admission queue (spec.md §4.2, component C2).
type MultiThrottler struct {
	// mu is a plain, non-reentrant mutex: every exported method locks it
	// exactly once, and the *Locked helpers below never lock — see
	// DESIGN.md "Reentrant mutex" for why this satisfies spec.md §5
	// without goroutine-aware re-entry.
	mu       sync.Mutex
	rules    map[string]*Rule
	q        queue
	cfg      Config
	running  bool
	lastTick time.Time
	log      *logx.Logger
	rec      metrics.Recorder
}

// NewMultiThrottler clones each rule into an owned table keyed by id and
// returns a throttler ready to accept Throttle calls. Invalid rules
// (duplicate id, non-positive capacity/refill_rate, out-of-range tokens)
// are a precondition violation, not a silently accepted throttler.
func NewMultiThrottler(rules []Rule, cfg Config) (*MultiThrottler, error) {
	m := &MultiThrottler{
		rules: make(map[string]*Rule, len(rules)),
		cfg:   cfg.withDefaults(),
		log:   logx.NewLogger("throttle"),
		rec:   metrics.Nop(),
	}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, exists := m.rules[r.ID]; exists {
			return nil, &ruleIDConflictError{ID: r.ID}
		}
		cloned := r.clone()
		m.rules[r.ID] = &cloned
	}
	return m, nil
}

// SetRecorder wires a metrics.Recorder; nil is rejected in favor of
// metrics.Nop() so callers never need a nil check.
func (m *MultiThrottler) SetRecorder(rec metrics.Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec == nil {
		rec = metrics.Nop()
	}
	m.rec = rec
}

type ruleIDConflictError struct{ ID string }

func (e *ruleIDConflictError) Error() string {
	return "throttle: duplicate rule id " + e.ID
}

// AddRule upserts a rule by id. The passed Rule is cloned; the caller's
// copy is never retained (spec.md §4.1).
func (m *MultiThrottler) AddRule(r Rule) error {
	if err := r.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := r.clone()
	m.rules[r.ID] = &cloned
	return nil
}

// RemoveRule removes a rule by id, returning whether it existed. Items
// already queued that reference the removed id fail-fast at their next
// admission check (spec.md §4.2, resolved choice (b)).
func (m *MultiThrottler) RemoveRule(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.rules[id]
	delete(m.rules, id)
	return exists
}

// SetTokens clamps value into [0, capacity], atomic with respect to the
// driver loop.
func (m *MultiThrottler) SetTokens(id string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, exists := m.rules[id]
	if !exists {
		return &UnknownRuleError{ID: id, KnownIDs: m.knownIDsLocked()}
	}
	r.Tokens = clamp(value, 0, r.Capacity)
	return nil
}

// Reset sets every rule's tokens to its capacity.
func (m *MultiThrottler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		r.Tokens = r.Capacity
	}
}

// Status returns a snapshot of every rule's tokens/capacity/utilization.
func (m *MultiThrottler) Status() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := make(map[string]Status, len(m.rules))
	for id, r := range m.rules {
		util := 0.0
		if r.Capacity > 0 {
			util = 1 - r.Tokens/r.Capacity
		}
		out[id] = Status{Tokens: r.Tokens, Capacity: r.Capacity, Utilization: util, ObservedAt: now}
		m.rec.SetBucketUtilization(id, util)
	}
	return out
}

// QueueLength returns the current number of queued requests.
func (m *MultiThrottler) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.len()
}

// IsRunning reports whether the driver loop is currently active.
func (m *MultiThrottler) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MultiThrottler) knownIDsLocked() []string {
	ids := make([]string, 0, len(m.rules))
	for id := range m.rules {
		ids = append(ids, id)
	}
	return ids
}

// Throttle requests admission for cost. It fails synchronously with
// UnknownRuleError if any cost id is unknown and QueueFullError if the
// queue is already at max_capacity; otherwise it enqueues the request and
// returns a Completion that resolves once tokens have been debited.
func (m *MultiThrottler) Throttle(cost CostVector) (*Completion, error) {
	m.mu.Lock()

	for id := range cost {
		if _, exists := m.rules[id]; !exists {
			known := m.knownIDsLocked()
			m.mu.Unlock()
			m.rec.IncThrottle("multi", "unknown_rule")
			return nil, &UnknownRuleError{ID: id, KnownIDs: known}
		}
	}

	if m.q.len() >= m.cfg.MaxCapacity {
		cap := m.cfg.MaxCapacity
		m.mu.Unlock()
		m.rec.IncThrottle("multi", "queue_full")
		return nil, &QueueFullError{Cap: cap}
	}

	item := &queueItem{
		id:         uuid.NewString(),
		cost:       cost,
		enqueuedAt: time.Now(),
		w:          newWaiter(),
	}
	wasEmpty := m.q.len() == 0
	m.q.pushBack(item)

	shouldStart := wasEmpty && !m.running
	if shouldStart {
		m.running = true
		m.lastTick = time.Now()
	}
	m.mu.Unlock()

	if shouldStart {
		go m.runDriver()
	}

	return &Completion{w: item.w}, nil
}

// admitOutcome classifies why the head of the queue could not be admitted.
type admitOutcome int

const (
	admitOK admitOutcome = iota
	admitInsufficientTokens
	admitMissingRule
)

func (m *MultiThrottler) checkAdmitLocked(cost CostVector) (admitOutcome, string) {
	for id, c := range cost {
		r, exists := m.rules[id]
		if !exists {
			return admitMissingRule, id
		}
		if r.Tokens < c {
			return admitInsufficientTokens, ""
		}
	}
	return admitOK, ""
}

func (m *MultiThrottler) debitLocked(cost CostVector) {
	for id, c := range cost {
		m.rules[id].Tokens -= c
	}
}

// minWaitLocked computes the minimum wait before the head could admit,
// considering only ids whose tokens are currently insufficient.
func (m *MultiThrottler) minWaitLocked(cost CostVector) time.Duration {
	var maxWaitMs float64
	for id, c := range cost {
		r := m.rules[id]
		if r.Tokens >= c {
			continue
		}
		waitMs := (c - r.Tokens) / r.RefillRate
		if waitMs > maxWaitMs {
			maxWaitMs = waitMs
		}
	}
	return time.Duration(maxWaitMs * float64(time.Millisecond))
}

func (m *MultiThrottler) refillLocked(elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	for _, r := range m.rules {
		r.Tokens = math.Min(r.Capacity, r.Tokens+r.RefillRate*elapsedMs)
	}
}

// runDriver is the single logical driver for this throttler: it refills
// tokens based on wall-clock elapsed time, admits head-of-queue items whose
// full cost vector is covered, and sleeps the minimum time needed to
// unblock the head otherwise. It exits once the queue drains, and is
// restarted by the next Throttle call (spec.md §4.2 state machine).
func (m *MultiThrottler) runDriver() {
	admitted := 0

	for {
		m.mu.Lock()

		now := time.Now()
		m.refillLocked(now.Sub(m.lastTick))
		m.lastTick = now

		missingRuleID := ""
		headBlocked := false

		for {
			head, ok := m.q.front()
			if !ok {
				break
			}

			if head.w.isCancelled() {
				m.q.popFront()
				head.w.resume(ErrCancelled)
				admitted++
				if admitted%yieldEvery == 0 {
					m.mu.Unlock()
					runtime.Gosched()
					m.mu.Lock()
				}
				continue
			}

			outcome, mid := m.checkAdmitLocked(head.cost)
			if outcome == admitMissingRule {
				missingRuleID = mid
				break
			}
			if outcome == admitInsufficientTokens {
				headBlocked = true
				break
			}

			m.debitLocked(head.cost)
			m.q.popFront()
			m.rec.ObserveQueueWait("multi", time.Since(head.enqueuedAt))
			head.w.resume(nil)
			admitted++
			if admitted%yieldEvery == 0 {
				m.mu.Unlock()
				runtime.Gosched()
				m.mu.Lock()
			}
		}

		if missingRuleID != "" {
			known := m.knownIDsLocked()
			err := &UnknownRuleError{ID: missingRuleID, KnownIDs: known}
			m.q.drainAll(err)
			m.running = false
			m.mu.Unlock()
			m.log.Warn("aborting queue: rule %q referenced by a queued item no longer exists", missingRuleID)
			return
		}

		if m.q.len() == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}

		var wait time.Duration
		if headBlocked {
			head, _ := m.q.front()
			wait = m.minWaitLocked(head.cost)
		}
		delay := time.Duration(m.cfg.DelayMs) * time.Millisecond
		if wait > delay {
			wait = delay
		}
		if wait < 0 {
			wait = 0
		}
		m.mu.Unlock()
		time.Sleep(wait)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
