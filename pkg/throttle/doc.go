// Package throttle implements the request-rate throttling engine's core:
// Rule storage, the multi-rule token-bucket admission queue (MultiThrottler),
// and the façade that dispatches a caller's throttle(cost) to whichever
// mechanism — MultiThrottler, a pluggable strategy (pkg/throttle/strategy),
// or the sync serializer (pkg/syncgate) — it configured.
//
// Single-rule callers never see a queue: they talk to a strategy directly.
// Multi-rule callers enqueue a CostVector and wait on the returned
// Completion. A single background goroutine (the "driver") owns the queue
// and every rule's token balance for one MultiThrottler instance; it starts
// when the queue goes from empty to non-empty and stops when it drains.
package throttle
