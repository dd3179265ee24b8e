// Package strategy implements the single-bucket throttling strategies a
// caller can select in place of the full multi-rule MultiThrottler:
// FixedDelay, SimpleBucket, Adaptive, and WindowBound (spec.md §4.3-§4.6,
// component C3). None of these share state across instances; a caller that
// wants to share a strategy across goroutines gets that only by sharing the
// instance itself. Every type either holds no mutable state (FixedDelay) or
// guards it (a mutex in Adaptive and WindowBound, rate.Limiter in
// SimpleBucket), so sharing an instance is safe.
package strategy
