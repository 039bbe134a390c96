// Package resilience implements the circuit breaker pattern for calls to
// flaky upstream providers.
//
// A Breaker is a pure in-memory state machine (closed, open, half-open)
// with no I/O of its own. While closed, consecutive failures up to
// MaxFailures trip it open. While open, calls are rejected immediately
// with ErrCircuitOpen; once OpenTimeout has elapsed since the last
// failure the next call is admitted as a half-open probe. HalfOpenMaxProbes
// consecutive probe successes close the breaker again; a single probe
// failure reopens it.
//
// Manager maps logical upstream names to breaker instances, creating them
// lazily and idempotently, so callers never construct breakers directly.
package resilience
