// Package http contains the Gin handlers for the public API surface:
// feed reads through the degradation policies, the SSE summary stream,
// health and stats, and the circuit breaker admin endpoints.
package http
