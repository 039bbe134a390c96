// Package stream delivers incrementally produced results to one client
// over a single long-lived connection.
//
// Session wraps a server-sent-events sink. Every Send writes one framed
// event and flushes immediately, so the client sees partial progress as
// it is produced. Close is idempotent and terminal; a watcher goroutine
// closes the session the moment the transport's cancellation signal
// fires, so a blocked producer is unblocked promptly instead of hanging
// until its next send attempt. Producers should treat
// ErrClientDisconnected as a normal stop condition, not a fault.
//
// Limiter caps the number of concurrently open sessions process-wide.
package stream
