// Package main is the entry point for the quillfeed backend server.
//
// The server aggregates flaky upstream feed providers behind a
// resilience layer and exposes the results over REST, SSE, and
// WebSocket.
//
// The server provides:
//   - REST API for feed reads with graceful degradation
//   - SSE and WebSocket streaming of summarized payloads
//   - Circuit breaker state inspection and reset
//   - Per-identity rate limiting
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - Defaults for development
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
