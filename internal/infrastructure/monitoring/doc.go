// Package monitoring provides Prometheus instrumentation for the
// aggregation backend: HTTP request metrics, upstream fetch and retry
// counters, degradation and cache outcomes, circuit breaker transitions,
// rate limiter rejections, and streaming session gauges.
//
// A lightweight snapshot of headline values is kept alongside the
// Prometheus registry so the JSON metrics endpoint can serve without
// scraping.
package monitoring
