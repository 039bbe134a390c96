/*
Package tracing provides lightweight request tracing.

Each inbound request gets a trace ID, propagated via the X-Trace-ID and
X-Span-ID headers and carried through the request context. Completed
spans are logged through a buffered collector so the hot path never
blocks on span processing. Outbound upstream calls inject the same
headers, which lets a degraded or retried fetch be correlated with the
request that triggered it.

Usage:

	tracer := tracing.New("backend", logger)
	router.Use(tracing.HTTPMiddleware(tracer))
*/
package tracing
