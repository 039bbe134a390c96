// Package upstream performs outbound calls to the unreliable providers
// this service aggregates.
//
// Transport is the raw send primitive, implemented over resty with a
// retryablehttp-tuned http.Transport underneath. Client wraps any
// Transport with bounded retries: exponential backoff capped at a maximum
// wait, up to 25% uniform jitter to break up synchronized retry storms,
// and context-aware waits that abort immediately on caller cancellation.
// Network failures, timeouts, and 5xx responses are retried; 4xx
// responses are not, since they indicate a non-transient problem with the
// request itself. Each attempt carries a User-Agent drawn independently
// from a fixed pool; upstreams rate callers by fingerprint and the
// rotation keeps a retry burst from being blocked as one client.
package upstream
