// Package degrade trades freshness for availability when upstream
// providers fail.
//
// Service wraps caller-supplied fetch functions with fallback policies:
// WithFallback serves the last-known-good cached value when a fetch
// fails, WithCircuitBreaker additionally skips the fetch entirely while
// the named breaker is open, and AsyncRefresh implements
// stale-while-revalidate: cached data is returned once a fast window
// elapses while the fetch continues in a detached background refresh
// that warms the cache for future callers. Background refreshes are
// de-duplicated per key: one in flight means later triggers join or
// no-op, and only the in-flight refresh clears its own claim.
//
// The cache collaborator is opaque bytes behind a two-method interface;
// MemoryCache is the in-process default.
package degrade
