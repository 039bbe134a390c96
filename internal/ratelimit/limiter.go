package ratelimit

// Limiter admits or rejects a request for a caller identity. Admission is
// atomic: an admitted call has already recorded its cost before the
// limiter's lock is released, and a rejected call mutates nothing.
type Limiter interface {
	// Allow reports whether one request for key is admitted now.
	Allow(key string) bool
	// AllowN reports whether n requests for key are admitted now, all or
	// nothing.
	AllowN(key string, n int) bool
	// Stop terminates the background sweep goroutine.
	Stop()
}
