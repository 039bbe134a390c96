package ratelimit

import (
	"math"
	"sync"
	"time"
)

// bucket is the per-identity token bucket state. All fields are guarded
// by mu; refill happens lazily on access, never via a per-bucket ticker.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// TokenBucketConfig configures a TokenBucket limiter.
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens a bucket holds.
	Capacity float64
	// RefillRate is tokens added per second.
	RefillRate float64
	// SweepInterval is how often idle buckets are evicted.
	SweepInterval time.Duration
	// IdleExpiry is how long a full, untouched bucket survives before
	// eviction.
	IdleExpiry time.Duration
}

// TokenBucket is a keyed token-bucket rate limiter. Each identity gets an
// independent bucket created lazily on first use.
type TokenBucket struct {
	capacity   float64
	refillRate float64
	idleExpiry time.Duration

	mu      sync.RWMutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTokenBucket creates a token bucket limiter and starts its sweep
// goroutine.
func NewTokenBucket(cfg TokenBucketConfig) *TokenBucket {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleExpiry <= 0 {
		cfg.IdleExpiry = 3 * time.Minute
	}

	tb := &TokenBucket{
		capacity:   cfg.Capacity,
		refillRate: cfg.RefillRate,
		idleExpiry: cfg.IdleExpiry,
		buckets:    make(map[string]*bucket),
		stopCh:     make(chan struct{}),
	}
	go tb.sweep(cfg.SweepInterval)
	return tb
}

// Allow reports whether one request for key is admitted.
func (tb *TokenBucket) Allow(key string) bool {
	return tb.AllowN(key, 1)
}

// AllowN reports whether n requests for key are admitted, deducting n
// tokens on admission.
func (tb *TokenBucket) AllowN(key string, n int) bool {
	b := tb.get(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(tb.capacity, b.tokens+elapsed*tb.refillRate)
	b.lastRefill = now
	b.lastSeen = now

	if b.tokens < float64(n) {
		return false
	}
	b.tokens -= float64(n)
	return true
}

// Stop terminates the sweep goroutine. Idempotent.
func (tb *TokenBucket) Stop() {
	tb.stopOnce.Do(func() { close(tb.stopCh) })
}

// get returns the bucket for key, creating it on first use with
// double-checked locking so concurrent first calls share one bucket.
func (tb *TokenBucket) get(key string) *bucket {
	tb.mu.RLock()
	b, ok := tb.buckets[key]
	tb.mu.RUnlock()
	if ok {
		return b
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if b, ok := tb.buckets[key]; ok {
		return b
	}
	now := time.Now()
	b = &bucket{tokens: tb.capacity, lastRefill: now, lastSeen: now}
	tb.buckets[key] = b
	return b
}

// sweep periodically evicts buckets that are full and untouched beyond
// the idle expiry. A bucket still refilling toward capacity is never
// evicted, since dropping it would grant a free burst.
func (tb *TokenBucket) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-tb.stopCh:
			return
		case <-ticker.C:
			tb.evictIdle(time.Now())
		}
	}
}

func (tb *TokenBucket) evictIdle(now time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for key, b := range tb.buckets {
		b.mu.Lock()
		elapsed := now.Sub(b.lastRefill).Seconds()
		full := b.tokens+elapsed*tb.refillRate >= tb.capacity
		idle := now.Sub(b.lastSeen) > tb.idleExpiry
		b.mu.Unlock()

		if full && idle {
			delete(tb.buckets, key)
		}
	}
}

// size reports the number of tracked identities. Used by tests.
func (tb *TokenBucket) size() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.buckets)
}
