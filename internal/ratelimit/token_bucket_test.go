package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBucket(capacity, rate float64) *TokenBucket {
	tb := NewTokenBucket(TokenBucketConfig{
		Capacity:      capacity,
		RefillRate:    rate,
		SweepInterval: time.Hour,
		IdleExpiry:    time.Hour,
	})
	return tb
}

func TestTokenBucketBoundary(t *testing.T) {
	tb := newTestBucket(5, 1)
	defer tb.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow("client"), "call %d should be admitted", i+1)
	}
	assert.False(t, tb.Allow("client"), "call past capacity should be rejected")
}

func TestTokenBucketRefill(t *testing.T) {
	tb := newTestBucket(2, 20) // refills a token every 50ms
	defer tb.Stop()

	assert.True(t, tb.AllowN("client", 2))
	assert.False(t, tb.Allow("client"))

	time.Sleep(120 * time.Millisecond)

	assert.True(t, tb.AllowN("client", 2), "elapsed time should restore tokens")
}

func TestTokenBucketAllowNAllOrNothing(t *testing.T) {
	tb := newTestBucket(3, 0.001)
	defer tb.Stop()

	assert.False(t, tb.AllowN("client", 4), "request above capacity is rejected")
	// Rejection must not have consumed anything.
	assert.True(t, tb.AllowN("client", 3))
}

func TestTokenBucketPerIdentityIsolation(t *testing.T) {
	tb := newTestBucket(2, 0.001)
	defer tb.Stop()

	assert.True(t, tb.AllowN("a", 2))
	assert.False(t, tb.Allow("a"))

	// Exhausting A never affects B.
	assert.True(t, tb.AllowN("b", 2))
}

func TestTokenBucketConcurrentAdmission(t *testing.T) {
	tb := newTestBucket(50, 0.001)
	defer tb.Stop()

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tb.Allow("client") {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	assert.Equal(t, 50, count, "exactly capacity admissions under contention")
}

func TestTokenBucketSweepEvictsIdle(t *testing.T) {
	tb := NewTokenBucket(TokenBucketConfig{
		Capacity:      2,
		RefillRate:    100,
		SweepInterval: time.Hour,
		IdleExpiry:    10 * time.Millisecond,
	})
	defer tb.Stop()

	tb.Allow("idle")
	assert.Equal(t, 1, tb.size())

	time.Sleep(50 * time.Millisecond)
	tb.evictIdle(time.Now())

	assert.Equal(t, 0, tb.size())
}

func TestTokenBucketSweepKeepsDraining(t *testing.T) {
	// Refill is so slow the bucket stays below capacity; it must survive
	// the sweep even when idle.
	tb := NewTokenBucket(TokenBucketConfig{
		Capacity:      2,
		RefillRate:    0.001,
		SweepInterval: time.Hour,
		IdleExpiry:    10 * time.Millisecond,
	})
	defer tb.Stop()

	tb.AllowN("busy", 2)
	time.Sleep(50 * time.Millisecond)
	tb.evictIdle(time.Now())

	assert.Equal(t, 1, tb.size())
}
