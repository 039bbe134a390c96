package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestWindow(rate float64, size time.Duration) *SlidingWindow {
	return NewSlidingWindow(SlidingWindowConfig{
		Rate:          rate,
		WindowSize:    size,
		SweepInterval: time.Hour,
		IdleExpiry:    time.Hour,
	})
}

func TestSlidingWindowBoundary(t *testing.T) {
	sw := newTestWindow(5, time.Second)
	defer sw.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, sw.Allow("client"), "call %d should be admitted", i+1)
	}
	assert.False(t, sw.Allow("client"), "call past the window limit should be rejected")
}

func TestSlidingWindowExpiry(t *testing.T) {
	sw := newTestWindow(2, 100*time.Millisecond)
	defer sw.Stop()

	assert.True(t, sw.AllowN("client", 2))
	assert.False(t, sw.Allow("client"))

	// After the window passes, old entries no longer count.
	time.Sleep(150 * time.Millisecond)
	assert.True(t, sw.AllowN("client", 2))
}

func TestSlidingWindowAllowNAllOrNothing(t *testing.T) {
	sw := newTestWindow(3, time.Second)
	defer sw.Stop()

	assert.False(t, sw.AllowN("client", 4))
	assert.True(t, sw.AllowN("client", 3), "rejected call must not have recorded timestamps")
}

func TestSlidingWindowPerIdentityIsolation(t *testing.T) {
	sw := newTestWindow(2, time.Second)
	defer sw.Stop()

	assert.True(t, sw.AllowN("a", 2))
	assert.False(t, sw.Allow("a"))
	assert.True(t, sw.AllowN("b", 2))
}

func TestSlidingWindowSweep(t *testing.T) {
	sw := NewSlidingWindow(SlidingWindowConfig{
		Rate:          10,
		WindowSize:    10 * time.Millisecond,
		SweepInterval: time.Hour,
		IdleExpiry:    20 * time.Millisecond,
	})
	defer sw.Stop()

	sw.Allow("a")
	assert.Equal(t, 1, sw.size())

	time.Sleep(50 * time.Millisecond)
	sw.evictIdle(time.Now())
	assert.Equal(t, 0, sw.size())
}

func TestSlidingWindowSweepKeepsLive(t *testing.T) {
	sw := NewSlidingWindow(SlidingWindowConfig{
		Rate:          10,
		WindowSize:    time.Minute,
		SweepInterval: time.Hour,
		IdleExpiry:    time.Minute,
	})
	defer sw.Stop()

	sw.Allow("a")
	sw.evictIdle(time.Now())
	assert.Equal(t, 1, sw.size(), "live timestamps must survive the sweep")
}

func TestDefaultKeyExtractor(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		subject    string
		expected   string
	}{
		{
			name:       "prefers forwarded address",
			forwarded:  "203.0.113.7, 10.0.0.1",
			remoteAddr: "192.0.2.1:9000",
			expected:   "203.0.113.7",
		},
		{
			name:       "single forwarded hop",
			forwarded:  "203.0.113.7",
			remoteAddr: "192.0.2.1:9000",
			expected:   "203.0.113.7",
		},
		{
			name:       "falls back to remote address",
			remoteAddr: "192.0.2.1:9000",
			expected:   "192.0.2.1",
		},
		{
			name:     "falls back to auth subject",
			subject:  "user-42",
			expected: "user-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.subject != "" {
				r.Header.Set("X-Auth-Subject", tt.subject)
			}
			assert.Equal(t, tt.expected, DefaultKeyExtractor(r))
		})
	}
}
