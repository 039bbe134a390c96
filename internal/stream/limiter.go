package stream

import "sync"

// Limiter caps concurrently open streaming sessions. A handler must
// Acquire before opening a session and Release exactly once when it
// returns, whatever the outcome.
type Limiter struct {
	mu       sync.Mutex
	capacity uint32
	current  uint32
}

// NewLimiter creates a connection limiter admitting up to capacity
// concurrent sessions.
func NewLimiter(capacity uint32) *Limiter {
	return &Limiter{capacity: capacity}
}

// Acquire reserves a slot, reporting false when the cap is reached.
func (l *Limiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.capacity {
		return false
	}
	l.current++
	return true
}

// Release frees a slot, floored at zero.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current returns the number of open sessions.
func (l *Limiter) Current() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
