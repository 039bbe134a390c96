package ratelimit

import (
	"math"
	"sync"
	"time"
)

// window is the per-identity sliding window state. Timestamps are kept in
// insertion order, which is chronological.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// SlidingWindowConfig configures a SlidingWindow limiter.
type SlidingWindowConfig struct {
	// Rate is the number of requests admitted per second of window.
	Rate float64
	// WindowSize is the trailing interval requests are counted in.
	WindowSize time.Duration
	// SweepInterval is how often idle windows are evicted.
	SweepInterval time.Duration
	// IdleExpiry is how long an empty or stale window survives before
	// eviction.
	IdleExpiry time.Duration
}

// SlidingWindow is a keyed sliding-window rate limiter. Each identity
// gets an independent window created lazily on first use.
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	idleExpiry time.Duration

	mu      sync.RWMutex
	windows map[string]*window

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSlidingWindow creates a sliding window limiter and starts its sweep
// goroutine.
func NewSlidingWindow(cfg SlidingWindowConfig) *SlidingWindow {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleExpiry <= 0 {
		cfg.IdleExpiry = 3 * time.Minute
	}
	// Never evict state that is still inside the counting interval.
	if cfg.IdleExpiry < cfg.WindowSize {
		cfg.IdleExpiry = cfg.WindowSize
	}

	sw := &SlidingWindow{
		limit:      int(math.Floor(cfg.Rate * cfg.WindowSize.Seconds())),
		windowSize: cfg.WindowSize,
		idleExpiry: cfg.IdleExpiry,
		windows:    make(map[string]*window),
		stopCh:     make(chan struct{}),
	}
	go sw.sweep(cfg.SweepInterval)
	return sw
}

// Allow reports whether one request for key is admitted.
func (sw *SlidingWindow) Allow(key string) bool {
	return sw.AllowN(key, 1)
}

// AllowN reports whether n requests for key are admitted, recording their
// timestamps on admission.
func (sw *SlidingWindow) AllowN(key string, n int) bool {
	w := sw.get(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.prune(now.Add(-sw.windowSize))

	if len(w.timestamps)+n > sw.limit {
		return false
	}
	for i := 0; i < n; i++ {
		w.timestamps = append(w.timestamps, now)
	}
	return true
}

// Stop terminates the sweep goroutine. Idempotent.
func (sw *SlidingWindow) Stop() {
	sw.stopOnce.Do(func() { close(sw.stopCh) })
}

func (sw *SlidingWindow) get(key string) *window {
	sw.mu.RLock()
	w, ok := sw.windows[key]
	sw.mu.RUnlock()
	if ok {
		return w
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if w, ok := sw.windows[key]; ok {
		return w
	}
	w = &window{}
	sw.windows[key] = w
	return w
}

// prune drops timestamps at or before cutoff. Callers must hold w.mu.
// Timestamps are chronological, so the scan stops at the first survivor.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

// sweep periodically evicts windows that are empty, or whose newest
// timestamp already fell out of the window, beyond the idle expiry. A
// window holding a timestamp still inside the interval is never evicted.
func (sw *SlidingWindow) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stopCh:
			return
		case <-ticker.C:
			sw.evictIdle(time.Now())
		}
	}
}

func (sw *SlidingWindow) evictIdle(now time.Time) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for key, w := range sw.windows {
		w.mu.Lock()
		stale := len(w.timestamps) == 0 ||
			now.Sub(w.timestamps[len(w.timestamps)-1]) > sw.idleExpiry
		w.mu.Unlock()

		if stale {
			delete(sw.windows, key)
		}
	}
}

// size reports the number of tracked identities. Used by tests.
func (sw *SlidingWindow) size() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return len(sw.windows)
}
