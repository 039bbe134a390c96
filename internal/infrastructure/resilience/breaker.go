package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// running it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxFailures is the number of consecutive failures in closed state
	// that trips the breaker open
	MaxFailures uint32
	// OpenTimeout is the period of the open state until a call is allowed
	// through as a half-open probe
	OpenTimeout time.Duration
	// HalfOpenMaxProbes is the number of probe calls admitted in half-open
	// state; that many consecutive successes close the breaker
	HalfOpenMaxProbes uint32
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker shields calls to a flaky upstream. Consecutive failures trip it
// open; while open every call is rejected immediately. After OpenTimeout
// the next call is admitted lazily as a probe rather than via a background
// timer.
type Breaker struct {
	name     string
	settings Settings

	mu              sync.Mutex
	state           State
	failureCount    uint32
	successCount    uint32
	probeCount      uint32
	lastFailureTime time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenMaxProbes == 0 {
		settings.HalfOpenMaxProbes = 1
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Execute runs fn if the breaker admits it. Admission and result recording
// each hold the lock across decision plus mutation, so concurrent callers
// never both act on a stale read.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			b.afterCall(false)
			panic(e)
		}
	}()

	err := fn()
	b.afterCall(err == nil)
	return err
}

// Reset forces the breaker closed with zero counters. Used for tests and
// administrative recovery.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceState(StateClosed, time.Now())
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.currentState(now) {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probeCount >= b.settings.HalfOpenMaxProbes {
			return ErrCircuitOpen
		}
		b.probeCount++
	}
	return nil
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.settings.HalfOpenMaxProbes {
			b.setState(StateClosed, now)
		}
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	switch state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.settings.MaxFailures {
			b.lastFailureTime = now
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.lastFailureTime = now
		b.setState(StateOpen, now)
	}
}

// currentState applies the lazy open -> half-open transition. Callers must
// hold b.mu. The first call that observes an expired open window becomes
// the first half-open probe.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.lastFailureTime) > b.settings.OpenTimeout {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

// setState changes the state and resets counters. Callers must hold b.mu.
func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	b.forceState(state, now)
}

// forceState applies the transition unconditionally, so Reset clears
// counters even when already closed. Callers must hold b.mu.
func (b *Breaker) forceState(state State, now time.Time) {
	prev := b.state
	b.state = state
	b.failureCount = 0
	b.successCount = 0
	b.probeCount = 0

	if prev != state && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
