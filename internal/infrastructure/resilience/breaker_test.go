package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		calls         []bool // true = success, false = failure
		expectedState State
	}{
		{
			name: "stays closed on successes",
			settings: Settings{
				MaxFailures: 3,
				OpenTimeout: time.Minute,
			},
			calls:         []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				MaxFailures: 3,
				OpenTimeout: time.Minute,
			},
			calls:         []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success resets failure count",
			settings: Settings{
				MaxFailures: 3,
				OpenTimeout: time.Minute,
			},
			calls:         []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)

			for _, success := range tt.calls {
				if success {
					_ = breaker.Execute(succeed)
				} else {
					_ = breaker.Execute(fail)
				}
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerOpenRejectsWithoutCalling(t *testing.T) {
	breaker := New("test", Settings{
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	})

	for i := 0; i < 2; i++ {
		err := breaker.Execute(fail)
		require.ErrorIs(t, err, errUpstream)
	}

	assert.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the wrapped function")
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	breaker := New("test", Settings{
		MaxFailures:       2,
		OpenTimeout:       20 * time.Millisecond,
		HalfOpenMaxProbes: 2,
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Execute(fail)
	}
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(30 * time.Millisecond)

	// First observation after the window transitions lazily.
	assert.Equal(t, StateHalfOpen, breaker.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, breaker.Execute(succeed))
	}
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{
		MaxFailures:       1,
		OpenTimeout:       10 * time.Millisecond,
		HalfOpenMaxProbes: 3,
	})

	_ = breaker.Execute(fail)
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(20 * time.Millisecond)

	err := breaker.Execute(fail)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerHalfOpenProbeCap(t *testing.T) {
	breaker := New("test", Settings{
		MaxFailures:       1,
		OpenTimeout:       10 * time.Millisecond,
		HalfOpenMaxProbes: 1,
	})

	_ = breaker.Execute(fail)
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = breaker.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// A second call while the single probe is in flight is rejected.
	err := breaker.Execute(succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
}

func TestBreakerReset(t *testing.T) {
	breaker := New("test", Settings{
		MaxFailures: 1,
		OpenTimeout: time.Minute,
	})

	_ = breaker.Execute(fail)
	assert.Equal(t, StateOpen, breaker.State())

	breaker.Reset()
	assert.Equal(t, StateClosed, breaker.State())
	assert.NoError(t, breaker.Execute(succeed))
}

func TestBreakerEndToEnd(t *testing.T) {
	breaker := New("test", Settings{
		MaxFailures:       2,
		OpenTimeout:       time.Second,
		HalfOpenMaxProbes: 1,
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Execute(fail)
	}

	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(1100 * time.Millisecond)

	require.NoError(t, breaker.Execute(succeed))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	breaker := New("test", Settings{
		MaxFailures: 2,
		OpenTimeout: 10 * time.Millisecond,
		OnStateChange: func(name string, from State, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	for i := 0; i < 2; i++ {
		_ = breaker.Execute(fail)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, transitions, "closed->open")
	assert.Contains(t, transitions, "open->half-open")
}
