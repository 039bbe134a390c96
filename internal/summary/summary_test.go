package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfeed/backend/internal/degrade"
	"github.com/quillfeed/backend/internal/infrastructure/resilience"
	"github.com/quillfeed/backend/internal/stream"
)

func newTestProducer(chunkSize int) (*Producer, *degrade.MemoryCache) {
	cache := degrade.NewMemoryCache(time.Hour)
	breakers := resilience.NewManager(resilience.Settings{MaxFailures: 2, OpenTimeout: time.Minute})
	degrader := degrade.NewService(cache, breakers, degrade.Config{FastWindow: time.Second}, nil)
	return NewProducer(degrader, chunkSize), cache
}

func collect(events <-chan stream.Event) []stream.Event {
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestEventsEmitTokenChunks(t *testing.T) {
	p, cache := newTestProducer(4)
	defer cache.Stop()

	never := make(chan struct{})
	events := p.Events(context.Background(), never, "feed:a", func(ctx context.Context) ([]byte, error) {
		return []byte("abcdefghij"), nil
	})

	got := collect(events)
	require.Len(t, got, 3)
	assert.Equal(t, stream.Event{Type: stream.EventToken, Data: "abcd"}, got[0])
	assert.Equal(t, stream.Event{Type: stream.EventToken, Data: "efgh"}, got[1])
	assert.Equal(t, stream.Event{Type: stream.EventToken, Data: "ij"}, got[2])
}

func TestEventsFlattenNewlines(t *testing.T) {
	p, cache := newTestProducer(64)
	defer cache.Stop()

	never := make(chan struct{})
	events := p.Events(context.Background(), never, "feed:a", func(ctx context.Context) ([]byte, error) {
		return []byte("line one\nline two"), nil
	})

	got := collect(events)
	require.Len(t, got, 1)
	assert.Equal(t, "line one line two", got[0].Data)
}

func TestEventsMarkDegraded(t *testing.T) {
	p, cache := newTestProducer(64)
	defer cache.Stop()

	require.NoError(t, cache.Set("feed:a", []byte("cached"), time.Minute))

	never := make(chan struct{})
	events := p.Events(context.Background(), never, "feed:a", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})

	got := collect(events)
	require.Len(t, got, 2)
	assert.Equal(t, "degraded", got[0].Type)
	assert.Equal(t, stream.EventToken, got[1].Type)
	assert.Equal(t, "cached", got[1].Data)
}

func TestEventsErrorWhenNothingToServe(t *testing.T) {
	p, cache := newTestProducer(64)
	defer cache.Stop()

	never := make(chan struct{})
	events := p.Events(context.Background(), never, "feed:a", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})

	got := collect(events)
	require.Len(t, got, 1)
	assert.Equal(t, stream.EventError, got[0].Type)
}

func TestEventsStopWhenConsumerGone(t *testing.T) {
	p, cache := newTestProducer(1)
	defer cache.Stop()

	done := make(chan struct{})
	close(done)

	events := p.Events(context.Background(), done, "feed:a", func(ctx context.Context) ([]byte, error) {
		return make([]byte, 1024), nil
	})

	// The channel buffer may hold a few events, but the producer must
	// terminate and close rather than block on a full channel forever.
	assert.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)
}
