// Package summary produces incremental event sequences from aggregated
// upstream data. It is the producer side of the streaming surface: it
// fetches through the degradation service and emits the result as a
// finite sequence of token events suitable for stream.Session.StreamFrom
// or a WebSocket forwarder.
package summary

import (
	"context"
	"strings"

	"github.com/quillfeed/backend/internal/degrade"
	"github.com/quillfeed/backend/internal/stream"
)

// DefaultChunkSize is the payload size of one token event.
const DefaultChunkSize = 256

// Producer turns degraded fetch outcomes into event sequences.
type Producer struct {
	degrader  *degrade.Service
	chunkSize int
}

// NewProducer creates a producer over the degradation service.
func NewProducer(degrader *degrade.Service, chunkSize int) *Producer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Producer{degrader: degrader, chunkSize: chunkSize}
}

// Events fetches key through the stale-while-revalidate policy and emits
// the payload as token events, closing the channel when the sequence is
// exhausted. done aborts production early when the consumer goes away,
// so a closed session never strands this goroutine.
func (p *Producer) Events(ctx context.Context, done <-chan struct{}, key string, fetch degrade.Fetcher) <-chan stream.Event {
	events := make(chan stream.Event, 16)

	go func() {
		defer close(events)

		outcome, err := p.degrader.AsyncRefresh(ctx, key, 0, fetch)
		if err != nil {
			emit(events, done, stream.Event{Type: stream.EventError, Data: "source unavailable"})
			return
		}

		if outcome.Degraded {
			if !emit(events, done, stream.Event{Type: "degraded", Data: "true"}) {
				return
			}
		}

		for _, chunk := range chunks(outcome.Data, p.chunkSize) {
			if !emit(events, done, stream.Event{Type: stream.EventToken, Data: chunk}) {
				return
			}
		}
	}()

	return events
}

func emit(events chan<- stream.Event, done <-chan struct{}, ev stream.Event) bool {
	select {
	case events <- ev:
		return true
	case <-done:
		return false
	}
}

// chunks splits the payload into single-line pieces of at most size
// bytes. Event payloads are one line each, so embedded newlines are
// flattened.
func chunks(data []byte, size int) []string {
	flat := strings.ReplaceAll(string(data), "\n", " ")

	var out []string
	for len(flat) > size {
		out = append(out, flat[:size])
		flat = flat[size:]
	}
	if len(flat) > 0 {
		out = append(out, flat)
	}
	return out
}
