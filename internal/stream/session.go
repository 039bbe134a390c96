package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillfeed/backend/internal/infrastructure/logging"
)

var (
	// ErrSessionClosed is returned by Send after Close.
	ErrSessionClosed = errors.New("streaming session is closed")
	// ErrClientDisconnected is returned by Send once the transport's
	// cancellation signal has fired. Producers should stop producing;
	// this is normal termination, not an application error.
	ErrClientDisconnected = errors.New("client disconnected")
	// ErrStreamingUnsupported is returned when the sink cannot flush.
	ErrStreamingUnsupported = errors.New("response writer does not support streaming")
)

// Session is one server-push stream to one client. Lifecycle is
// Open -> Closed, closed exactly once; every send after that fails with
// ErrSessionClosed.
type Session struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	logger  *logging.Logger

	mu     sync.Mutex // serializes frame writes
	closed atomic.Bool
	once   sync.Once
	done   chan struct{}

	onClose func()
}

// New opens a streaming session over w, watching ctx for client
// disconnect. It writes the event-stream preamble headers immediately.
func New(ctx context.Context, w http.ResponseWriter, logger *logging.Logger) (*Session, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	s := &Session{
		id:      uuid.New().String(),
		w:       w,
		flusher: flusher,
		ctx:     ctx,
		logger:  logger,
		done:    make(chan struct{}),
	}

	// Decouple disconnect detection from the producer's control flow: the
	// watcher force-closes the session as soon as the client goes away.
	go s.watch()

	return s, nil
}

// OnClose registers a callback invoked once when the session closes.
// Must be called before the session is shared across goroutines.
func (s *Session) OnClose(fn func()) {
	s.onClose = fn
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Send writes one event frame and flushes it. The frame is exactly an
// optional "event: <type>" line, one "data: <payload>" line, and a blank
// line terminator; external clients parse this format.
func (s *Session) Send(eventType, payload string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.ctx.Err() != nil {
		s.Close()
		return ErrClientDisconnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: a concurrent Close must win.
	if s.closed.Load() {
		return ErrSessionClosed
	}

	var err error
	if eventType != "" {
		_, err = fmt.Fprintf(s.w, "event: %s\n", eventType)
	}
	if err == nil {
		_, err = fmt.Fprintf(s.w, "data: %s\n\n", payload)
	}
	if err != nil {
		s.logger.Debug("stream write failed", zap.String("session", s.id), zap.Error(err))
		s.closeLocked()
		return fmt.Errorf("%w: %v", ErrClientDisconnected, err)
	}

	s.flusher.Flush()
	return nil
}

// StreamFrom consumes events until the channel is exhausted, a terminal
// event is forwarded, or the session closes. Closure and disconnect are
// normal termination. A plain-content sequence that runs out gets a
// terminal done event appended automatically.
func (s *Session) StreamFrom(events <-chan Event) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Normal exhaustion of a plain-content sequence.
				if err := s.Send(EventDone, ""); err != nil && !terminalSendErr(err) {
					return err
				}
				return nil
			}

			if err := s.Send(ev.Type, ev.Data); err != nil {
				if terminalSendErr(err) {
					return nil
				}
				return err
			}
			if ev.Terminal() {
				return nil
			}

		case <-s.done:
			return nil
		}
	}
}

// Close closes the session. Idempotent: every call after the first is a
// no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// closeLocked performs the close under s.mu.
func (s *Session) closeLocked() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done exposes the closure signal.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) watch() {
	select {
	case <-s.ctx.Done():
		s.logger.Debug("client disconnected", zap.String("session", s.id))
		s.Close()
	case <-s.done:
	}
}

func terminalSendErr(err error) bool {
	return errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrClientDisconnected)
}
