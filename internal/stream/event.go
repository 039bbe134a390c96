package stream

// Well-known event types. An empty type produces a bare data-only frame.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// Event is one item of a producer-side sequence.
type Event struct {
	// Type is the optional event-type line. EventDone and EventError are
	// terminal: StreamFrom forwards them and stops consuming.
	Type string
	// Data is the payload line.
	Data string
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
