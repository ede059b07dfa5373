package stream

import "github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"

// EventType discriminates the events a session emits
type EventType string

const (
	EventMetadata EventType = "metadata"
	EventStatus   EventType = "status"
	EventThinking EventType = "thinking"
	EventChunk    EventType = "chunk"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one UI-relevant state transition of a session.
// Done and Error are terminal; nothing follows them.
type Event struct {
	Type EventType

	// Status carries the status code of a status event
	Status string
	// Message is the human readable text of a status or error event
	Message string

	// Delta is the new text of a thinking or chunk event; Text is the
	// accumulated buffer including Delta
	Delta string
	Text  string

	SessionID string
	MessageID string
	Metadata  map[string]any

	// ChatMessage is set on the done event only
	ChatMessage *chat.Message
	// Err is set on the error event only
	Err error
}

// IsTerminal reports whether no further events follow e
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Handler receives events serially from the session goroutine
type Handler func(Event)

// State is the lifecycle state of a session
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFinalized
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the state machine has stopped
func (s State) IsTerminal() bool {
	return s == StateFinalized || s == StateCancelled || s == StateErrored
}

// Formatter classifies and formats the finalized answer buffer
type Formatter interface {
	IsStructured(text string) bool
	RenderStructured(text string) string
	ToPlainText(text string) string
}
