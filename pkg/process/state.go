// Package process names the phase a chat request is in, as the user sees it
package process

import "github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"

// State represents the current phase of a chat request
type State string

const (
	// StateIdle indicates no request in flight
	StateIdle State = ""
	// StateSending indicates the question is on its way to the server
	StateSending State = "sending"
	// StateSearching indicates the server is working and reporting status
	StateSearching State = "searching"
	// StateThinking indicates reasoning text is arriving
	StateThinking State = "thinking"
	// StateReceiving indicates answer text is arriving
	StateReceiving State = "receiving"
	// StateDone indicates the request ended, however it ended
	StateDone State = "done"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// GetIcon returns the appropriate icon for a given process state
func (s State) GetIcon() string {
	switch s {
	case StateSending:
		return "↑"
	case StateSearching:
		return "🔎"
	case StateThinking:
		return "🤔"
	case StateReceiving:
		return "↓"
	default:
		return ""
	}
}

// GetDisplayName returns a human-readable name for the state
func (s State) GetDisplayName() string {
	switch s {
	case StateSending:
		return "Sending question"
	case StateSearching:
		return "Searching documents"
	case StateThinking:
		return "Thinking"
	case StateReceiving:
		return "Receiving answer"
	case StateDone:
		return "Done"
	case StateIdle:
		return "Idle"
	default:
		return ""
	}
}

// FromEvent returns the phase an event moves a request into. Metadata
// events do not change the phase, so ok is false for them.
func FromEvent(t stream.EventType) (State, bool) {
	switch t {
	case stream.EventStatus:
		return StateSearching, true
	case stream.EventThinking:
		return StateThinking, true
	case stream.EventChunk:
		return StateReceiving, true
	case stream.EventDone, stream.EventError:
		return StateDone, true
	default:
		return "", false
	}
}

// Label is the icon and display name, e.g. "↓ Receiving answer"
func (s State) Label() string {
	if icon := s.GetIcon(); icon != "" {
		return icon + " " + s.GetDisplayName()
	}
	return s.GetDisplayName()
}
