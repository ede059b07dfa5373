package headless

import (
	"sync"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/process"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"
)

// streamHandler prints progress while a session streams. The answer itself
// is held back until the done event so it can be formatted and animated.
type streamHandler struct {
	out          *Output
	showThinking bool

	mu         sync.Mutex
	lastStatus string
	phase      process.State
	thinking   bool
	terminal   *stream.Event
}

func newStreamHandler(out *Output, showThinking bool) *streamHandler {
	return &streamHandler{out: out, showThinking: showThinking}
}

func (h *streamHandler) handle(ev stream.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	phase, changed := process.FromEvent(ev.Type)
	changed = changed && phase != h.phase
	if changed {
		h.phase = phase
	}

	switch ev.Type {
	case stream.EventStatus:
		key := ev.Status + "\x00" + ev.Message
		if key == h.lastStatus {
			return
		}
		h.lastStatus = key
		h.out.Status(ev.Status, ev.Message)

	case stream.EventThinking:
		h.thinking = true
		if h.showThinking {
			h.out.Thinking(ev.Delta)
		}

	case stream.EventChunk:
		if changed {
			h.out.Phase(phase)
		}

	case stream.EventDone, stream.EventError:
		e := ev
		h.terminal = &e
	}
}

// result returns the terminal event, if one arrived
func (h *streamHandler) result() (stream.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal == nil {
		return stream.Event{}, false
	}
	return *h.terminal, true
}

func (h *streamHandler) sawThinking() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.thinking
}
