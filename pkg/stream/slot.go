package stream

import (
	"context"
	"sync"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
)

// Slot serializes sessions for one chat view. Starting a new session cancels
// the previous one and waits for it to exit, so two sessions never write to
// the same view at once.
type Slot struct {
	client *Client

	mu      sync.Mutex
	current *Session
}

func NewSlot(client *Client) *Slot {
	return &Slot{client: client}
}

// Start replaces the active session. It must not be called from inside an
// event handler of the session it replaces.
func (sl *Slot) Start(ctx context.Context, req Request, handler Handler) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.stopLocked()

	s := sl.client.NewSession()
	if err := s.Start(ctx, req, handler); err != nil {
		return nil, err
	}
	sl.current = s
	return s, nil
}

// Current returns the most recently started session, if any
func (sl *Slot) Current() *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.current
}

// Stop cancels the active session and returns what it had produced
func (sl *Slot) Stop() (*chat.Message, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	s := sl.current
	if s == nil {
		return nil, false
	}
	sl.stopLocked()
	return s.PartialMessage()
}

// Close cancels the active session and waits for it
func (sl *Slot) Close() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.stopLocked()
	sl.current = nil
}

func (sl *Slot) stopLocked() {
	if sl.current == nil {
		return
	}
	sl.current.Cancel()
	sl.current.Wait()
}
