package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// History is the ordered list of finalized chat messages for one folder.
// When filePath is set every mutation is mirrored to a JSON cache file.
type History struct {
	Messages []*Message `json:"messages"`
	mu       sync.RWMutex
	filePath string
}

// NewHistory creates a history, loading the cache file when it exists.
// An empty filePath keeps the history in memory only.
func NewHistory(filePath string) (*History, error) {
	h := &History{
		Messages: make([]*Message, 0),
		filePath: filePath,
	}

	if filePath == "" {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	if _, err := os.Stat(filePath); err == nil {
		if err := h.Load(); err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	}

	return h, nil
}

// Add appends a message to the history
func (h *History) Add(msg *Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Messages = append(h.Messages, msg)
	return h.save()
}

// Get returns the message with the given id
func (h *History) Get(id string) (*Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, m := range h.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Remove deletes the message with the given id, reporting whether it existed
func (h *History) Remove(id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, m := range h.Messages {
		if m.ID == id {
			h.Messages = append(h.Messages[:i], h.Messages[i+1:]...)
			return true, h.save()
		}
	}
	return false, nil
}

// Replace swaps the whole history, e.g. after fetching it from the server
func (h *History) Replace(msgs []*Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Messages = make([]*Message, len(msgs))
	copy(h.Messages, msgs)
	return h.save()
}

// GetMessages returns a copy of all messages in order
func (h *History) GetMessages() []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msgs := make([]*Message, len(h.Messages))
	copy(msgs, h.Messages)
	return msgs
}

// Len returns the number of messages
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Messages)
}

// Clear clears the history
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Messages = make([]*Message, 0)
	return h.save()
}

// GetLastN returns the last N messages from history
func (h *History) GetLastN(n int) []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || len(h.Messages) == 0 {
		return []*Message{}
	}

	if n > len(h.Messages) {
		n = len(h.Messages)
	}

	result := make([]*Message, n)
	copy(result, h.Messages[len(h.Messages)-n:])
	return result
}

// Save writes the history to its cache file
func (h *History) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.save()
}

// save expects h.mu to be held
func (h *History) save() error {
	if h.filePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := writeCacheFile(h.filePath, data); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// Load loads the history from its cache file
func (h *History) Load() error {
	data, err := os.ReadFile(h.filePath)
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := json.Unmarshal(data, h); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return nil
}
