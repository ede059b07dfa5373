package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a finalized question/answer pair shown in the chat history
type Message struct {
	ID             string           `json:"id"`
	SessionID      string           `json:"session_id,omitempty"`
	Question       string           `json:"question"`
	Response       string           `json:"response"`
	Thinking       string           `json:"thinking,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	IsSecretPrompt bool             `json:"is_secret_prompt"`
	UsedChunkIDs   []string         `json:"used_chunk_ids"`
	Citations      []Citation       `json:"citations"`
	ChunkDetails   []map[string]any `json:"chunk_details"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}

// NewMessageID returns a locally generated message id
func NewMessageID() string {
	return uuid.NewString()
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Response) == ""
}

func (m Message) HasCitations() bool {
	return len(m.Citations) > 0
}

// DefaultCitationIDFields lists the citation keys tried, in order, when a
// server response omits used_chunk_ids
var DefaultCitationIDFields = []string{"chunk_id", "id", "chunkId"}

// ExtractChunkIDs maps each citation to the first non-empty value among
// fields, dropping citations that carry none of them
func ExtractChunkIDs(citations []Citation, fields []string) []string {
	if len(fields) == 0 {
		fields = DefaultCitationIDFields
	}

	ids := make([]string, 0, len(citations))
	for _, c := range citations {
		for _, f := range fields {
			if v := c.Field(f); v != "" {
				ids = append(ids, v)
				break
			}
		}
	}
	return ids
}
