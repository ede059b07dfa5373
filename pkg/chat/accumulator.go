package chat

import (
	"strings"
	"time"
)

// Accumulator owns the buffers of one streamed answer. A fresh accumulator
// is created for every stream so nothing leaks between sessions.
// It is not safe for concurrent use.
type Accumulator struct {
	answer   strings.Builder
	thinking strings.Builder
	metadata map[string]any

	SessionID  string
	MessageID  string
	ChunkCount int
	StartTime  time.Time
	LastUpdate time.Time
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	now := time.Now()
	return &Accumulator{
		metadata:   make(map[string]any),
		StartTime:  now,
		LastUpdate: now,
	}
}

// AddChunk appends an answer delta and returns the answer so far
func (a *Accumulator) AddChunk(delta string) string {
	a.answer.WriteString(delta)
	a.ChunkCount++
	a.LastUpdate = time.Now()
	return a.answer.String()
}

// AddThinking appends a thinking delta and returns the thinking so far
func (a *Accumulator) AddThinking(delta string) string {
	a.thinking.WriteString(delta)
	a.LastUpdate = time.Now()
	return a.thinking.String()
}

// MergeMetadata overlays fields onto the running metadata, picking up the
// session and message ids in either casing
func (a *Accumulator) MergeMetadata(fields map[string]any) {
	for k, v := range fields {
		a.metadata[k] = v
	}

	if id := firstString(fields, "session_id", "sessionId"); id != "" {
		a.SessionID = id
	}
	if id := firstString(fields, "message_id", "messageId"); id != "" {
		a.MessageID = id
	}
	a.LastUpdate = time.Now()
}

func (a *Accumulator) Answer() string {
	return a.answer.String()
}

func (a *Accumulator) Thinking() string {
	return a.thinking.String()
}

// Metadata returns a shallow copy of the merged metadata
func (a *Accumulator) Metadata() map[string]any {
	out := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		out[k] = v
	}
	return out
}

// Citations decodes the citations carried in the metadata
func (a *Accumulator) Citations() []Citation {
	return CitationsFromAny(a.metadata["citations"])
}

// UsedChunkIDs prefers the ids the server listed and otherwise derives them
// from the citations using idFields
func (a *Accumulator) UsedChunkIDs(idFields []string) []string {
	for _, key := range []string{"used_chunk_ids", "usedChunkIds"} {
		raw, ok := a.metadata[key]
		if !ok || raw == nil {
			continue
		}
		if ids := stringSlice(raw); ids != nil {
			return ids
		}
	}
	return ExtractChunkIDs(a.Citations(), idFields)
}

// ChunkDetails returns the per-chunk detail objects, if the server sent any
func (a *Accumulator) ChunkDetails() []map[string]any {
	for _, key := range []string{"chunk_details", "chunkDetails"} {
		items, ok := a.metadata[key].([]any)
		if !ok {
			continue
		}
		details := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				details = append(details, m)
			}
		}
		return details
	}
	return nil
}

// Build turns the accumulated state into a history message. response and
// thinking are the display forms of the buffers, already formatted.
func (a *Accumulator) Build(question, response, thinking string, isSecretPrompt bool, idFields []string) *Message {
	id := a.MessageID
	if id == "" {
		id = NewMessageID()
	}

	return &Message{
		ID:             id,
		SessionID:      a.SessionID,
		Question:       question,
		Response:       response,
		Thinking:       thinking,
		Timestamp:      time.Now(),
		IsSecretPrompt: isSecretPrompt,
		UsedChunkIDs:   a.UsedChunkIDs(idFields),
		Citations:      a.Citations(),
		ChunkDetails:   a.ChunkDetails(),
		Metadata:       a.Metadata(),
	}
}

// Stats reports progress of the stream so far
func (a *Accumulator) Stats() StreamStats {
	return StreamStats{
		SessionID:      a.SessionID,
		ChunkCount:     a.ChunkCount,
		AnswerLength:   a.answer.Len(),
		ThinkingLength: a.thinking.Len(),
		StartTime:      a.StartTime,
		LastUpdate:     a.LastUpdate,
		Duration:       a.LastUpdate.Sub(a.StartTime),
	}
}

// StreamStats provides statistics about a streaming answer
type StreamStats struct {
	SessionID      string
	ChunkCount     int
	AnswerLength   int
	ThinkingLength int
	StartTime      time.Time
	LastUpdate     time.Time
	Duration       time.Duration
}

// SanitizeStreamContent drops invalid UTF-8 left by a stream cut mid-rune
// and trailing blanks
func SanitizeStreamContent(content string) string {
	return strings.TrimRight(strings.ToValidUTF8(content, ""), " \t")
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
