package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Citation points at the source-document excerpt used to ground an answer.
// The backend is inconsistent about key names, so the raw object is kept.
type Citation struct {
	ChunkID  string
	FileID   string
	FileName string
	Page     int
	Text     string
	Raw      map[string]any
}

// CitationFromMap builds a citation from a decoded JSON object
func CitationFromMap(m map[string]any) Citation {
	c := Citation{Raw: m}
	c.ChunkID = firstString(m, "chunk_id", "chunkId", "id")
	c.FileID = firstString(m, "file_id", "fileId", "document_id")
	c.FileName = firstString(m, "filename", "file_name", "fileName", "source")
	c.Text = firstString(m, "text", "snippet", "content")
	if p, err := strconv.Atoi(firstString(m, "page", "page_number", "pageNumber")); err == nil {
		c.Page = p
	}
	return c
}

// Field returns the raw value stored under name as a string
func (c Citation) Field(name string) string {
	if c.Raw == nil {
		switch name {
		case "chunk_id", "chunkId", "id":
			return c.ChunkID
		case "file_id", "fileId":
			return c.FileID
		}
		return ""
	}
	return stringify(c.Raw[name])
}

func (c *Citation) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode citation: %w", err)
	}
	*c = CitationFromMap(m)
	return nil
}

func (c Citation) MarshalJSON() ([]byte, error) {
	if c.Raw != nil {
		return json.Marshal(c.Raw)
	}
	return json.Marshal(map[string]any{
		"chunk_id": c.ChunkID,
		"file_id":  c.FileID,
		"filename": c.FileName,
		"page":     c.Page,
		"text":     c.Text,
	})
}

// CitationsFromAny converts a decoded JSON array into citations, skipping
// entries that are not objects
func CitationsFromAny(v any) []Citation {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	citations := make([]Citation, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			citations = append(citations, CitationFromMap(m))
		}
	}
	return citations
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return fmt.Sprint(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
