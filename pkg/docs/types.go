package docs

import (
	"fmt"
	"strings"
	"time"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
)

// Folder is a case folder holding uploaded documents
type Folder struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
	DocumentCount int       `json:"document_count"`
}

// FoldersResponse represents the response from the folder listing
type FoldersResponse struct {
	Folders []Folder `json:"folders"`
}

type createFolderRequest struct {
	FolderName string `json:"folderName"`
}

type createFolderResponse struct {
	Folder Folder `json:"folder"`
}

// DocumentStatus is the processing state of one uploaded document
type DocumentStatus struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// ProcessingStatus summarizes document processing for a folder
type ProcessingStatus struct {
	FolderID  string           `json:"folder_id"`
	Status    string           `json:"status"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Documents []DocumentStatus `json:"documents"`
}

// Done reports whether no document is still being processed
func (p ProcessingStatus) Done() bool {
	switch strings.ToLower(p.Status) {
	case "completed", "processed", "failed":
		return true
	}
	return p.Total > 0 && p.Processed >= p.Total
}

// Summary is a one-line progress description
func (p ProcessingStatus) Summary() string {
	if p.Total == 0 {
		return p.Status
	}
	return fmt.Sprintf("%s (%d/%d documents)", p.Status, p.Processed, p.Total)
}

// chatRecord is a stored exchange as the server returns it
type chatRecord struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"session_id"`
	Question     string           `json:"question"`
	Response     string           `json:"response"`
	Answer       string           `json:"answer"`
	PromptLabel  string           `json:"prompt_label"`
	SecretPrompt bool             `json:"used_secret_prompt"`
	CreatedAt    time.Time        `json:"created_at"`
	UsedChunkIDs []string         `json:"used_chunk_ids"`
	Citations    []map[string]any `json:"citations"`
	ChunkDetails []map[string]any `json:"chunk_details"`
}

type chatHistoryResponse struct {
	Chats []chatRecord `json:"chats"`
}

// toMessage converts a stored record, deriving chunk ids the same way a
// live stream does when the server omitted them
func (r chatRecord) toMessage(idFields []string) *chat.Message {
	response := r.Response
	if response == "" {
		response = r.Answer
	}

	question := r.Question
	if r.SecretPrompt && r.PromptLabel != "" {
		question = r.PromptLabel
	}

	citations := make([]chat.Citation, 0, len(r.Citations))
	for _, c := range r.Citations {
		citations = append(citations, chat.CitationFromMap(c))
	}

	used := r.UsedChunkIDs
	if len(used) == 0 {
		used = chat.ExtractChunkIDs(citations, idFields)
	}

	return &chat.Message{
		ID:             r.ID,
		SessionID:      r.SessionID,
		Question:       question,
		Response:       response,
		Timestamp:      r.CreatedAt,
		IsSecretPrompt: r.SecretPrompt,
		UsedChunkIDs:   used,
		Citations:      citations,
		ChunkDetails:   r.ChunkDetails,
	}
}

type viewerURLResponse struct {
	URL string `json:"url"`
}
