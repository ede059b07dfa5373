package stream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is returned by Start for requests that fail validation
	ErrInvalidRequest = errors.New("invalid stream request")
	// ErrSessionStarted is returned when Start is called twice on one session
	ErrSessionStarted = errors.New("session already started")
)

// Request is one user submission to the intelligent chat endpoint.
// Exactly one of Question and SecretPromptID is set.
type Request struct {
	FolderID       string
	Question       string
	SecretPromptID string
	// SecretPromptName labels the history entry of a secret prompt run
	SecretPromptName string
	SessionID        string
	ModelName        string
}

// IsSecretPrompt reports whether the request runs a predefined analysis template
func (r Request) IsSecretPrompt() bool {
	return r.SecretPromptID != ""
}

// Validate checks the request preconditions
func (r Request) Validate() error {
	if strings.TrimSpace(r.FolderID) == "" {
		return fmt.Errorf("%w: folder id is required", ErrInvalidRequest)
	}

	hasQuestion := strings.TrimSpace(r.Question) != ""
	if hasQuestion == r.IsSecretPrompt() {
		return fmt.Errorf("%w: exactly one of question or secret prompt id must be set", ErrInvalidRequest)
	}

	if strings.TrimSpace(r.ModelName) == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidRequest)
	}
	return nil
}

// displayQuestion is what the history shows as the user's side of the exchange
func (r Request) displayQuestion() string {
	if !r.IsSecretPrompt() {
		return strings.TrimSpace(r.Question)
	}
	if r.SecretPromptName != "" {
		return r.SecretPromptName
	}
	return r.SecretPromptID
}

type requestBody struct {
	Question  string `json:"question,omitempty"`
	SecretID  string `json:"secret_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	LLMName   string `json:"llm_name"`
}

func (r Request) body() requestBody {
	b := requestBody{
		SessionID: r.SessionID,
		LLMName:   r.ModelName,
	}
	if r.IsSecretPrompt() {
		b.SecretID = r.SecretPromptID
	} else {
		b.Question = strings.TrimSpace(r.Question)
	}
	return b
}
