// Package docs talks to the document service's plain JSON endpoints:
// folders, processing status, chat history and the document viewer.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/msgpack"
)

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("document service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("document service returned status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL          string
	token            string
	userAgent        string
	citationIDFields []string
	httpClient       *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		token:            token,
		userAgent:        "jurinex-cli",
		citationIDFields: chat.DefaultCitationIDFields,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientFromConfig creates a client from application settings
func NewClientFromConfig(cfg *config.Config) *Client {
	c := NewClient(cfg.API.BaseURL, cfg.API.Token)
	if cfg.API.Timeout > 0 {
		c.httpClient.Timeout = cfg.API.Timeout
	}
	if len(cfg.Chat.CitationIDFields) > 0 {
		c.citationIDFields = cfg.Chat.CitationIDFields
	}
	return c
}

// ListFolders returns the user's folders
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var resp FoldersResponse
	if err := c.do(ctx, http.MethodGet, "/docs/folders", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return resp.Folders, nil
}

// CreateFolder creates a folder with the given name
func (c *Client) CreateFolder(ctx context.Context, name string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name cannot be empty")
	}

	var resp createFolderResponse
	if err := c.do(ctx, http.MethodPost, "/docs/create-folder", createFolderRequest{FolderName: name}, &resp); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return &resp.Folder, nil
}

// ProcessingStatus reports how far document processing has got for a folder
func (c *Client) ProcessingStatus(ctx context.Context, folderID string) (*ProcessingStatus, error) {
	var status ProcessingStatus
	if err := c.do(ctx, http.MethodGet, folderPath(folderID, "status"), nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get processing status: %w", err)
	}
	if status.FolderID == "" {
		status.FolderID = folderID
	}
	return &status, nil
}

// WaitForProcessing polls the processing status until it is done or ctx ends.
// onUpdate, when set, sees every status fetched.
func (c *Client) WaitForProcessing(ctx context.Context, folderID string, interval time.Duration, onUpdate func(*ProcessingStatus)) (*ProcessingStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.ProcessingStatus(ctx, folderID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(status)
		}
		if status.Done() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ChatHistory returns the stored exchanges of a folder, oldest first
func (c *Client) ChatHistory(ctx context.Context, folderID string) ([]*chat.Message, error) {
	var resp chatHistoryResponse
	if err := c.do(ctx, http.MethodGet, folderPath(folderID, "chats"), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}

	msgs := make([]*chat.Message, 0, len(resp.Chats))
	for _, r := range resp.Chats {
		msgs = append(msgs, r.toMessage(c.citationIDFields))
	}
	return msgs, nil
}

// DeleteChat deletes one stored exchange
func (c *Client) DeleteChat(ctx context.Context, folderID, chatID string) error {
	if err := c.do(ctx, http.MethodDelete, folderPath(folderID, "chats", chatID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", chatID, err)
	}
	return nil
}

// DeleteAllChats deletes every stored exchange of a folder
func (c *Client) DeleteAllChats(ctx context.Context, folderID string) error {
	if err := c.do(ctx, http.MethodDelete, folderPath(folderID, "chats"), nil, nil); err != nil {
		return fmt.Errorf("failed to delete chats: %w", err)
	}
	return nil
}

// ViewerURL resolves a cited file and page to a URL a browser can open
func (c *Client) ViewerURL(ctx context.Context, fileID string, page int) (string, error) {
	var resp viewerURLResponse
	path := "/docs/file/" + url.PathEscape(fileID) + "/view"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to resolve viewer url: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("failed to resolve viewer url: empty url for file %s", fileID)
	}

	if page > 0 {
		return fmt.Sprintf("%s#page=%d", resp.URL, page), nil
	}
	return resp.URL, nil
}

func folderPath(folderID string, parts ...string) string {
	segments := []string{"/docs", url.PathEscape(folderID)}
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", ContentTypeJSON+", "+ContentTypeMsgPack)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", ContentTypeJSON)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		logger.WithComponent("docs").Debug("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Message)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return decode(resp, out)
}

// decode reads JSON or msgpack depending on the response content type
func decode(resp *http.Response, out any) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), ContentTypeMsgPack) {
		dec := msgpack.NewDecoder(resp.Body)
		dec.SetCustomStructTag("json")
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("failed to decode msgpack response: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}

	var errorResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &errorResp) == nil {
		if errorResp.Message != "" {
			return errorResp.Message
		}
		if errorResp.Error != "" {
			return errorResp.Error
		}
	}
	return strings.TrimSpace(string(data))
}
