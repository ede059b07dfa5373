package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/format"
)

const defaultThinkingDebounce = 10 * time.Millisecond

// StatusError is returned when the stream endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stream request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("stream request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client opens streaming chat sessions against the document service
type Client struct {
	baseURL          string
	token            string
	httpClient       *http.Client
	formatter        Formatter
	thinkingDebounce time.Duration
	citationIDFields []string
}

// Option configures a Client
type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithFormatter(f Formatter) Option {
	return func(c *Client) { c.formatter = f }
}

// WithThinkingDebounce sets the coalescing window for thinking deltas; zero
// emits every delta as it arrives
func WithThinkingDebounce(d time.Duration) Option {
	return func(c *Client) { c.thinkingDebounce = d }
}

// WithCitationIDFields sets the citation keys used to derive used chunk ids
func WithCitationIDFields(fields []string) Option {
	return func(c *Client) { c.citationIDFields = fields }
}

// NewClient creates a streaming client for the service at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		httpClient:       newStreamingHTTPClient(30 * time.Second),
		formatter:        format.Default{},
		thinkingDebounce: defaultThinkingDebounce,
		citationIDFields: chat.DefaultCitationIDFields,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a streaming client from application settings
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(cfg.API.BaseURL,
		WithToken(cfg.API.Token),
		WithHTTPClient(newStreamingHTTPClient(cfg.API.Timeout)),
		WithThinkingDebounce(cfg.Chat.ThinkingDebounce),
		WithCitationIDFields(cfg.Chat.CitationIDFields),
	)
}

// newStreamingHTTPClient bounds connection setup and time to first byte but
// not the body, since an answer may stream for minutes
func newStreamingHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// NewSession returns a fresh, idle session
func (c *Client) NewSession() *Session {
	return newSession(c)
}

// Start is shorthand for NewSession followed by Session.Start
func (c *Client) Start(ctx context.Context, req Request, handler Handler) (*Session, error) {
	s := c.NewSession()
	if err := s.Start(ctx, req, handler); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) streamURL(folderID string) string {
	return fmt.Sprintf("%s/docs/%s/intelligent-chat/stream", c.baseURL, url.PathEscape(folderID))
}

// open issues the streaming POST and returns the response once headers arrive
func (c *Client) open(ctx context.Context, req Request) (*http.Response, error) {
	reqBody, err := json.Marshal(req.body())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(req.FolderID), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	return resp, nil
}

// readErrorMessage prefers the error/message field of a JSON error body and
// falls back to the raw text
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}

	var errorResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &errorResp) == nil {
		if errorResp.Error != "" {
			return errorResp.Error
		}
		if errorResp.Message != "" {
			return errorResp.Message
		}
	}

	return strings.TrimSpace(string(data))
}
