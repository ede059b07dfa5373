package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/docs"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/process"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/render"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/typing"
)

// runner streams one answer at a time to the console
type runner struct {
	slot    *stream.Slot
	docs    *docs.Client
	history *chat.History
	output  *Output
	config  *runConfig
}

// runConfig contains headless runner configuration
type runConfig struct {
	historyPath  string
	showThinking bool
	color        bool
	width        int
	typing       config.TypingConfig
	links        bool
}

// Option adjusts a runner
type Option func(*runConfig)

// WithTyping turns the answer animation on or off
func WithTyping(enabled bool) Option {
	return func(c *runConfig) { c.typing.Enabled = enabled }
}

func WithColor(enabled bool) Option {
	return func(c *runConfig) { c.color = enabled }
}

// WithHistoryPath overrides the local history cache. An empty path keeps
// history in memory.
func WithHistoryPath(path string) Option {
	return func(c *runConfig) { c.historyPath = path }
}

// WithViewerLinks resolves a viewer URL for every cited document
func WithViewerLinks(enabled bool) Option {
	return func(c *runConfig) { c.links = enabled }
}

func newRunConfig(settings *config.Config, w io.Writer, opts []Option) *runConfig {
	cfg := &runConfig{
		showThinking: settings.Chat.ShowThinking,
		color:        render.DetectColor(w),
		width:        100,
		typing:       settings.Typing,
	}
	if settings.History.File != "" {
		cfg.historyPath = config.BuildSettingsPath(settings.History.File)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// newRunner creates a runner talking to the configured backend
func newRunner(settings *config.Config, w io.Writer, opts ...Option) (*runner, error) {
	cfg := newRunConfig(settings, w, opts)

	history, err := chat.NewHistory(cfg.historyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat history: %w", err)
	}

	return &runner{
		slot:    stream.NewSlot(stream.NewClientFromConfig(settings)),
		docs:    docs.NewClientFromConfig(settings),
		history: history,
		output:  NewOutput(w, render.New(w, cfg.width, cfg.color)),
		config:  cfg,
	}, nil
}

// ask streams the answer to req. Cancelling ctx stops generation; the
// partial answer is printed, stored and returned with ErrInterrupted.
func (r *runner) ask(ctx context.Context, req stream.Request) (*chat.Message, error) {
	if !req.IsSecretPrompt() {
		r.output.Line(r.output.Renderer().Question(strings.TrimSpace(req.Question)))
	}
	r.output.Phase(process.StateSending)

	handler := newStreamHandler(r.output, r.config.showThinking)
	session, err := r.slot.Start(ctx, req, handler.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to start chat: %w", err)
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		r.slot.Stop()
	}

	if session.State() == stream.StateCancelled {
		return r.interrupted(session)
	}

	ev, ok := handler.result()
	if !ok {
		return nil, fmt.Errorf("stream ended without a result")
	}
	if ev.Type == stream.EventError {
		// partial text stays visible above the banner
		if partial := strings.TrimSpace(session.Snapshot().Answer); partial != "" {
			r.output.Line(r.output.Renderer().Answer(partial))
		}
		r.output.Error(ev.Message)
		return nil, ev.Err
	}

	msg := ev.ChatMessage
	r.present(ctx, msg, !handler.sawThinking())
	if err := r.history.Add(msg); err != nil {
		logger.Warn("Failed to save chat history: %v", err)
	}
	return msg, nil
}

func (r *runner) interrupted(session *stream.Session) (*chat.Message, error) {
	msg, ok := session.PartialMessage()
	if !ok {
		r.output.Line(r.output.Renderer().Muted("Stopped before any answer arrived."))
		return nil, ErrInterrupted
	}

	r.output.Line(r.output.Renderer().Answer(msg.Response))
	r.output.Line(r.output.Renderer().Muted("[generation stopped]"))
	if err := r.history.Add(msg); err != nil {
		logger.Warn("Failed to save chat history: %v", err)
	}
	return msg, ErrInterrupted
}

// present prints the finished answer and its sources. Thinking is printed
// here only when it was not already streamed.
func (r *runner) present(ctx context.Context, msg *chat.Message, thinking bool) {
	if thinking && r.config.showThinking && msg.Thinking != "" {
		r.output.Thinking(msg.Thinking)
	}

	if msg.IsEmpty() {
		r.output.Line(r.output.Renderer().Muted("(no answer)"))
	} else {
		text := r.output.Renderer().Answer(msg.Response)
		if r.config.typing.Enabled {
			r.animate(ctx, text)
		} else {
			r.output.Write(text)
		}
		r.output.Write("\n")
	}

	r.output.Line(r.output.Renderer().Citations(msg.Citations, r.linker(ctx)))
}

// animate reveals text through the typing animator. Cancelling ctx skips
// to the end rather than dropping the rest of the answer.
func (r *runner) animate(ctx context.Context, text string) {
	tw := &typewriter{out: r.output}
	animator := typing.NewFromConfig(r.config.typing, func(s typing.AnimationState) {
		tw.show(s.DisplayedText)
	})
	defer animator.Close()

	animator.Play(text)

	select {
	case <-animator.Done():
	case <-ctx.Done():
		animator.Skip()
	}
	tw.show(text)
}

func (r *runner) linker(ctx context.Context) func(chat.Citation) string {
	if !r.config.links {
		return nil
	}
	return func(c chat.Citation) string {
		if c.FileID == "" {
			return ""
		}
		u, err := r.docs.ViewerURL(ctx, c.FileID, c.Page)
		if err != nil {
			logger.Debug("No viewer url for %s: %v", c.FileID, err)
			return ""
		}
		return u
	}
}

func (r *runner) cleanup() error {
	r.slot.Close()
	return r.history.Save()
}

// typewriter prints only the part of a growing text not yet written
type typewriter struct {
	mu      sync.Mutex
	out     *Output
	written int
}

func (t *typewriter) show(displayed string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(displayed) <= t.written {
		return
	}
	t.out.Write(displayed[t.written:])
	t.written = len(displayed)
}

// ErrInterrupted is returned when the user stopped generation
var ErrInterrupted = errors.New("generation stopped")
