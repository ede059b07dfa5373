package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/format"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
)

const (
	dataPrefix   = "data: "
	pingSentinel = "[PING]"
	doneSentinel = "[DONE]"

	readBufferSize = 32 * 1024
)

// ServerError is an error reported by the server inside the stream
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Session is one streamed answer. It moves from idle to streaming and ends
// finalized, cancelled or errored; a session is never restarted.
//
// Events are delivered serially from the session goroutine. A handler must
// not call Cancel or Wait of its own session.
type Session struct {
	id     string
	client *Client
	log    *logger.Logger

	mu      sync.Mutex
	state   State
	req     Request
	acc     *chat.Accumulator
	final   *chat.Message
	err     error
	skipped int
	cancel  context.CancelFunc
	handler Handler

	// deliverMu is held while the handler runs
	deliverMu sync.Mutex

	done chan struct{}
}

func newSession(c *Client) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		client: c,
		log:    logger.WithComponent("stream"),
		state:  StateIdle,
		done:   make(chan struct{}),
	}
}

// ID is the local identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Start validates req and begins streaming in the background. Transport and
// server failures arrive as an error event, not as a return value.
func (s *Session) Start(ctx context.Context, req Request, handler Handler) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if handler == nil {
		handler = func(Event) {}
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.state = StateStreaming
	s.req = req
	s.acc = chat.NewAccumulator()
	s.cancel = cancel
	s.handler = handler
	s.mu.Unlock()

	s.log.Debug("session %s: starting stream for folder %s", s.id, req.FolderID)
	go s.run(runCtx)
	return nil
}

// Cancel aborts the stream and returns once no handler call is in flight.
// No event is delivered after it returns; the buffers remain readable through
// Snapshot and PartialMessage. Calling it again is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateCancelled
		close(s.done)
	case StateStreaming:
		s.state = StateCancelled
		s.cancel()
		s.log.Debug("session %s: cancelled", s.id)
	}
	s.mu.Unlock()

	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

// Done is closed when the session goroutine has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session goroutine has exited. No events are
// delivered after Wait returns.
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure of an errored session
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Message returns the finalized message, if the session finalized
func (s *Session) Message() (*chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.final != nil
}

// Snapshot is a point-in-time copy of a session's buffers
type Snapshot struct {
	State     State
	Answer    string
	Thinking  string
	SessionID string
	MessageID string
	Metadata  map[string]any
	Stats     chat.StreamStats
	// Skipped counts data lines dropped as malformed
	Skipped int
	Err     error
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state, Skipped: s.skipped, Err: s.err}
	if s.acc == nil {
		return snap
	}

	snap.Answer = s.acc.Answer()
	snap.Thinking = s.acc.Thinking()
	snap.SessionID = s.acc.SessionID
	snap.MessageID = s.acc.MessageID
	snap.Metadata = s.acc.Metadata()
	snap.Stats = s.acc.Stats()
	return snap
}

// PartialMessage finalizes whatever answer has accumulated so far, which is
// what "stop generation" keeps. ok is false when no answer text arrived.
// A finalized session returns its final message.
func (s *Session) PartialMessage() (*chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.final != nil {
		return s.final, true
	}
	if s.acc == nil || strings.TrimSpace(s.acc.Answer()) == "" {
		return nil, false
	}

	msg := s.buildMessage(chat.SanitizeStreamContent(s.acc.Answer()))
	msg.Metadata["interrupted"] = true
	return msg, true
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	resp, err := s.client.open(ctx, s.req)
	if err != nil {
		if ctx.Err() != nil {
			s.markCancelled()
			return
		}
		s.fail(err)
		return
	}
	defer resp.Body.Close()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go readLines(ctx, resp.Body, lines, readErr)

	deb := newDebouncer(s.client.thinkingDebounce)
	defer deb.stopTimer()

	for {
		select {
		case <-ctx.Done():
			s.markCancelled()
			return

		case <-deb.C():
			s.flushThinking(deb)

		case line, ok := <-lines:
			if !ok {
				s.endOfStream(ctx, deb, readErr)
				return
			}
			if s.processLine(line, deb) {
				return
			}
		}
	}
}

// endOfStream handles the reader closing its channel, either at EOF or on a
// read failure
func (s *Session) endOfStream(ctx context.Context, deb *debouncer, readErr <-chan error) {
	if ctx.Err() != nil {
		s.markCancelled()
		return
	}

	select {
	case err := <-readErr:
		s.flushThinking(deb)
		s.fail(fmt.Errorf("stream read failed: %w", err))
	default:
		s.finalize(deb)
	}
}

// readLines feeds complete lines from body into lines. A read error is
// reported on errc before lines is closed.
func readLines(ctx context.Context, body io.Reader, lines chan<- string, errc chan<- error) {
	defer close(lines)

	send := func(line string) bool {
		select {
		case lines <- line:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var splitter lineSplitter
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range splitter.Write(buf[:n]) {
				if !send(line) {
					return
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if rest, ok := splitter.Flush(); ok {
					send(rest)
				}
				return
			}
			errc <- err
			return
		}
	}
}

// processLine handles one line and reports whether the session reached a
// terminal state
func (s *Session) processLine(line string, deb *debouncer) bool {
	if !strings.HasPrefix(line, dataPrefix) {
		return false
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	switch payload {
	case "", pingSentinel:
		return false
	case doneSentinel:
		s.finalize(deb)
		return true
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.log.Debug("session %s: skipping malformed line: %v", s.id, err)
		return false
	}

	eventType, _ := obj["type"].(string)

	if EventType(eventType) == EventThinking {
		delta := textOf(obj)
		if delta == "" {
			return false
		}
		s.mu.Lock()
		s.acc.AddThinking(delta)
		s.mu.Unlock()

		deb.add(delta)
		if deb.immediate() {
			s.flushThinking(deb)
		}
		return false
	}

	// pending thinking goes out before anything that follows it
	s.flushThinking(deb)

	switch EventType(eventType) {
	case EventMetadata:
		fields := metadataFields(obj)
		s.mu.Lock()
		s.acc.MergeMetadata(fields)
		sessionID, messageID := s.acc.SessionID, s.acc.MessageID
		s.mu.Unlock()

		s.emit(Event{Type: EventMetadata, SessionID: sessionID, MessageID: messageID, Metadata: fields})

	case EventStatus:
		s.emit(Event{Type: EventStatus, Status: stringField(obj, "status"), Message: stringField(obj, "message")})

	case EventChunk:
		delta := textOf(obj)
		if delta == "" {
			return false
		}
		s.mu.Lock()
		text := s.acc.AddChunk(delta)
		s.mu.Unlock()

		s.emit(Event{Type: EventChunk, Delta: delta, Text: text})

	case EventDone:
		s.mu.Lock()
		s.acc.MergeMetadata(metadataFields(obj))
		s.mu.Unlock()

		s.finalize(deb)
		return true

	case EventError:
		msg := stringField(obj, "message")
		if msg == "" {
			msg = stringField(obj, "error")
		}
		if msg == "" {
			msg = "stream error"
		}
		s.fail(&ServerError{Message: msg})
		return true

	default:
		s.log.Debug("session %s: ignoring event type %q", s.id, eventType)
	}

	return false
}

func (s *Session) flushThinking(deb *debouncer) {
	delta := deb.take()
	if delta == "" {
		return
	}

	s.mu.Lock()
	text := s.acc.Thinking()
	s.mu.Unlock()

	s.emit(Event{Type: EventThinking, Delta: delta, Text: text})
}

// emit delivers a non-terminal event while the session is streaming
func (s *Session) emit(ev Event) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	streaming := s.state == StateStreaming
	s.mu.Unlock()

	if streaming {
		s.handler(ev)
	}
}

// finalize builds the chat message and emits the done event. Only the
// first terminal transition wins.
func (s *Session) finalize(deb *debouncer) {
	s.flushThinking(deb)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	msg := s.buildMessage(s.acc.Answer())
	s.state = StateFinalized
	s.final = msg
	s.mu.Unlock()

	s.log.Debug("session %s: finalized message %s", s.id, msg.ID)
	s.handler(Event{
		Type:        EventDone,
		SessionID:   msg.SessionID,
		MessageID:   msg.ID,
		Metadata:    msg.Metadata,
		ChatMessage: msg,
	})
}

func (s *Session) fail(err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	s.state = StateErrored
	s.err = err
	s.mu.Unlock()

	msg := err.Error()
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		msg = serverErr.Message
	}

	s.log.Warn("session %s: %v", s.id, err)
	s.handler(Event{Type: EventError, Message: msg, Err: err})
}

func (s *Session) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStreaming {
		s.state = StateCancelled
	}
}

// buildMessage expects s.mu to be held
func (s *Session) buildMessage(answer string) *chat.Message {
	thinking := s.acc.Thinking()
	response := ""

	if strings.TrimSpace(answer) != "" {
		if inline, rest, ok := format.SplitThinking(answer); ok {
			thinking = joinNonEmpty(thinking, inline)
			answer = rest
		}
		response = s.formatAnswer(answer)
	}

	return s.acc.Build(s.req.displayQuestion(), response, thinking, s.req.IsSecretPrompt(), s.client.citationIDFields)
}

func (s *Session) formatAnswer(answer string) string {
	f := s.client.formatter
	if f.IsStructured(answer) {
		return f.RenderStructured(answer)
	}
	return f.ToPlainText(answer)
}

// metadataFields flattens a metadata or done payload, lifting nested
// metadata and data objects to the top level
func metadataFields(obj map[string]any) map[string]any {
	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "type" {
			continue
		}
		fields[k] = v
	}

	for _, key := range []string{"metadata", "data"} {
		nested, ok := fields[key].(map[string]any)
		if !ok {
			continue
		}
		delete(fields, key)
		for k, v := range nested {
			fields[k] = v
		}
	}
	return fields
}

// textOf returns the delta of a thinking or chunk payload
func textOf(obj map[string]any) string {
	for _, key := range []string{"text", "content", "delta"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}
