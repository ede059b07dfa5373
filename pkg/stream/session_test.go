package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"
)

var _ = Describe("Session", func() {
	var (
		server  *httptest.Server
		client  *stream.Client
		rec     *recorder
		respond func(w http.ResponseWriter, r *http.Request)
		release chan struct{}

		mu       sync.Mutex
		lastBody map[string]any
		lastReq  *http.Request
	)

	captured := func() (*http.Request, map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		return lastReq, lastBody
	}

	BeforeEach(func() {
		rec = &recorder{}
		release = make(chan struct{})
		lastBody = nil
		lastReq = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)

			mu.Lock()
			lastReq, lastBody = r, body
			mu.Unlock()

			respond(w, r)
		}))
		client = stream.NewClient(server.URL, stream.WithToken("secret-token"))
	})

	AfterEach(func() {
		close(release)
		server.Close()
	})

	start := func(req stream.Request) *stream.Session {
		s, err := client.Start(context.Background(), req, rec.handle)
		Expect(err).ToNot(HaveOccurred())
		return s
	}

	Describe("request", func() {
		It("should post the question with streaming headers", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, "data: [DONE]")
			}

			req := question("What is the limitation period?")
			req.SessionID = "s-9"
			s := start(req)
			s.Wait()

			lastReq, lastBody := captured()
			Expect(lastReq.Method).To(Equal(http.MethodPost))
			Expect(lastReq.URL.Path).To(Equal("/docs/folder-1/intelligent-chat/stream"))
			Expect(lastReq.Header.Get("Accept")).To(Equal("text/event-stream"))
			Expect(lastReq.Header.Get("Authorization")).To(Equal("Bearer secret-token"))
			Expect(lastBody).To(HaveKeyWithValue("question", "What is the limitation period?"))
			Expect(lastBody).To(HaveKeyWithValue("session_id", "s-9"))
			Expect(lastBody).To(HaveKeyWithValue("llm_name", "gemini-2.5-flash"))
			Expect(lastBody).ToNot(HaveKey("secret_id"))
		})

		It("should send the secret prompt id instead of a question", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, "data: [DONE]")
			}

			s := start(stream.Request{FolderID: "folder-1", SecretPromptID: "sp-1", ModelName: "m"})
			s.Wait()

			_, lastBody := captured()
			Expect(lastBody).To(HaveKeyWithValue("secret_id", "sp-1"))
			Expect(lastBody).ToNot(HaveKey("question"))
		})

		It("should reject invalid requests without contacting the server", func() {
			_, err := client.Start(context.Background(), stream.Request{FolderID: "folder-1", ModelName: "m"}, rec.handle)

			Expect(err).To(MatchError(stream.ErrInvalidRequest))
			lastReq, _ := captured()
			Expect(lastReq).To(BeNil())
		})
	})

	Describe("finalization", func() {
		It("should concatenate chunks ending with the done sentinel", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("Hello "), chunkLine("world"), "data: [DONE]")
			}

			s := start(question("hi"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventChunk, stream.EventDone}))
			Expect(rec.ofType(stream.EventChunk)[1].Text).To(Equal("Hello world"))
			Expect(s.Snapshot().Answer).To(Equal("Hello world"))

			msg := rec.last().ChatMessage
			Expect(msg).ToNot(BeNil())
			Expect(msg.Response).To(Equal("Hello world"))
			Expect(msg.Question).To(Equal("hi"))
			Expect(msg.ID).ToNot(BeEmpty())
			Expect(s.State()).To(Equal(stream.StateFinalized))
		})

		It("should carry session id and used chunk ids from metadata", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w,
					dataLine(map[string]any{"type": "metadata", "session_id": "s1"}),
					chunkLine("Answer"),
					dataLine(map[string]any{"type": "done", "used_chunk_ids": []string{"c1", "c2"}}),
				)
			}

			s := start(question("q"))
			s.Wait()

			meta := rec.ofType(stream.EventMetadata)
			Expect(meta).To(HaveLen(1))
			Expect(meta[0].SessionID).To(Equal("s1"))

			msg := rec.last().ChatMessage
			Expect(msg.UsedChunkIDs).To(Equal([]string{"c1", "c2"}))
			Expect(msg.SessionID).To(Equal("s1"))
			Expect(rec.last().SessionID).To(Equal("s1"))
		})

		It("should derive used chunk ids from citations", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w,
					chunkLine("Answer"),
					dataLine(map[string]any{"type": "done", "metadata": map[string]any{
						"message_id": "m-7",
						"citations": []map[string]any{
							{"chunk_id": "a", "page": 3},
							{"id": "b"},
							{"chunkId": "c"},
							{"filename": "no-id.pdf"},
						},
					}}),
				)
			}

			s := start(question("q"))
			s.Wait()

			msg := rec.last().ChatMessage
			Expect(msg.ID).To(Equal("m-7"))
			Expect(msg.UsedChunkIDs).To(Equal([]string{"a", "b", "c"}))
			Expect(msg.Citations).To(HaveLen(4))
			Expect(msg.Citations[0].Page).To(Equal(3))
		})

		It("should finalize on natural end of stream", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("partial answer"))
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventDone}))
			Expect(rec.last().ChatMessage.Response).To(Equal("partial answer"))
		})

		It("should emit nothing after a done event", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w,
					chunkLine("one"),
					dataLine(map[string]any{"type": "done"}),
					chunkLine("two"),
					"data: [DONE]",
				)
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventDone}))
			Expect(rec.last().ChatMessage.Response).To(Equal("one"))
		})

		It("should leave the response empty when no chunk arrived", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, dataLine(map[string]any{"type": "status", "status": "searching", "message": "Searching documents"}), "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			status := rec.ofType(stream.EventStatus)
			Expect(status).To(HaveLen(1))
			Expect(status[0].Status).To(Equal("searching"))
			Expect(status[0].Message).To(Equal("Searching documents"))
			Expect(rec.last().ChatMessage.Response).To(BeEmpty())
		})

		It("should render structured secret prompt answers", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine(`{"case_summary":`), chunkLine(`"Dispute over lease"}`), "data: [DONE]")
			}

			s := start(stream.Request{FolderID: "folder-1", SecretPromptID: "sp-1", SecretPromptName: "Case Summary", ModelName: "m"})
			s.Wait()

			msg := rec.last().ChatMessage
			Expect(msg.IsSecretPrompt).To(BeTrue())
			Expect(msg.Question).To(Equal("Case Summary"))
			Expect(msg.Response).To(Equal("## Case Summary\n\nDispute over lease"))
		})

		It("should move inline think blocks out of the answer", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("<think>check clause 4</think>"), chunkLine("The lease ends in May."), "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			msg := rec.last().ChatMessage
			Expect(msg.Response).To(Equal("The lease ends in May."))
			Expect(msg.Thinking).To(Equal("check clause 4"))
		})
	})

	Describe("leniency", func() {
		It("should skip malformed lines and keep streaming", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("a"), `data: {"type":"chunk","text":`, chunkLine("b"), "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.last().ChatMessage.Response).To(Equal("ab"))
			Expect(s.Snapshot().Skipped).To(Equal(1))
		})

		It("should ignore pings, blank lines and lines without the data prefix", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, "data: [PING]", "", ": comment", "event: message", chunkLine("x"), "data: [PING]", "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventDone}))
			Expect(rec.last().ChatMessage.Response).To(Equal("x"))
		})

		It("should leave the answer untouched when a ping arrives between chunks", func() {
			ping := make(chan struct{})
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("a"))
				select {
				case <-ping:
				case <-r.Context().Done():
					return
				}
				writeLines(w, "data: [PING]")
				select {
				case <-release:
				case <-r.Context().Done():
					return
				}
			}

			s := start(question("q"))
			Eventually(func() int { return len(rec.all()) }).Should(Equal(1))

			close(ping)
			Consistently(func() int { return len(rec.all()) }, 50*time.Millisecond).Should(Equal(1))
			snap := s.Snapshot()
			Expect(snap.Answer).To(Equal("a"))
			Expect(snap.Stats.ChunkCount).To(Equal(1))
			Expect(snap.Skipped).To(BeZero())
			Expect(snap.State).To(Equal(stream.StateStreaming))

			s.Cancel()
			s.Wait()
		})

		It("should join chunks around a ping", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("a"), "data: [PING]", chunkLine("b"), "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventChunk, stream.EventDone}))
			Expect(rec.ofType(stream.EventChunk)[1].Text).To(Equal("ab"))
			Expect(s.Snapshot().Stats.ChunkCount).To(Equal(2))
		})

		It("should reassemble lines split across writes", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				line := chunkLine("héllo")
				half := len(line) / 2
				w.Write([]byte(line[:half]))
				w.(http.Flusher).Flush()
				time.Sleep(20 * time.Millisecond)
				w.Write([]byte(line[half:] + "\r\ndata: [DONE]\r\n"))
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.last().ChatMessage.Response).To(Equal("héllo"))
		})
	})

	Describe("errors", func() {
		It("should surface server error events verbatim", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, dataLine(map[string]any{"type": "error", "message": "boom"}), chunkLine("ignored"))
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventError}))
			Expect(rec.last().Message).To(Equal("boom"))
			Expect(rec.last().ChatMessage).To(BeNil())
			Expect(s.State()).To(Equal(stream.StateErrored))

			var serverErr *stream.ServerError
			Expect(errors.As(s.Err(), &serverErr)).To(BeTrue())
		})

		It("should report non-2xx responses before parsing", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"folder not found"}`))
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventError}))
			Expect(rec.last().Message).To(ContainSubstring("folder not found"))

			var statusErr *stream.StatusError
			Expect(errors.As(rec.last().Err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should report a connection dropped mid-stream", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				conn, buf, err := w.(http.Hijacker).Hijack()
				Expect(err).ToNot(HaveOccurred())
				defer conn.Close()

				buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n")
				payload := chunkLine("cut") + "\n"
				buf.WriteString(hexLen(len(payload)) + "\r\n" + payload + "\r\n")
				buf.Flush()
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventError}))
			Expect(rec.last().Message).To(ContainSubstring("stream read failed"))
			Expect(s.Snapshot().Answer).To(Equal("cut"))
		})
	})

	Describe("thinking", func() {
		It("should coalesce rapid deltas without reordering", func() {
			client = stream.NewClient(server.URL, stream.WithThinkingDebounce(time.Second))
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, thinkingLine("Reading "), thinkingLine("the "), thinkingLine("lease"), chunkLine("Answer"), "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventThinking, stream.EventChunk, stream.EventDone}))
			thinking := rec.ofType(stream.EventThinking)[0]
			Expect(thinking.Delta).To(Equal("Reading the lease"))
			Expect(thinking.Text).To(Equal("Reading the lease"))
			Expect(rec.last().ChatMessage.Thinking).To(Equal("Reading the lease"))
		})

		It("should flush after the debounce window while the stream is idle", func() {
			client = stream.NewClient(server.URL, stream.WithThinkingDebounce(10*time.Millisecond))
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, thinkingLine("a"), thinkingLine("b"))
				select {
				case <-release:
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
			}

			s := start(question("q"))
			Eventually(rec.types).Should(Equal([]stream.EventType{stream.EventThinking}))
			Expect(rec.ofType(stream.EventThinking)[0].Delta).To(Equal("ab"))

			s.Cancel()
			s.Wait()
		})

		It("should emit every delta when debouncing is off", func() {
			client = stream.NewClient(server.URL, stream.WithThinkingDebounce(0))
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, thinkingLine("a"), thinkingLine("b"), "data: [DONE]")
			}

			s := start(question("q"))
			s.Wait()

			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventThinking, stream.EventThinking, stream.EventDone}))
			Expect(rec.ofType(stream.EventThinking)[1].Text).To(Equal("ab"))
		})
	})

	Describe("cancellation", func() {
		BeforeEach(func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("partial "), chunkLine("answer"))
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}
		})

		It("should stop emitting and keep the buffers", func() {
			s := start(question("q"))
			Eventually(func() int { return len(rec.ofType(stream.EventChunk)) }).Should(Equal(2))

			s.Cancel()
			s.Wait()

			Expect(s.State()).To(Equal(stream.StateCancelled))
			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk, stream.EventChunk}))
			Expect(s.Snapshot().Answer).To(Equal("partial answer"))

			msg, ok := s.PartialMessage()
			Expect(ok).To(BeTrue())
			Expect(msg.Response).To(Equal("partial answer"))
			Expect(msg.Metadata).To(HaveKeyWithValue("interrupted", true))
		})

		It("should return only after an in-flight event is handled", func() {
			entered := make(chan struct{})
			unblock := make(chan struct{})
			var inHandler atomic.Bool
			var once sync.Once
			handler := func(ev stream.Event) {
				inHandler.Store(true)
				once.Do(func() {
					close(entered)
					<-unblock
				})
				rec.handle(ev)
				inHandler.Store(false)
			}

			s, err := client.Start(context.Background(), question("q"), handler)
			Expect(err).ToNot(HaveOccurred())
			Eventually(entered).Should(BeClosed())

			cancelled := make(chan struct{})
			go func() {
				s.Cancel()
				close(cancelled)
			}()
			Consistently(cancelled, 50*time.Millisecond).ShouldNot(BeClosed())

			close(unblock)
			Eventually(cancelled).Should(BeClosed())
			Expect(inHandler.Load()).To(BeFalse())

			s.Wait()
			Expect(rec.types()).To(Equal([]stream.EventType{stream.EventChunk}))
			Expect(s.State()).To(Equal(stream.StateCancelled))
		})

		It("should be idempotent", func() {
			s := start(question("q"))
			Eventually(func() int { return len(rec.all()) }).Should(BeNumerically(">", 0))

			s.Cancel()
			Expect(s.Cancel).ToNot(Panic())
			s.Wait()

			Expect(s.State()).To(Equal(stream.StateCancelled))
			Expect(s.Err()).To(BeNil())
		})

		It("should treat parent context cancellation as cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			s, err := client.Start(ctx, question("q"), rec.handle)
			Expect(err).ToNot(HaveOccurred())
			Eventually(func() int { return len(rec.all()) }).Should(BeNumerically(">", 0))

			cancel()
			s.Wait()

			Expect(s.State()).To(Equal(stream.StateCancelled))
			Expect(rec.ofType(stream.EventError)).To(BeEmpty())
		})

		It("should close an idle session without starting it", func() {
			s := client.NewSession()
			s.Cancel()

			Eventually(s.Done()).Should(BeClosed())
			Expect(s.Start(context.Background(), question("q"), rec.handle)).To(MatchError(stream.ErrSessionStarted))
			_, ok := s.PartialMessage()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Slot", func() {
		It("should cancel and await the previous session before starting", func() {
			var calls atomic.Int32
			respond = func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					writeLines(w, chunkLine("first"))
					select {
					case <-release:
					case <-r.Context().Done():
					}
					return
				}
				writeLines(w, chunkLine("second"), "data: [DONE]")
			}

			slot := stream.NewSlot(client)
			firstRec := &recorder{}
			first, err := slot.Start(context.Background(), question("one"), firstRec.handle)
			Expect(err).ToNot(HaveOccurred())
			Eventually(func() int { return len(firstRec.all()) }).Should(Equal(1))

			second, err := slot.Start(context.Background(), question("two"), rec.handle)
			Expect(err).ToNot(HaveOccurred())

			Expect(first.Done()).To(BeClosed())
			Expect(first.State()).To(Equal(stream.StateCancelled))
			Expect(slot.Current()).To(BeIdenticalTo(second))

			second.Wait()
			Expect(rec.last().ChatMessage.Response).To(Equal("second"))
			Expect(firstRec.types()).To(Equal([]stream.EventType{stream.EventChunk}))
		})

		It("should return the partial answer on stop", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, chunkLine("so far"))
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}

			slot := stream.NewSlot(client)
			_, err := slot.Start(context.Background(), question("q"), rec.handle)
			Expect(err).ToNot(HaveOccurred())
			Eventually(func() int { return len(rec.all()) }).Should(Equal(1))

			msg, ok := slot.Stop()
			Expect(ok).To(BeTrue())
			Expect(msg.Response).To(Equal("so far"))

			slot.Close()
			Expect(slot.Current()).To(BeNil())
		})

		It("should keep the running session when the new request is invalid", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				writeLines(w, "data: [DONE]")
			}

			slot := stream.NewSlot(client)
			s, err := slot.Start(context.Background(), question("q"), rec.handle)
			Expect(err).ToNot(HaveOccurred())

			_, err = slot.Start(context.Background(), stream.Request{}, rec.handle)
			Expect(err).To(MatchError(stream.ErrInvalidRequest))
			Expect(slot.Current()).To(BeIdenticalTo(s))
			slot.Close()
		})
	})
})

func hexLen(n int) string {
	return strconv.FormatInt(int64(n), 16)
}
