package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"
)

var streamDebugCmd = &cobra.Command{
	Use:   "stream-debug FILE",
	Short: "Replay a captured chat stream and print every event",
	Long: `Serves a captured stream (one "data: ..." line per line) from a loopback
server and runs it through a normal session, printing the events as they are
emitted. Useful for checking how a problematic server response is parsed.`,
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runStreamDebug,
}

func init() {
	streamDebugCmd.Flags().Duration("delay", 0, "pause between replayed lines")
	streamDebugCmd.Flags().Duration("debounce", 10*time.Millisecond, "thinking debounce")
	rootCmd.AddCommand(streamDebugCmd)
}

func runStreamDebug(cmd *cobra.Command, args []string) error {
	capture, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}
	delay, _ := cmd.Flags().GetDuration("delay")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	server := httptest.NewServer(replayHandler(capture, delay))
	defer server.Close()

	out := cmd.OutOrStdout()
	client := stream.NewClient(server.URL, stream.WithThinkingDebounce(debounce))
	session, err := client.Start(cmd.Context(), stream.Request{
		FolderID:  "replay",
		Question:  "replay",
		ModelName: "replay",
	}, func(ev stream.Event) {
		printEvent(out, ev)
	})
	if err != nil {
		return err
	}
	session.Wait()

	snap := session.Snapshot()
	fmt.Fprintf(out, "\nstate=%s chunks=%d answer=%d thinking=%d skipped=%d\n",
		snap.State, snap.Stats.ChunkCount, snap.Stats.AnswerLength, snap.Stats.ThinkingLength, snap.Skipped)
	return nil
}

func replayHandler(capture []byte, delay time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)

		scanner := bufio.NewScanner(bytes.NewReader(capture))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			fmt.Fprintln(w, scanner.Text())
			if flusher != nil {
				flusher.Flush()
			}
			if delay > 0 {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(delay):
				}
			}
		}
	})
}

func printEvent(w io.Writer, ev stream.Event) {
	switch ev.Type {
	case stream.EventMetadata:
		fmt.Fprintf(w, "[metadata] session=%q message=%q fields=%v\n", ev.SessionID, ev.MessageID, ev.Metadata)
	case stream.EventStatus:
		fmt.Fprintf(w, "[status] %s: %s\n", ev.Status, ev.Message)
	case stream.EventThinking, stream.EventChunk:
		fmt.Fprintf(w, "[%s] %q (total %d)\n", ev.Type, ev.Delta, len(ev.Text))
	case stream.EventDone:
		msg := ev.ChatMessage
		fmt.Fprintf(w, "[done] id=%s chunks=%v citations=%d\n%s\n", msg.ID, msg.UsedChunkIDs, len(msg.Citations), msg.Response)
	case stream.EventError:
		fmt.Fprintf(w, "[error] %s\n", ev.Message)
	}
}
