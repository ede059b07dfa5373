package headless

import (
	"fmt"
	"io"
	"sync"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/process"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/render"
)

// Output handles console output for headless mode. Writes are serialized
// because stream events and animation ticks arrive on different goroutines.
type Output struct {
	mu sync.Mutex
	w  io.Writer
	r  *render.Renderer
}

// NewOutput creates a new output handler
func NewOutput(w io.Writer, r *render.Renderer) *Output {
	return &Output{w: w, r: r}
}

func (o *Output) Renderer() *render.Renderer {
	return o.r
}

// Write prints s verbatim
func (o *Output) Write(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprint(o.w, s)
}

// Line prints s followed by a newline, skipping empty strings
func (o *Output) Line(s string) {
	if s == "" {
		return
	}
	o.Write(s + "\n")
}

func (o *Output) Status(status, message string) {
	o.Line(o.r.Status(status, message))
}

// Phase prints the label of a request phase
func (o *Output) Phase(state process.State) {
	o.Line(o.r.Status("", state.Label()))
}

func (o *Output) Thinking(text string) {
	o.Line(o.r.Thinking(text))
}

// Error prints the error banner and logs the message
func (o *Output) Error(msg string) {
	logger.Error("%s", msg)
	o.Line(o.r.Error(msg))
}
