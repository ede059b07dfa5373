package headless

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/chat"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"
)

// RunHeadless asks one question, or runs one secret prompt, and prints the
// answer to w. This is the main entry point for CLI execution.
func RunHeadless(ctx context.Context, settings *config.Config, w io.Writer, req stream.Request, opts ...Option) (*chat.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runner, err := newRunner(settings, w, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize headless mode: %w", err)
	}
	defer func() {
		if err := runner.cleanup(); err != nil {
			logger.Warn("Cleanup error: %v", err)
		}
	}()

	msg, err := runner.ask(ctx, req)
	if err != nil && !errors.Is(err, ErrInterrupted) {
		return msg, fmt.Errorf("failed to execute prompt: %w", err)
	}
	return msg, err
}
