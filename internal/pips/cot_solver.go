package pips

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rand/pips/internal/llm"
)

// cotSolver answers with a single step-by-step reasoning pass.
type cotSolver struct {
	client llm.Client
	opts   Options
	logger *slog.Logger
}

// solve issues one model call and extracts the text after the
// final-answer marker. A missing marker is not an error: the whole
// response becomes the answer, flagged unconfirmed in telemetry.
func (c *cotSolver) solve(ctx context.Context, sess *Session) (answer string, confirmed bool, err error) {
	req := llm.Request{
		Messages:    buildCoTPrompt(sess.Input, c.opts.CustomRules),
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	}

	var output string
	if c.opts.Stream && c.opts.TokenSink != nil {
		output, err = c.client.Stream(ctx, req, func(tok string) {
			if !sess.interrupted() {
				c.opts.TokenSink("solver", 0, tok)
			}
		})
	} else {
		output, err = c.client.Complete(ctx, req)
	}
	if err != nil {
		return "", false, fmt.Errorf("reasoning call: %w", err)
	}

	ans, found := extractFinalAnswer(output)
	if !found {
		// The finish event emitted by the orchestrator carries the
		// unconfirmed flag; here we only note the cause.
		c.logger.Warn("final answer marker missing, using whole response", "session", sess.ID)
		return output, false, nil
	}
	return ans, true, nil
}
