package pips

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rand/pips/internal/llm"
	"github.com/rand/pips/internal/sandbox"
)

// codeSolver drives the iterative generate, execute, critique, refine
// cycle. One instance serves one session run.
type codeSolver struct {
	client  llm.Client
	critic  llm.Client
	exec    sandbox.Executor
	opts    Options
	logger  *slog.Logger
	metrics *Metrics
}

// chat issues one model call, streaming tokens to the configured sink
// when enabled. Tokens are suppressed after an interrupt; the assembled
// text is still returned so the in-flight call completes cleanly.
func (c *codeSolver) chat(ctx context.Context, sess *Session, client llm.Client, role string, iteration int, msgs []llm.Message) (string, error) {
	req := llm.Request{
		Messages:    msgs,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	}

	if c.opts.Stream && c.opts.TokenSink != nil {
		return client.Stream(ctx, req, func(tok string) {
			if !sess.interrupted() {
				c.opts.TokenSink(role, iteration, tok)
			}
		})
	}
	return client.Complete(ctx, req)
}

// assembleProgram appends the symbol binding and the solve call to the
// generated code. Symbols are injected through json.loads of a quoted
// literal so JSON true/false/null never leak into Python source.
func assembleProgram(code, symbols string) string {
	if strings.TrimSpace(symbols) == "" {
		symbols = "{}"
	}
	return code + "\n\nimport json as _json\nsymbols = _json.loads(" + strconv.Quote(symbols) + ")\nanswer = solve(symbols)\n"
}

// answerFromExecution extracts the final answer from an execution
// result, preferring the return value over stdout.
func answerFromExecution(exec ExecutionOutput) string {
	if v := strings.TrimSpace(exec.ReturnValue); v != "" {
		return v
	}
	return strings.TrimSpace(exec.Stdout)
}

// solve runs the refinement loop. The returned error is reserved for
// failures that make continuation meaningless (model transport or
// sandbox harness breakage); everything else degrades inside the loop.
// Interrupts are observed at safe checkpoints and surface through the
// session's interrupt flag, not through the error.
func (c *codeSolver) solve(ctx context.Context, sess *Session) (answer string, confirmed bool, err error) {
	input := sess.Input

	conv := []llm.Message{
		llm.SystemMessage(buildCodeSystemPrompt(c.opts.CustomRules)),
		attachImage(llm.UserMessage(input.Text), input),
	}

	var (
		curSymbols string
		curCode    string
		lastExec   ExecutionOutput
	)

	for i := 1; i <= c.opts.MaxIterations; i++ {
		if sess.interrupted() {
			return answerFromExecution(lastExec), false, nil
		}
		if err := ctx.Err(); err != nil {
			return answerFromExecution(lastExec), false, err
		}

		sess.telemetry.append(EventIterationStarted, i, fmt.Sprintf("iteration %d", i), nil)
		c.metrics.iterationStarted()

		it := Iteration{Index: i}

		// GENERATING
		raw, err := c.chat(ctx, sess, c.client, "solver", i, conv)
		if err != nil {
			return answerFromExecution(lastExec), false, fmt.Errorf("generation call: %w", err)
		}
		conv = append(conv, llm.AssistantMessage(raw))

		if i > 1 && containsFinished(raw) {
			// The model declared the previous solution correct.
			it.Code = curCode
			it.Symbols = curSymbols
			it.Execution = lastExec
			it.Accepted = lastExec.Error == "" && !lastExec.TimedOut
			sess.appendIteration(it)
			sess.telemetry.append(EventIterationAccepted, i, "model declared solution finished", map[string]any{"accepted": it.Accepted})
			return answerFromExecution(lastExec), it.Accepted, nil
		}

		symbols, code, reasoning := extractComponents(raw)
		if symbols != "" {
			curSymbols = symbols
		}
		if code != "" {
			curCode = code
		}
		it.Symbols = curSymbols
		it.Code = curCode
		it.Reasoning = reasoning

		if curCode == "" {
			// No code yet. Record the miss and ask again; never abort.
			it.Err = "no python code block found in response"
			sess.appendIteration(it)
			sess.telemetry.append(EventCodeGenerated, i, it.Err, nil)
			c.logger.Warn("response missing code block", "session", sess.ID, "iteration", i)
			conv = append(conv, llm.UserMessage(
				"Your previous response did not contain a Python code block. "+
					"Please output the extracted symbols in a JSON code block and the `solve` function in a Python code block."))
			continue
		}
		sess.telemetry.append(EventCodeGenerated, i, "", map[string]any{"code_bytes": len(curCode)})

		// EXECUTING
		res, err := c.exec.Execute(ctx, assembleProgram(curCode, curSymbols), c.opts.MaxExecutionTime)
		if err != nil {
			return answerFromExecution(lastExec), false, fmt.Errorf("sandbox: %w", err)
		}
		lastExec = fromSandbox(res)
		it.Execution = lastExec
		c.metrics.executionFinished(res)
		sess.telemetry.append(EventExecutionResult, i, "", map[string]any{
			"return_value": lastExec.ReturnValue,
			"error":        lastExec.Error,
			"timed_out":    lastExec.TimedOut,
		})

		// CRITIQUING
		criticMsgs := []llm.Message{
			llm.SystemMessage(buildCriticSystemPrompt(c.opts.CustomRules)),
			llm.UserMessage(buildCriticUserPrompt(input.Text, curSymbols, curCode, lastExec)),
		}
		criticText, err := c.chat(ctx, sess, c.critic, "critic", i, criticMsgs)
		if err != nil {
			return answerFromExecution(lastExec), false, fmt.Errorf("critic call: %w", err)
		}
		verdict := parseCriticVerdict(criticText)
		it.Critic = criticText
		it.CriticAccepted = verdict.Accept
		sess.telemetry.append(EventCriticFeedback, i, verdict.Summary, map[string]any{"accept": verdict.Accept})

		accepted := verdict.Accept && lastExec.Error == "" && !lastExec.TimedOut
		if accepted {
			it.Accepted = true
			sess.appendIteration(it)
			sess.telemetry.append(EventIterationAccepted, i, "critic accepted", map[string]any{"accepted": true})
			return answerFromExecution(lastExec), true, nil
		}
		sess.appendIteration(it)

		feedback := criticText
		hasUserFeedback := false

		if c.opts.Interactive {
			req := FeedbackRequest{
				SessionID:  sess.ID,
				Iteration:  i,
				Code:       curCode,
				Symbols:    curSymbols,
				CriticText: criticText,
			}
			sess.telemetry.append(EventAwaitingFeedback, i, "suspended for review", nil)
			c.logger.Info("awaiting feedback", "session", sess.ID, "iteration", i)

			resp, ok := sess.awaitFeedback(ctx, req)
			if !ok {
				return answerFromExecution(lastExec), false, ctx.Err()
			}
			sess.telemetry.append(EventFeedbackReceived, i, "", map[string]any{"terminate": resp.Terminate, "accept_critic": resp.AcceptCritic})

			if resp.Terminate {
				return answerFromExecution(lastExec), accepted, nil
			}
			feedback = mergeFeedback(criticText, resp)
			hasUserFeedback = resp.hasUserInput()
		}

		// REFINING
		conv = append(conv, llm.UserMessage(buildFixPrompt(lastExec, feedback, hasUserFeedback)))
	}

	// Budget exhausted without acceptance: fail soft with the last
	// output, tagged unconfirmed.
	sess.telemetry.append(EventIterationAccepted, c.opts.MaxIterations, "iteration budget exhausted", map[string]any{"accepted": false})
	return answerFromExecution(lastExec), false, nil
}
