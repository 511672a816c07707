package pips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rand/pips/internal/llm"
	"github.com/rand/pips/internal/sandbox"
)

// ErrEmptyInput rejects solve requests with no problem text.
var ErrEmptyInput = errors.New("problem text must not be empty")

// Orchestrator is the entry point for solving: it selects the reasoning
// mode, dispatches to a solving strategy and collects telemetry. Its
// contract is that Run always returns a structured Result for any
// session, never a panic.
type Orchestrator struct {
	client  llm.Client
	critic  llm.Client
	exec    sandbox.Executor
	logger  *slog.Logger
	metrics *Metrics
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCriticClient routes critique calls to a separate model.
func WithCriticClient(c llm.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.critic = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an orchestrator over a model client and a
// code sandbox. The critic defaults to the main client.
func NewOrchestrator(client llm.Client, exec sandbox.Executor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client: client,
		critic: client,
		exec:   exec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewSession validates the input and creates a session ready to run.
func (o *Orchestrator) NewSession(input RawInput) (*Session, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, ErrEmptyInput
	}
	return newSession(input), nil
}

// Solve is the one-shot entry point: it creates a session, runs it and
// returns the result. For interactive or observed runs create the
// session explicitly and call Run.
func (o *Orchestrator) Solve(ctx context.Context, input RawInput, opts Options) Result {
	sess, err := o.NewSession(input)
	if err != nil {
		return Result{Status: StatusErrored, Err: err.Error()}
	}
	return o.Run(ctx, sess, opts)
}

// Run executes one session to completion. It always returns: solver
// panics and errors are caught here and folded into an errored result
// with whatever telemetry accumulated.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, opts Options) (result Result) {
	opts = opts.withDefaults()
	start := time.Now()
	o.metrics.sessionStarted()

	finish := func(answer string, confirmed bool, status SessionStatus, errText string) Result {
		switch status {
		case StatusInterrupted:
			sess.telemetry.append(EventSessionInterrupted, 0, "interrupted by caller", nil)
		case StatusErrored:
			sess.telemetry.append(EventSessionErrored, 0, errText, nil)
		default:
			sess.telemetry.append(EventSessionFinished, 0, "", map[string]any{"confirmed": confirmed})
		}

		mode := "cot"
		if sess.Decision().UseCode {
			mode = "code"
		}
		o.metrics.sessionFinished(mode, status)

		r := Result{
			Answer:    answer,
			Confirmed: confirmed,
			Status:    status,
			Decision:  sess.Decision(),
			Err:       errText,
			Events:    sess.Events(),
			Duration:  time.Since(start),
		}
		sess.setResult(r)
		sess.telemetry.close()

		// Terminal status is published last so anyone observing it sees
		// the result and the full event log.
		sess.setStatus(status)
		return r
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("solver panicked", "session", sess.ID, "panic", r)
			result = finish("", false, StatusErrored, fmt.Sprintf("solver panic: %v", r))
		}
	}()

	if strings.TrimSpace(sess.Input.Text) == "" {
		return finish("", false, StatusErrored, ErrEmptyInput.Error())
	}

	sess.setStatus(StatusSolving)
	o.logger.Info("solve started", "session", sess.ID, "interactive", opts.Interactive)

	selector := &modeSelector{client: o.client, logger: o.logger}
	decision := selector.Select(ctx, sess.Input)
	sess.setDecision(decision)
	sess.telemetry.append(EventModeSelected, 0, decision.Rationale, map[string]any{
		"use_code": decision.UseCode,
		"average":  decision.Average,
	})
	o.logger.Info("mode selected", "session", sess.ID, "use_code", decision.UseCode, "rationale", decision.Rationale)

	if opts.Interactive && !decision.UseCode {
		// Checkpoints only exist inside the code loop.
		o.logger.Info("interactive mode requested but chain-of-thought selected, running without checkpoints", "session", sess.ID)
	}

	if sess.interrupted() {
		return finish("", false, StatusInterrupted, "")
	}

	var (
		answer    string
		confirmed bool
		err       error
	)
	if decision.UseCode {
		cs := &codeSolver{
			client:  o.client,
			critic:  o.critic,
			exec:    o.exec,
			opts:    opts,
			logger:  o.logger,
			metrics: o.metrics,
		}
		answer, confirmed, err = cs.solve(ctx, sess)
	} else {
		cot := &cotSolver{client: o.client, opts: opts, logger: o.logger}
		answer, confirmed, err = cot.solve(ctx, sess)
	}

	switch {
	case sess.interrupted():
		return finish(answer, false, StatusInterrupted, "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// A caller-side timeout or cancellation forces interrupted, not
		// errored: accumulated work is preserved, nothing actually broke.
		return finish(answer, false, StatusInterrupted, "")
	case err != nil:
		o.logger.Error("solve failed", "session", sess.ID, "error", err)
		return finish(answer, false, StatusErrored, err.Error())
	default:
		o.logger.Info("solve finished", "session", sess.ID, "confirmed", confirmed)
		return finish(answer, confirmed, StatusCompleted, "")
	}
}
