// Package pips implements the adaptive problem-solving orchestrator:
// per-instance selection between chain-of-thought reasoning and
// iterative program synthesis, driven against a Model Client and a code
// sandbox.
package pips

import (
	"time"

	"github.com/rand/pips/internal/sandbox"
)

// RawInput is one problem instance. Immutable once constructed.
type RawInput struct {
	Text string

	// Image is an optional image payload.
	Image []byte

	// ImageMIME is the media type of Image.
	ImageMIME string
}

// HasImage reports whether an image is attached.
func (r RawInput) HasImage() bool {
	return len(r.Image) > 0
}

// ModeDecision is the binary choice between code synthesis and
// chain-of-thought reasoning for one problem instance.
type ModeDecision struct {
	UseCode bool `json:"use_code"`

	// Scores are the ten self-reflection probabilities, nil when parsing
	// failed.
	Scores []float64 `json:"scores,omitempty"`

	// Average is the mean of Scores; the decision threshold is 0.5.
	Average float64 `json:"average,omitempty"`

	// Rationale explains the decision, including parse failures.
	Rationale string `json:"rationale"`

	// Raw is the verbatim model response.
	Raw string `json:"-"`
}

// ExecutionOutput captures what one sandbox run produced.
type ExecutionOutput struct {
	Stdout      string `json:"stdout"`
	ReturnValue string `json:"return_value"`
	Error       string `json:"error,omitempty"`
	TimedOut    bool   `json:"timed_out,omitempty"`
}

// fromSandbox converts a sandbox result into iteration output.
func fromSandbox(r sandbox.Result) ExecutionOutput {
	return ExecutionOutput{
		Stdout:      r.Stdout,
		ReturnValue: r.ReturnValue,
		Error:       r.Error,
		TimedOut:    r.TimedOut,
	}
}

// Iteration is one generate-execute-critique cycle of the code solver.
// Indices are strictly increasing and gap-free within a session.
type Iteration struct {
	Index     int             `json:"index"`
	Code      string          `json:"code"`
	Symbols   string          `json:"symbols"`
	Reasoning string          `json:"reasoning,omitempty"`
	Execution ExecutionOutput `json:"execution"`
	Critic    string          `json:"critic,omitempty"`

	// CriticAccepted is the parsed verdict of the critic call.
	CriticAccepted bool `json:"critic_accepted"`

	// Err records an iteration-level failure such as a missing code
	// block. Iteration errors are folded into the next prompt, never
	// fatal to the session.
	Err string `json:"error,omitempty"`

	// Accepted marks the iteration whose output became the final answer
	// with critic confirmation.
	Accepted bool `json:"accepted"`
}

// SessionStatus is the lifecycle state of one solve session.
type SessionStatus string

const (
	StatusPending          SessionStatus = "pending"
	StatusSolving          SessionStatus = "solving"
	StatusAwaitingFeedback SessionStatus = "awaiting_feedback"
	StatusCompleted        SessionStatus = "completed"
	StatusInterrupted      SessionStatus = "interrupted"
	StatusErrored          SessionStatus = "errored"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusInterrupted, StatusErrored:
		return true
	}
	return false
}

// Result is what a solve call always returns, regardless of outcome.
type Result struct {
	// Answer is the final answer text. May be empty on failure, but the
	// slot is always present.
	Answer string `json:"answer"`

	// Confirmed is true when the critic accepted the answer (code mode)
	// or the final-answer marker was found (chain-of-thought mode).
	Confirmed bool `json:"confirmed"`

	Status   SessionStatus `json:"status"`
	Decision ModeDecision  `json:"mode_decision"`

	// Err carries diagnostic text for errored sessions.
	Err string `json:"error,omitempty"`

	// Events is the telemetry snapshot taken when the call returned.
	Events []Event `json:"events"`

	Duration time.Duration `json:"duration"`
}

// Options is the recognized configuration surface of a solve session.
type Options struct {
	// MaxIterations bounds the code solver loop (default 8).
	MaxIterations int

	// Temperature, TopP and MaxTokens are passed through to the model.
	Temperature float64
	TopP        float64
	MaxTokens   int

	// MaxExecutionTime bounds each sandbox run (default 10s).
	MaxExecutionTime time.Duration

	// Interactive enables the human feedback gate.
	Interactive bool

	// CustomRules is appended verbatim to generation and critic prompts.
	CustomRules string

	// Stream enables token streaming; tokens are delivered to TokenSink.
	Stream bool

	// TokenSink receives incremental tokens: role is "solver" or
	// "critic", iteration is 0 for calls outside the code loop.
	TokenSink func(role string, iteration int, token string)
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 8
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if o.TopP <= 0 {
		o.TopP = 1.0
	}
	if o.MaxExecutionTime <= 0 {
		o.MaxExecutionTime = 10 * time.Second
	}
	return o
}
