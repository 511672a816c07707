// Package sandbox runs untrusted generated code in a subprocess under a
// wall-clock timeout.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one code execution. Ordinary code failures
// (exceptions, timeouts) are reported here, never as a Go error.
type Result struct {
	Stdout      string        `json:"stdout"`
	ReturnValue string        `json:"return_value"`
	Error       string        `json:"error,omitempty"`
	TimedOut    bool          `json:"timed_out"`
	Duration    time.Duration `json:"duration"`
}

// Executor runs a piece of code and reports what happened.
type Executor interface {
	// Execute runs code under the given wall-clock timeout. The returned
	// error is reserved for executor-internal failures (interpreter
	// missing, harness broken); code-level failures land in Result.
	Execute(ctx context.Context, code string, timeout time.Duration) (Result, error)
}

// PythonExecutor executes candidate programs with a fresh Python
// subprocess per call.
type PythonExecutor struct {
	pythonPath string
	runnerPath string
	workDir    string
}

// Options configures the Python executor.
type Options struct {
	// PythonPath overrides the interpreter (default python3).
	PythonPath string

	// WorkDir sets the working directory for executions. Defaults to a
	// temp directory so generated code cannot casually read the host cwd.
	WorkDir string
}

// NewPythonExecutor creates an executor backed by the embedded harness.
func NewPythonExecutor(opts Options) (*PythonExecutor, error) {
	if opts.PythonPath == "" {
		opts.PythonPath = "python3"
	}

	if opts.WorkDir == "" {
		dir, err := os.MkdirTemp("", "pips-exec-")
		if err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		opts.WorkDir = dir
	}

	runnerPath, err := extractRunner()
	if err != nil {
		return nil, fmt.Errorf("extract runner: %w", err)
	}

	return &PythonExecutor{
		pythonPath: opts.PythonPath,
		runnerPath: runnerPath,
		workDir:    opts.WorkDir,
	}, nil
}

// Execute implements Executor.
func (e *PythonExecutor) Execute(ctx context.Context, code string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	cmd := exec.CommandContext(runCtx, e.pythonPath, "-u", e.runnerPath)
	cmd.Dir = e.workDir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		slog.Debug("sandbox execution timed out", "timeout", timeout)
		return Result{
			Stdout:   stdout.String(),
			Error:    fmt.Sprintf("execution timed out after %s", timeout),
			TimedOut: true,
			Duration: elapsed,
		}, nil
	}
	if ctx.Err() != nil {
		return Result{Duration: elapsed}, ctx.Err()
	}

	// The harness reports code failures in its JSON result, so a non-zero
	// exit with no result line means the harness itself broke.
	line := lastLine(stdout.String())
	var res Result
	if line == "" || json.Unmarshal([]byte(line), &res) != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" && runErr != nil {
			detail = runErr.Error()
		}
		return Result{}, fmt.Errorf("sandbox harness failure: %s", detail)
	}

	res.Duration = elapsed
	return res, nil
}

// lastLine returns the final non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

var _ Executor = (*PythonExecutor)(nil)
