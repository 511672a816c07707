package sandbox

import (
	"context"
	"sync"
	"time"
)

// MockExecutor is a scripted Executor for tests. Results are consumed
// in order; when the queue is empty the Default result is returned.
type MockExecutor struct {
	mu      sync.Mutex
	results []Result
	errs    []error
	codes   []string

	// Default is returned once the scripted queue is exhausted.
	Default Result
}

// NewMockExecutor creates a mock executor with the given scripted results.
func NewMockExecutor(results ...Result) *MockExecutor {
	m := &MockExecutor{}
	for _, r := range results {
		m.results = append(m.results, r)
		m.errs = append(m.errs, nil)
	}
	return m
}

// QueueResult appends a scripted result.
func (m *MockExecutor) QueueResult(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	m.errs = append(m.errs, nil)
}

// QueueError appends a scripted executor-internal error.
func (m *MockExecutor) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, Result{})
	m.errs = append(m.errs, err)
}

// Codes returns every code string executed so far.
func (m *MockExecutor) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.codes))
	copy(out, m.codes)
	return out
}

// Execute implements Executor.
func (m *MockExecutor) Execute(ctx context.Context, code string, timeout time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.codes = append(m.codes, code)
	if len(m.results) == 0 {
		return m.Default, nil
	}
	res, err := m.results[0], m.errs[0]
	m.results = m.results[1:]
	m.errs = m.errs[1:]
	return res, err
}

var _ Executor = (*MockExecutor)(nil)
