package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Client that returns queued responses, for
// tests and dry runs. Responses are consumed in order; a response may be
// an error instead of text.
type MockClient struct {
	mu        sync.Mutex
	responses []mockResponse
	requests  []Request

	// ChunkSize controls how Stream splits responses into tokens.
	// Zero means 4 bytes per token.
	ChunkSize int
}

type mockResponse struct {
	text string
	err  error
}

// NewMockClient creates a mock client with the given scripted responses.
func NewMockClient(responses ...string) *MockClient {
	m := &MockClient{}
	for _, r := range responses {
		m.responses = append(m.responses, mockResponse{text: r})
	}
	return m
}

// QueueResponse appends a scripted text response.
func (m *MockClient) QueueResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{text: text})
}

// QueueError appends a scripted error response.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{err: err})
}

// Requests returns a copy of all requests seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.next(req)
}

// Stream implements Client, splitting the scripted response into chunks.
func (m *MockClient) Stream(ctx context.Context, req Request, emit TokenFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := m.next(req)
	if err != nil {
		return "", err
	}

	size := m.ChunkSize
	if size <= 0 {
		size = 4
	}
	if emit != nil {
		for i := 0; i < len(text); i += size {
			end := min(i+size, len(text))
			emit(text[i:end])
		}
	}
	return text, nil
}

func (m *MockClient) next(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mock client: no responses left (call %d)", len(m.requests))
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	if resp.err != nil {
		return "", resp.err
	}
	return resp.text, nil
}

var _ Client = (*MockClient)(nil)
