package pips

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for operations on unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotAwaitingFeedback is returned when feedback arrives while the
	// session is not suspended at a checkpoint.
	ErrNotAwaitingFeedback = errors.New("session is not awaiting feedback")

	// ErrSessionFinished is returned for signals sent to a session that
	// already reached a terminal status.
	ErrSessionFinished = errors.New("session already finished")
)

// Session is the aggregate root for one problem-solving run. It is
// mutated only by the single control flow executing its solver;
// everything observers read is a copy.
type Session struct {
	ID        string
	Input     RawInput
	CreatedAt time.Time

	telemetry *telemetryLog

	mu         sync.Mutex
	status     SessionStatus
	decision   ModeDecision
	iterations []Iteration
	result     *Result

	// feedbackCh carries at most one pending response; the solver drains
	// it at each checkpoint.
	feedbackCh chan FeedbackResponse

	// pendingRequest is set while status is awaiting_feedback.
	pendingRequest *FeedbackRequest

	interruptCh   chan struct{}
	interruptOnce sync.Once
}

func newSession(input RawInput) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Input:       input,
		CreatedAt:   time.Now(),
		telemetry:   newTelemetryLog(),
		status:      StatusPending,
		feedbackCh:  make(chan FeedbackResponse, 1),
		interruptCh: make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// setStatus transitions the session. Transitions are monotonic: a
// terminal status is never left and pending is never re-entered.
func (s *Session) setStatus(next SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() || next == StatusPending && s.status != StatusPending {
		return
	}
	s.status = next
}

func (s *Session) setDecision(d ModeDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision = d
}

// Decision returns the mode decision recorded for this session.
func (s *Session) Decision() ModeDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}

func (s *Session) appendIteration(it Iteration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations = append(s.iterations, it)
}

// Iterations returns a copy of the iteration history.
func (s *Session) Iterations() []Iteration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Iteration, len(s.iterations))
	copy(out, s.iterations)
	return out
}

func (s *Session) setResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &r
}

// Result returns the final result, or nil while the session is running.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// Events returns a snapshot of the telemetry stream.
func (s *Session) Events() []Event {
	return s.telemetry.snapshot()
}

// Subscribe attaches a live telemetry observer. The cancel func must be
// called when the observer disconnects.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.telemetry.subscribe()
}

// PendingFeedback returns the outstanding checkpoint request, or nil
// when the session is not suspended.
func (s *Session) PendingFeedback() *FeedbackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingRequest == nil {
		return nil
	}
	req := *s.pendingRequest
	return &req
}

// RequestInterrupt signals a best-effort abort. The solver observes the
// signal at its next safe checkpoint; in-flight calls are allowed to
// finish. Interrupting a finished session is a protocol error.
func (s *Session) RequestInterrupt() error {
	s.mu.Lock()
	terminal := s.status.Terminal()
	s.mu.Unlock()
	if terminal {
		return ErrSessionFinished
	}
	s.interruptOnce.Do(func() { close(s.interruptCh) })
	return nil
}

// interrupted reports whether an interrupt has been requested.
func (s *Session) interrupted() bool {
	select {
	case <-s.interruptCh:
		return true
	default:
		return false
	}
}

// SubmitFeedback delivers a checkpoint response. Valid only while the
// session is awaiting feedback; otherwise the call is rejected without
// touching session state.
func (s *Session) SubmitFeedback(resp FeedbackResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusAwaitingFeedback {
		return fmt.Errorf("%w (status %s)", ErrNotAwaitingFeedback, s.status)
	}

	select {
	case s.feedbackCh <- resp:
		return nil
	default:
		return fmt.Errorf("%w: feedback already pending", ErrNotAwaitingFeedback)
	}
}

// awaitFeedback suspends at a checkpoint until a response, an interrupt
// or context cancellation arrives. No local timeout: human think-time is
// deliberately unbounded.
func (s *Session) awaitFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResponse, bool) {
	s.mu.Lock()
	s.pendingRequest = &req
	if !s.status.Terminal() {
		s.status = StatusAwaitingFeedback
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pendingRequest = nil
		if s.status == StatusAwaitingFeedback {
			s.status = StatusSolving
		}
		s.mu.Unlock()
	}()

	select {
	case resp := <-s.feedbackCh:
		return resp, true
	case <-s.interruptCh:
		return FeedbackResponse{}, false
	case <-ctx.Done():
		return FeedbackResponse{}, false
	}
}
