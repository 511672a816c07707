package pips

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// defaultRetainFinished bounds how many terminal sessions the registry
// keeps around for later inspection. Running sessions are never evicted.
const defaultRetainFinished = 128

// Service runs solve sessions in the background and routes feedback and
// interrupt signals to them by id. Sessions run one control flow each;
// concurrency exists only across sessions.
type Service struct {
	orch   *Orchestrator
	logger *slog.Logger

	mu             sync.Mutex
	sessions       map[string]*Session
	retainFinished int
	wg             sync.WaitGroup
}

// NewService creates a service around an orchestrator.
func NewService(orch *Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orch:           orch,
		logger:         logger,
		sessions:       make(map[string]*Session),
		retainFinished: defaultRetainFinished,
	}
}

// SessionSummary is the read-only listing view of a session.
type SessionSummary struct {
	ID         string        `json:"id"`
	Status     SessionStatus `json:"status"`
	Problem    string        `json:"problem"`
	CreatedAt  time.Time     `json:"created_at"`
	Iterations int           `json:"iterations"`
}

// StartSolve validates the input, registers a session and runs it in
// the background. The session is returned immediately; progress is
// observed through its telemetry stream.
func (s *Service) StartSolve(ctx context.Context, input RawInput, opts Options) (*Session, error) {
	sess, err := s.orch.NewSession(input)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.orch.Run(ctx, sess, opts)
		s.logger.Info("session finished", "session", sess.ID, "status", res.Status, "duration", res.Duration)
		s.evictFinished()
	}()

	return sess, nil
}

// Get looks up a session by id.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// SubmitFeedback delivers a checkpoint response to a suspended session.
// Rejected with a protocol error when the session is unknown or not
// awaiting feedback; session state is never touched on rejection.
func (s *Service) SubmitFeedback(id string, resp FeedbackResponse) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.SubmitFeedback(resp)
}

// RequestInterrupt signals a best-effort abort of a running session.
func (s *Service) RequestInterrupt(id string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.RequestInterrupt()
}

// List returns summaries of all known sessions, newest first.
func (s *Service) List() []SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, SessionSummary{
			ID:         sess.ID,
			Status:     sess.Status(),
			Problem:    truncate(sess.Input.Text, 120),
			CreatedAt:  sess.CreatedAt,
			Iterations: len(sess.Iterations()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// evictFinished drops the oldest terminal sessions once more than
// retainFinished of them have accumulated, so a long-running server
// does not grow its registry without bound.
func (s *Service) evictFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Status().Terminal() {
			finished = append(finished, sess)
		}
	}
	if len(finished) <= s.retainFinished {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CreatedAt.Before(finished[j].CreatedAt) })
	for _, sess := range finished[:len(finished)-s.retainFinished] {
		delete(s.sessions, sess.ID)
		s.logger.Debug("session evicted", "session", sess.ID, "status", sess.Status())
	}
}

// Wait blocks until all background sessions finish. Intended for
// shutdown paths.
func (s *Service) Wait() {
	s.wg.Wait()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
