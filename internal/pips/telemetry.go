package pips

import (
	"sync"
	"time"
)

// EventType identifies one kind of telemetry event.
type EventType string

const (
	EventModeSelected       EventType = "mode_selected"
	EventIterationStarted   EventType = "iteration_started"
	EventCodeGenerated      EventType = "code_generated"
	EventExecutionResult    EventType = "execution_result"
	EventCriticFeedback     EventType = "critic_feedback"
	EventAwaitingFeedback   EventType = "awaiting_feedback"
	EventFeedbackReceived   EventType = "feedback_received"
	EventIterationAccepted  EventType = "iteration_accepted"
	EventSessionFinished    EventType = "session_finished"
	EventSessionInterrupted EventType = "session_interrupted"
	EventSessionErrored     EventType = "session_errored"
)

// Event is one timestamped telemetry record. Events are appended in the
// wall-clock order they occur and never reordered.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Iteration int            `json:"iteration,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// telemetryLog is an append-only event stream with subscriber fan-out.
// Observers receive copies; nothing hands out a mutable reference into
// the live session.
type telemetryLog struct {
	mu     sync.Mutex
	events []Event
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newTelemetryLog() *telemetryLog {
	return &telemetryLog{subs: make(map[int]chan Event)}
}

// append records an event and fans it out. Slow subscribers lose events
// rather than stalling the solve loop.
func (l *telemetryLog) append(typ EventType, iteration int, msg string, fields map[string]any) {
	e := Event{
		Type:      typ,
		Timestamp: time.Now(),
		Iteration: iteration,
		Message:   msg,
		Fields:    fields,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// snapshot returns a copy of all events appended so far.
func (l *telemetryLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// subscribe registers a live event channel. The returned cancel func
// must be called when the observer is done. Events appended before the
// subscription are not replayed; use snapshot for catch-up.
func (l *telemetryLog) subscribe() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, 256)
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.nextID
	l.nextID++
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// close ends the stream; all subscriber channels are closed.
func (l *telemetryLog) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}
