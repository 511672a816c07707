package pips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryLog_AppendAndSnapshot(t *testing.T) {
	l := newTelemetryLog()
	l.append(EventModeSelected, 0, "code", nil)
	l.append(EventIterationStarted, 1, "", nil)

	snap := l.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, EventModeSelected, snap[0].Type)
	assert.Equal(t, EventIterationStarted, snap[1].Type)
	assert.Equal(t, 1, snap[1].Iteration)

	// Snapshots are copies; later appends do not show up.
	l.append(EventSessionFinished, 0, "", nil)
	assert.Len(t, snap, 2)
	assert.Len(t, l.snapshot(), 3)
}

func TestTelemetryLog_Subscribe(t *testing.T) {
	l := newTelemetryLog()
	ch, cancel := l.subscribe()
	defer cancel()

	l.append(EventIterationStarted, 1, "", nil)
	e := <-ch
	assert.Equal(t, EventIterationStarted, e.Type)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestTelemetryLog_CloseEndsSubscribers(t *testing.T) {
	l := newTelemetryLog()
	ch, cancel := l.subscribe()
	defer cancel()

	l.close()
	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields a closed channel immediately.
	ch2, cancel2 := l.subscribe()
	defer cancel2()
	_, open = <-ch2
	assert.False(t, open)
}

func TestTelemetryLog_SlowSubscriberDropsNotBlocks(t *testing.T) {
	l := newTelemetryLog()
	ch, cancel := l.subscribe()
	defer cancel()

	// Overfill the subscriber buffer; appends must not block.
	for i := 0; i < 1000; i++ {
		l.append(EventIterationStarted, i, "", nil)
	}
	assert.Len(t, l.snapshot(), 1000)
	assert.Equal(t, 256, len(ch))
}

func TestSessionStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusSolving.Terminal())
	assert.False(t, StatusAwaitingFeedback.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusInterrupted.Terminal())
	assert.True(t, StatusErrored.Terminal())
}

func TestSession_MonotonicStatus(t *testing.T) {
	s := newSession(RawInput{Text: "q"})
	assert.Equal(t, StatusPending, s.Status())

	s.setStatus(StatusSolving)
	assert.Equal(t, StatusSolving, s.Status())

	// Re-entering pending is forbidden.
	s.setStatus(StatusPending)
	assert.Equal(t, StatusSolving, s.Status())

	// Terminal states stick.
	s.setStatus(StatusCompleted)
	s.setStatus(StatusSolving)
	assert.Equal(t, StatusCompleted, s.Status())
}

func TestSession_SubmitFeedbackWhileSolving(t *testing.T) {
	s := newSession(RawInput{Text: "q"})
	s.setStatus(StatusSolving)

	err := s.SubmitFeedback(FeedbackResponse{})
	assert.ErrorIs(t, err, ErrNotAwaitingFeedback)
	assert.Equal(t, StatusSolving, s.Status())
}
