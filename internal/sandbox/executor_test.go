package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastLine(t *testing.T) {
	assert.Equal(t, `{"a":1}`, lastLine("noise\n{\"a\":1}\n"))
	assert.Equal(t, "only", lastLine("only"))
	assert.Equal(t, "", lastLine("\n\n"))
	assert.Equal(t, "x", lastLine("x\n   \n"))
}

func TestMockExecutor_ScriptedResults(t *testing.T) {
	m := NewMockExecutor(
		Result{ReturnValue: "129", Stdout: "done\n"},
		Result{Error: "NameError: name 'x' is not defined"},
	)

	res, err := m.Execute(context.Background(), "answer = 129", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "129", res.ReturnValue)
	assert.Empty(t, res.Error)

	res, err = m.Execute(context.Background(), "answer = x", time.Second)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "NameError")

	// Queue exhausted: falls back to Default.
	res, err = m.Execute(context.Background(), "pass", time.Second)
	require.NoError(t, err)
	assert.Equal(t, m.Default, res)

	assert.Len(t, m.Codes(), 3)
}

func TestMockExecutor_TimeoutScript(t *testing.T) {
	m := NewMockExecutor(Result{TimedOut: true, Error: "execution timed out after 1s"})

	res, err := m.Execute(context.Background(), "while True: pass", time.Second)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.NotEmpty(t, res.Error)
}

func TestMockExecutor_CancelledContext(t *testing.T) {
	m := NewMockExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Execute(ctx, "pass", time.Second)
	assert.Error(t, err)
}

// Integration coverage against a real interpreter; skipped when python3
// is unavailable on the host.
func TestPythonExecutor_Execute(t *testing.T) {
	e, err := NewPythonExecutor(Options{})
	if err != nil {
		t.Skipf("python executor unavailable: %v", err)
	}

	t.Run("return value and stdout", func(t *testing.T) {
		res, err := e.Execute(context.Background(), "print('hi')\nanswer = 2 + 3", 5*time.Second)
		if err != nil {
			t.Skipf("python3 not runnable: %v", err)
		}
		assert.Equal(t, "5", res.ReturnValue)
		assert.Equal(t, "hi\n", res.Stdout)
		assert.Empty(t, res.Error)
		assert.False(t, res.TimedOut)
	})

	t.Run("exception reported not raised", func(t *testing.T) {
		res, err := e.Execute(context.Background(), "answer = 1 / 0", 5*time.Second)
		if err != nil {
			t.Skipf("python3 not runnable: %v", err)
		}
		assert.Contains(t, res.Error, "ZeroDivisionError")
	})

	t.Run("timeout flagged", func(t *testing.T) {
		res, err := e.Execute(context.Background(), "while True:\n    pass", 500*time.Millisecond)
		if err != nil {
			t.Skipf("python3 not runnable: %v", err)
		}
		assert.True(t, res.TimedOut)
		assert.Contains(t, res.Error, "timed out")
	})
}
