package pips

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/pips/internal/llm"
	"github.com/rand/pips/internal/sandbox"
)

const (
	codeModeResponse = "Reflection on all ten criteria.\nFINAL ANSWER: [0.9, 0.8, 0.9, 0.9, 0.8, 0.9, 0.9, 0.8, 0.9, 0.9]"
	cotModeResponse  = "Reflection on all ten criteria.\nFINAL ANSWER: [0.1, 0.2, 0.1, 0.1, 0.2, 0.1, 0.1, 0.2, 0.1, 0.1]"

	primeGeneration = "```json\n{\"primes\": [2, 3, 5, 7, 11, 13, 17, 19, 23, 29]}\n```\n\nSum the listed primes.\n\n```python\ndef solve(symbols):\n    return sum(symbols[\"primes\"])\n```"

	acceptCritique = "No issues found.\n\n```json\n{\"accept\": true, \"summary\": \"correct\"}\n```"
	rejectCritique = "The result does not answer the question.\n\n```json\n{\"accept\": false, \"summary\": \"wrong output\"}\n```"
)

func newTestOrchestrator(client, critic llm.Client, exec sandbox.Executor) *Orchestrator {
	return NewOrchestrator(client, exec, WithCriticClient(critic))
}

func TestOrchestrator_PrimeSumAcceptedFirstIteration(t *testing.T) {
	client := llm.NewMockClient(codeModeResponse, primeGeneration)
	critic := llm.NewMockClient(acceptCritique)
	exec := sandbox.NewMockExecutor(sandbox.Result{ReturnValue: "129"})

	orch := newTestOrchestrator(client, critic, exec)
	sess, err := orch.NewSession(RawInput{Text: "What is the sum of the first 10 prime numbers?"})
	require.NoError(t, err)

	res := orch.Run(context.Background(), sess, Options{})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "129", res.Answer)
	assert.True(t, res.Confirmed)
	assert.True(t, res.Decision.UseCode)

	iters := sess.Iterations()
	require.Len(t, iters, 1)
	assert.Equal(t, 1, iters[0].Index)
	assert.True(t, iters[0].Accepted)
	assert.Equal(t, "129", iters[0].Execution.ReturnValue)

	// The symbol binding and solve call are appended to the executed code.
	codes := exec.Codes()
	require.Len(t, codes, 1)
	assert.Contains(t, codes[0], "def solve(symbols):")
	assert.Contains(t, codes[0], "answer = solve(symbols)")
}

func TestOrchestrator_TimeoutEveryIteration(t *testing.T) {
	maxIter := 3
	client := llm.NewMockClient(codeModeResponse, primeGeneration, primeGeneration, primeGeneration)
	critic := llm.NewMockClient(rejectCritique, rejectCritique, rejectCritique)
	exec := sandbox.NewMockExecutor()
	exec.Default = sandbox.Result{TimedOut: true, Error: "execution timed out after 1s"}

	orch := newTestOrchestrator(client, critic, exec)
	sess, err := orch.NewSession(RawInput{Text: "run forever"})
	require.NoError(t, err)

	res := orch.Run(context.Background(), sess, Options{MaxIterations: maxIter})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.False(t, res.Confirmed)

	iters := sess.Iterations()
	require.Len(t, iters, maxIter)
	for i, it := range iters {
		assert.Equal(t, i+1, it.Index)
		assert.True(t, it.Execution.TimedOut)
	}

	var sawUnacceptedFinish bool
	for _, e := range res.Events {
		if e.Type == EventIterationAccepted && e.Fields["accepted"] == false {
			sawUnacceptedFinish = true
		}
	}
	assert.True(t, sawUnacceptedFinish)
}

func TestOrchestrator_AcceptOnExactIteration(t *testing.T) {
	// Rejected on 1 and 2, accepted on 3 out of a budget of 5.
	client := llm.NewMockClient(codeModeResponse, primeGeneration, primeGeneration, primeGeneration)
	critic := llm.NewMockClient(rejectCritique, rejectCritique, acceptCritique)
	exec := sandbox.NewMockExecutor()
	exec.Default = sandbox.Result{ReturnValue: "129"}

	orch := newTestOrchestrator(client, critic, exec)
	sess, err := orch.NewSession(RawInput{Text: "sum primes"})
	require.NoError(t, err)

	res := orch.Run(context.Background(), sess, Options{MaxIterations: 5})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Confirmed)

	iters := sess.Iterations()
	require.Len(t, iters, 3)
	assert.False(t, iters[0].Accepted)
	assert.False(t, iters[1].Accepted)
	assert.True(t, iters[2].Accepted)
}

func TestOrchestrator_CriticAcceptWithExecErrorKeepsRefining(t *testing.T) {
	// The critic approves but execution failed; acceptance requires both.
	client := llm.NewMockClient(codeModeResponse, primeGeneration, primeGeneration)
	critic := llm.NewMockClient(acceptCritique, acceptCritique)
	exec := sandbox.NewMockExecutor(
		sandbox.Result{Error: "NameError: name 'primes' is not defined"},
		sandbox.Result{ReturnValue: "129"},
	)

	orch := newTestOrchestrator(client, critic, exec)
	sess, err := orch.NewSession(RawInput{Text: "sum primes"})
	require.NoError(t, err)

	res := orch.Run(context.Background(), sess, Options{MaxIterations: 4})

	assert.True(t, res.Confirmed)
	require.Len(t, sess.Iterations(), 2)
	assert.False(t, sess.Iterations()[0].Accepted)
	assert.True(t, sess.Iterations()[1].Accepted)
}

func TestOrchestrator_MissingCodeBlockTriggersRetry(t *testing.T) {
	client := llm.NewMockClient(codeModeResponse, "I will think about this problem first.", primeGeneration)
	critic := llm.NewMockClient(acceptCritique)
	exec := sandbox.NewMockExecutor(sandbox.Result{ReturnValue: "129"})

	orch := newTestOrchestrator(client, critic, exec)
	sess, err := orch.NewSession(RawInput{Text: "sum primes"})
	require.NoError(t, err)

	res := orch.Run(context.Background(), sess, Options{})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "129", res.Answer)

	iters := sess.Iterations()
	require.Len(t, iters, 2)
	assert.NotEmpty(t, iters[0].Err)
	assert.True(t, iters[1].Accepted)
}

func TestOrchestrator_FinishedDeclaration(t *testing.T) {
	// Iteration 2's generation declares the previous solution correct.
	client := llm.NewMockClient(codeModeResponse, primeGeneration, "FINISHED")
	critic := llm.NewMockClient(rejectCritique)
	exec := sandbox.NewMockExecutor()
	exec.Default = sandbox.Result{ReturnValue: "129"}

	orch := newTestOrchestrator(client, critic, exec)
	sess, err := orch.NewSession(RawInput{Text: "sum primes"})
	require.NoError(t, err)

	res := orch.Run(context.Background(), sess, Options{})

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "129", res.Answer)
	assert.True(t, res.Confirmed)
	require.Len(t, sess.Iterations(), 2)
	assert.True(t, sess.Iterations()[1].Accepted)
}

func TestOrchestrator_TransportFailureErrorsSession(t *testing.T) {
	client := llm.NewMockClient(codeModeResponse)
	client.QueueError(errors.New("provider unavailable"))
	critic := llm.NewMockClient()
	exec := sandbox.NewMockExecutor()

	orch := newTestOrchestrator(client, critic, exec)
	res := orch.Solve(context.Background(), RawInput{Text: "anything"}, Options{})

	assert.Equal(t, StatusErrored, res.Status)
	assert.Contains(t, res.Err, "provider unavailable")

	var sawErrored bool
	for _, e := range res.Events {
		if e.Type == EventSessionErrored {
			sawErrored = true
		}
	}
	assert.True(t, sawErrored)
}

func TestOrchestrator_EmptyInputRejected(t *testing.T) {
	orch := newTestOrchestrator(llm.NewMockClient(), llm.NewMockClient(), sandbox.NewMockExecutor())

	res := orch.Solve(context.Background(), RawInput{Text: "   "}, Options{})
	assert.Equal(t, StatusErrored, res.Status)
	assert.Contains(t, res.Err, "must not be empty")

	_, err := orch.NewSession(RawInput{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOrchestrator_ChainOfThought(t *testing.T) {
	t.Run("marker found", func(t *testing.T) {
		client := llm.NewMockClient(cotModeResponse, "Step 1: think.\nStep 2: conclude.\nFINAL ANSWER: 42")
		orch := newTestOrchestrator(client, llm.NewMockClient(), sandbox.NewMockExecutor())

		res := orch.Solve(context.Background(), RawInput{Text: "what is six times seven?"}, Options{})
		assert.Equal(t, StatusCompleted, res.Status)
		assert.Equal(t, "42", res.Answer)
		assert.True(t, res.Confirmed)
		assert.False(t, res.Decision.UseCode)
	})

	t.Run("missing marker degrades", func(t *testing.T) {
		client := llm.NewMockClient(cotModeResponse, "I believe the answer is 42 but I forgot the marker.")
		orch := newTestOrchestrator(client, llm.NewMockClient(), sandbox.NewMockExecutor())

		res := orch.Solve(context.Background(), RawInput{Text: "what is six times seven?"}, Options{})
		assert.Equal(t, StatusCompleted, res.Status)
		assert.False(t, res.Confirmed)
		assert.Contains(t, res.Answer, "42")
	})
}

func TestOrchestrator_NeverPanics(t *testing.T) {
	// A nil executor makes the code path panic; the boundary converts it
	// into an errored result.
	client := llm.NewMockClient(codeModeResponse, primeGeneration)
	orch := NewOrchestrator(client, nil)

	var res Result
	assert.NotPanics(t, func() {
		res = orch.Solve(context.Background(), RawInput{Text: "sum primes"}, Options{})
	})
	assert.Equal(t, StatusErrored, res.Status)
	assert.Contains(t, res.Err, "panic")
}

func TestOrchestrator_StreamingMatchesComplete(t *testing.T) {
	run := func(stream bool) Result {
		client := llm.NewMockClient(cotModeResponse, "Reasoning.\nFINAL ANSWER: 77")
		orch := newTestOrchestrator(client, llm.NewMockClient(), sandbox.NewMockExecutor())
		var tokens string
		opts := Options{Stream: stream}
		if stream {
			opts.TokenSink = func(role string, iteration int, tok string) { tokens += tok }
		}
		res := orch.Solve(context.Background(), RawInput{Text: "question"}, opts)
		if stream {
			assert.Contains(t, tokens, "FINAL ANSWER: 77")
		}
		return res
	}

	streamed := run(true)
	plain := run(false)
	assert.Equal(t, plain.Answer, streamed.Answer)
	assert.Equal(t, plain.Confirmed, streamed.Confirmed)
}

func TestOrchestrator_EventOrdering(t *testing.T) {
	client := llm.NewMockClient(codeModeResponse, primeGeneration)
	critic := llm.NewMockClient(acceptCritique)
	exec := sandbox.NewMockExecutor(sandbox.Result{ReturnValue: "129"})

	orch := newTestOrchestrator(client, critic, exec)
	res := orch.Solve(context.Background(), RawInput{Text: "sum primes"}, Options{})

	var types []EventType
	for _, e := range res.Events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{
		EventModeSelected,
		EventIterationStarted,
		EventCodeGenerated,
		EventExecutionResult,
		EventCriticFeedback,
		EventIterationAccepted,
		EventSessionFinished,
	}, types)

	for i := 1; i < len(res.Events); i++ {
		assert.False(t, res.Events[i].Timestamp.Before(res.Events[i-1].Timestamp))
	}
}

func TestOrchestrator_CancelledContextInterrupts(t *testing.T) {
	// A caller-side deadline surfaces as interrupted, not errored.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := llm.NewMockClient(codeModeResponse, primeGeneration)
	orch := newTestOrchestrator(client, llm.NewMockClient(), sandbox.NewMockExecutor())

	res := orch.Solve(ctx, RawInput{Text: "question"}, Options{})
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Empty(t, res.Err)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 8, o.MaxIterations)
	assert.Equal(t, 4096, o.MaxTokens)
	assert.Equal(t, 1.0, o.TopP)
	assert.Equal(t, 10*time.Second, o.MaxExecutionTime)
}
