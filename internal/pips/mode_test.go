package pips

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/pips/internal/llm"
)

func TestParseProbabilityScores(t *testing.T) {
	t.Run("bracketed list inside prose", func(t *testing.T) {
		raw := "After reflection...\nFINAL ANSWER: [0.9, 0.8, 0.7, 0.9, 0.6, 0.8, 0.9, 0.7, 0.8, 0.9]"
		scores := parseProbabilityScores(raw)
		require.Len(t, scores, 10)
		assert.Equal(t, 0.9, scores[0])
	})

	t.Run("bare list", func(t *testing.T) {
		scores := parseProbabilityScores("[0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1]")
		require.Len(t, scores, 10)
	})

	t.Run("wrong count rejected", func(t *testing.T) {
		assert.Nil(t, parseProbabilityScores("FINAL ANSWER: [0.5, 0.5, 0.5]"))
	})

	t.Run("out of range rejected", func(t *testing.T) {
		assert.Nil(t, parseProbabilityScores("[0.5, 1.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5]"))
	})

	t.Run("garbage rejected", func(t *testing.T) {
		assert.Nil(t, parseProbabilityScores("I cannot decide."))
		assert.Nil(t, parseProbabilityScores(""))
	})

	t.Run("later valid list wins over earlier invalid", func(t *testing.T) {
		raw := "[1, 2, 3] then FINAL ANSWER: [0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2]"
		scores := parseProbabilityScores(raw)
		require.Len(t, scores, 10)
		assert.Equal(t, 0.2, scores[0])
	})
}

func TestModeSelector_Select(t *testing.T) {
	logger := slog.Default()

	t.Run("high scores pick code", func(t *testing.T) {
		client := llm.NewMockClient("FINAL ANSWER: [0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9]")
		m := &modeSelector{client: client, logger: logger}

		d := m.Select(context.Background(), RawInput{Text: "sum the first 10 primes"})
		assert.True(t, d.UseCode)
		assert.InDelta(t, 0.9, d.Average, 1e-9)
		require.Len(t, d.Scores, 10)
	})

	t.Run("low scores pick chain-of-thought", func(t *testing.T) {
		client := llm.NewMockClient("FINAL ANSWER: [0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1]")
		m := &modeSelector{client: client, logger: logger}

		d := m.Select(context.Background(), RawInput{Text: "write a poem"})
		assert.False(t, d.UseCode)
	})

	t.Run("exactly 0.5 stays conservative", func(t *testing.T) {
		client := llm.NewMockClient("FINAL ANSWER: [0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5]")
		m := &modeSelector{client: client, logger: logger}

		d := m.Select(context.Background(), RawInput{Text: "ambiguous"})
		assert.False(t, d.UseCode)
	})

	t.Run("parse failure fails closed", func(t *testing.T) {
		client := llm.NewMockClient("I would rather not commit to numbers.")
		m := &modeSelector{client: client, logger: logger}

		d := m.Select(context.Background(), RawInput{Text: "anything"})
		assert.False(t, d.UseCode)
		assert.Nil(t, d.Scores)
		assert.Contains(t, d.Rationale, "could not parse")
	})

	t.Run("transport failure fails closed", func(t *testing.T) {
		client := llm.NewMockClient()
		client.QueueError(errors.New("rate limited"))
		m := &modeSelector{client: client, logger: logger}

		d := m.Select(context.Background(), RawInput{Text: "anything"})
		assert.False(t, d.UseCode)
		assert.Contains(t, d.Rationale, "rate limited")
	})
}
