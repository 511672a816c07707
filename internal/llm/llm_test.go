package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_Complete(t *testing.T) {
	m := NewMockClient("first", "second")

	out, err := m.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = m.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	_, err = m.Complete(context.Background(), Request{})
	assert.Error(t, err)
}

func TestMockClient_QueueError(t *testing.T) {
	m := NewMockClient()
	m.QueueError(errors.New("rate limited"))

	_, err := m.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestMockClient_StreamAssemblesIdenticalText(t *testing.T) {
	const text = "streaming and non-streaming must assemble the same bytes"

	m := NewMockClient(text, text)
	m.ChunkSize = 3

	var tokens []string
	streamed, err := m.Stream(context.Background(), Request{}, func(tok string) {
		tokens = append(tokens, tok)
	})
	require.NoError(t, err)

	full, err := m.Complete(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, full, streamed)
	assert.Equal(t, streamed, strings.Join(tokens, ""))
	assert.Greater(t, len(tokens), 1)
}

func TestMockClient_RecordsRequests(t *testing.T) {
	m := NewMockClient("ok")

	req := Request{
		Messages:    []Message{SystemMessage("sys"), UserMessage("question")},
		Temperature: 0.7,
		MaxTokens:   128,
	}
	_, err := m.Complete(context.Background(), req)
	require.NoError(t, err)

	seen := m.Requests()
	require.Len(t, seen, 1)
	assert.Equal(t, RoleSystem, seen[0].Messages[0].Role)
	assert.Equal(t, "question", seen[0].Messages[1].Text)
	assert.Equal(t, 128, seen[0].MaxTokens)
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{Model: "gpt-4o"})
	assert.Error(t, err)

	_, err = NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})
	assert.Error(t, err)

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.Model())
}

func TestOpenAIClient_BuildRequestWithImage(t *testing.T) {
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o"})
	require.NoError(t, err)

	req := c.buildRequest(Request{
		Messages: []Message{
			SystemMessage("instructions"),
			{Role: RoleUser, Text: "what is in the image?", ImageB64: "aGVsbG8=", ImageMIME: "image/png"},
		},
		Temperature: 0.2,
		MaxTokens:   256,
	})

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "instructions", req.Messages[0].Content)
	require.Len(t, req.Messages[1].MultiContent, 2)
	assert.Contains(t, req.Messages[1].MultiContent[0].ImageURL.URL, "data:image/png;base64,")
	assert.Equal(t, "what is in the image?", req.Messages[1].MultiContent[1].Text)
	assert.Equal(t, 256, req.MaxTokens)
}

func TestFlatten(t *testing.T) {
	out := flatten([]Message{
		SystemMessage("rules"),
		UserMessage("question"),
		AssistantMessage("earlier answer"),
	})

	assert.Contains(t, out, "rules")
	assert.Contains(t, out, "question")
	assert.Contains(t, out, "Previous response:\nearlier answer")
}
