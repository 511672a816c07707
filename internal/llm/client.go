// Package llm provides a uniform client interface over hosted LLM providers.
package llm

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role Role
	Text string

	// ImageB64 is an optional base64-encoded image attached to the message.
	ImageB64 string

	// ImageMIME is the media type of ImageB64 (e.g. "image/jpeg").
	ImageMIME string
}

// Request describes a single model call.
type Request struct {
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// TokenFunc receives incremental tokens during a streamed call.
type TokenFunc func(token string)

// Client is the uniform call interface over a remote LLM.
//
// Stream must return exactly the text that would have been returned by
// Complete for the same provider response: the assembled text is the
// concatenation of every token delivered to the sink.
type Client interface {
	// Complete sends the request and returns the full response text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream sends the request and delivers tokens to emit as they
	// arrive, then returns the assembled full text.
	Stream(ctx context.Context, req Request, emit TokenFunc) (string, error)
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// SystemMessage builds a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// AssistantMessage builds an assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}
