package llm

import (
	"context"
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
)

// AnthropicClient implements Client using Claude via Fantasy.
//
// The Anthropic path is text-only and does not stream tokens: Stream
// delegates to Complete and delivers the full text in one emission, the
// same degradation the assembled-text contract allows.
type AnthropicClient struct {
	provider fantasy.Provider
	model    string
}

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API.
	APIKey string

	// BaseURL overrides the default API endpoint.
	BaseURL string

	// Model is the model identifier (default claude-3-5-haiku-latest).
	Model string
}

// NewAnthropicClient creates a new Anthropic-backed client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	provider, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic provider: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	return &AnthropicClient{provider: provider, model: model}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	lm, err := c.provider.LanguageModel(ctx, c.model)
	if err != nil {
		return "", fmt.Errorf("get language model: %w", err)
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	call := fantasy.Call{
		Prompt:          fantasy.Prompt{fantasy.NewUserMessage(flatten(req.Messages))},
		MaxOutputTokens: &maxTokens,
	}

	resp, err := lm.Generate(ctx, call)
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	text := resp.Content.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from %s", c.model)
	}
	return text, nil
}

// Stream implements Client. Delivers the full text in one emission.
func (c *AnthropicClient) Stream(ctx context.Context, req Request, emit TokenFunc) (string, error) {
	text, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if emit != nil {
		emit(text)
	}
	return text, nil
}

// flatten folds a role-tagged conversation into a single user prompt.
// Image payloads are dropped on this path.
func flatten(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Role {
		case RoleSystem:
			sb.WriteString(m.Text)
		case RoleAssistant:
			sb.WriteString("Previous response:\n")
			sb.WriteString(m.Text)
		default:
			sb.WriteString(m.Text)
		}
	}
	return sb.String()
}
