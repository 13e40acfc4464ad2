package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"repopulse/internal/apierr"
)

// ClaudeProvider calls Anthropic's Messages API.
type ClaudeProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClaudeProvider creates a provider for the given API key. An empty
// model uses the current Sonnet release.
func NewClaudeProvider(apiKey, model string, maxTokens int) *ClaudeProvider {
	m := anthropic.Model("claude-sonnet-4-5-20250929")
	if model != "" {
		m = anthropic.Model(model)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     m,
		maxTokens: int64(maxTokens),
	}
}

// Name implements Provider.
func (p *ClaudeProvider) Name() string {
	return "claude"
}

// Complete implements Provider.
func (p *ClaudeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		var aerr *anthropic.Error
		if errors.As(err, &aerr) {
			return "", apierr.FromStatus(CircuitName, aerr.StatusCode, aerr.Error())
		}
		return "", apierr.Wrap(CircuitName, err)
	}

	if len(message.Content) == 0 {
		return "", fmt.Errorf("claude api returned empty response")
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", fmt.Errorf("claude api returned unexpected response type")
	}
	return textBlock.Text, nil
}
