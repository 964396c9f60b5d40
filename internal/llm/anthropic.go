package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic completes prompts with the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
}

// NewAnthropic builds an Anthropic completer.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrNoAPIKey)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens(cfg)),
		system:    strings.TrimSpace(cfg.SystemPrompt),
	}, nil
}

func (a *Anthropic) Name() string {
	return ProviderAnthropic
}

// Complete sends prompt as a single user message and returns the first text block.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyCompletion
}
