// Package llm forwards single-turn prompts to a hosted language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderEcho      = "echo"

	DefaultAnthropicModel = "claude-3-opus-20240229"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultMaxTokens      = 1024
)

var (
	// ErrNoAPIKey indicates the selected provider needs a key that is not set.
	ErrNoAPIKey = errors.New("llm: API key required")
	// ErrEmptyCompletion indicates the model returned no text.
	ErrEmptyCompletion = errors.New("llm: completion contained no text")
)

// Completer turns one user prompt into one text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config selects and tunes a provider.
type Config struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
}

// New builds the configured provider.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderAnthropic:
		return NewAnthropic(cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderEcho:
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// Echo answers without a network call.
type Echo struct{}

func (Echo) Complete(_ context.Context, prompt string) (string, error) {
	return "Received: " + prompt, nil
}

func (Echo) Name() string {
	return ProviderEcho
}

func maxTokens(cfg Config) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return DefaultMaxTokens
}
