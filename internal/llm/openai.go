package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAI completes prompts with the chat completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	system    string
}

// NewOpenAI builds an OpenAI-compatible completer.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY", ErrNoAPIKey)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens(cfg),
		system:    strings.TrimSpace(cfg.SystemPrompt),
	}, nil
}

func (o *OpenAI) Name() string {
	return ProviderOpenAI
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
