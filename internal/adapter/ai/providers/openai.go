package providers

import (
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// OpenAIConfig configures the OpenAI (or compatible) backend.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAI implements domain.LLMGateway with go-openai.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(c),
		model:     resolveModel(cfg.Model, openai.GPT4oMini),
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (p *OpenAI) Generate(ctx domain.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               p.model,
		MaxCompletionTokens: p.maxTokens,
		Temperature:         0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in openai response", domain.ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus("openai", apiErr.HTTPStatusCode, "", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return mapStatus("openai", reqErr.HTTPStatusCode, "", err)
	}
	return fmt.Errorf("%w: openai: %w", domain.ErrUpstreamUnavailable, err)
}
