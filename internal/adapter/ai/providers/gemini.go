package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint; used by tests.
	BaseURL string
}

// Gemini implements domain.LLMGateway with the Google GenAI SDK.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL, APIVersion: "v1beta"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("op=gemini.NewClient: %w", err)
	}
	return &Gemini{client: client, model: resolveModel(cfg.Model, "gemini-2.0-flash"), maxTokens: cfg.MaxTokens}, nil
}

func (p *Gemini) Generate(ctx domain.Context, prompt string) (string, error) {
	temp := float32(0.2)
	gc := &genai.GenerateContentConfig{
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}
	if p.maxTokens > 0 {
		gc.MaxOutputTokens = int32(p.maxTokens)
	}
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), gc)
	if err != nil {
		return "", mapGeminiError(err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty gemini candidate", domain.ErrUpstreamUnavailable)
	}
	return text, nil
}

func mapGeminiError(err error) error {
	// the SDK returns APIError by value; older releases used a pointer
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus("gemini", apiErr.Code, apiErr.Message, nil)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return mapStatus("gemini", apiErrPtr.Code, apiErrPtr.Message, nil)
	}
	return fmt.Errorf("%w: gemini: %w", domain.ErrUpstreamUnavailable, err)
}
