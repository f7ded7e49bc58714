package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// OpenRouterConfig configures the OpenRouter chat completions backend.
type OpenRouterConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Referer   string
	Title     string
	MaxTokens int
	// Fallbacks are passed as the "models" routing list (at most 3 are sent).
	Fallbacks []string
}

// OpenRouter talks to an OpenAI-compatible chat endpoint over plain HTTP.
type OpenRouter struct {
	cfg OpenRouterConfig
	hc  *http.Client
}

// NewOpenRouter constructs the provider. The HTTP client has no timeout of its own;
// the gateway bounds every call through the context.
func NewOpenRouter(cfg OpenRouterConfig) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENROUTER_API_KEY missing", domain.ErrInvalidArgument)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Model = resolveModel(cfg.Model, "openrouter/auto")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if len(cfg.Fallbacks) > 3 {
		cfg.Fallbacks = cfg.Fallbacks[:3]
	}
	return &OpenRouter{
		cfg: cfg,
		hc:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Models      []string      `json:"models,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenRouter) Generate(ctx domain.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       p.cfg.Model,
		Models:      p.cfg.Fallbacks,
		Temperature: 0.2,
		MaxTokens:   p.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("op=openrouter.marshal: %w", err)
	}
	endpoint := p.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrInvalidArgument, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", p.cfg.Referer)
	}
	if p.cfg.Title != "" {
		req.Header.Set("X-Title", p.cfg.Title)
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("openrouter non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.String("model", p.cfg.Model),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
		return "", mapStatus("openrouter", resp.StatusCode, string(raw), nil)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode: %v", domain.ErrUpstreamUnavailable, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices from openrouter", domain.ErrUpstreamUnavailable)
	}
	if out.Model != "" && out.Model != p.cfg.Model {
		slog.Debug("openrouter routed to a different model",
			slog.String("requested_model", p.cfg.Model),
			slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}
