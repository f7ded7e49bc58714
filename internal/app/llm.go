package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai/providers"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// NewLLMProvider builds the raw provider named by cfg.LLMProvider.
func NewLLMProvider(ctx context.Context, cfg config.Config) (domain.LLMGateway, error) {
	switch cfg.LLMProvider {
	case "mock":
		return ai.NewMockProvider(), nil
	case "openrouter":
		return built(providers.NewOpenRouter(providers.OpenRouterConfig{
			APIKey:    cfg.OpenRouterAPIKey,
			BaseURL:   cfg.OpenRouterBaseURL,
			Model:     cfg.LLMModel,
			Referer:   cfg.OpenRouterReferer,
			Title:     cfg.OpenRouterTitle,
			MaxTokens: cfg.LLMMaxTokens,
			Fallbacks: cfg.LLMFallbackModels,
		}))
	case "openai":
		return built(providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
		}))
	case "gemini":
		return built(providers.NewGemini(ctx, providers.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
		}))
	case "anthropic":
		return built(providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
		}))
	}
	return nil, fmt.Errorf("op=app.llm_provider: %w: unknown provider %q", domain.ErrInvalidArgument, cfg.LLMProvider)
}

// built returns a nil interface on error rather than a typed nil.
func built[P domain.LLMGateway](p P, err error) (domain.LLMGateway, error) {
	if err != nil {
		return nil, fmt.Errorf("op=app.llm_provider: %w", err)
	}
	return p, nil
}

// NewLLMGateway wraps the configured provider with timeout, retries, a
// circuit breaker and the optional shared limiter.
func NewLLMGateway(ctx context.Context, cfg config.Config, limiter ai.Limiter) (*ai.Gateway, error) {
	inner, err := NewLLMProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	initial, maxInterval, retries := cfg.GetLLMBackoffConfig()
	slog.Info("llm gateway configured",
		slog.String("provider", cfg.LLMProvider),
		slog.String("model", cfg.LLMModel),
		slog.Duration("timeout", cfg.LLMTimeout),
		slog.Int("max_retries", retries),
		slog.Bool("rate_limited", limiter != nil))
	return ai.NewGateway(inner, ai.Options{
		Provider:       cfg.LLMProvider,
		Timeout:        cfg.LLMTimeout,
		MaxRetries:     retries,
		BackoffInitial: initial,
		BackoffMax:     maxInterval,
		Breaker:        ai.NewCircuitBreaker("llm:"+cfg.LLMProvider, cfg.LLMBreakerThreshold, cfg.LLMBreakerRecovery),
		Limiter:        limiter,
	}), nil
}
