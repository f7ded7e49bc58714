// Package ai wraps model backend providers with the call discipline every
// orchestrator relies on: a hard timeout, optional bounded retries, a circuit
// breaker, a shared rate limit and metrics.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

// Limiter is a shared token bucket; see service/ratelimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int) (bool, time.Duration, error)
}

// Options configures a Gateway.
type Options struct {
	Provider       string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Breaker        *CircuitBreaker
	Limiter        Limiter
}

// Gateway implements domain.LLMGateway on top of a provider.
type Gateway struct {
	inner domain.LLMGateway
	opts  Options
}

// NewGateway decorates inner. A zero Timeout means 30s.
func NewGateway(inner domain.LLMGateway, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Provider == "" {
		opts.Provider = "unknown"
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Second
	}
	return &Gateway{inner: inner, opts: opts}
}

// Generate sends prompt to the provider. Every failure is reported as one of the
// upstream sentinels (or ErrInvalidArgument for a misconfigured provider).
func (g *Gateway) Generate(ctx domain.Context, prompt string) (string, error) {
	op := obsctx.OperationFromContext(ctx)
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("provider", g.opts.Provider), slog.String("operation", op))

	if g.opts.Breaker != nil && !g.opts.Breaker.Allow() {
		observability.ObserveLLMCall(g.opts.Provider, op, "circuit_open", 0)
		lg.Debug("llm circuit open; skipping call", slog.Any("breaker", g.opts.Breaker.Stats()))
		return "", fmt.Errorf("op=llm.generate: %w: circuit open", domain.ErrUpstreamUnavailable)
	}
	if g.opts.Limiter != nil {
		ok, retryAfter, err := g.opts.Limiter.Allow(ctx, "llm:"+g.opts.Provider, 1)
		if err != nil {
			lg.Warn("llm rate limiter unavailable; allowing call", slog.Any("error", err))
		} else if !ok {
			observability.ObserveLLMCall(g.opts.Provider, op, "rate_limited", 0)
			return "", fmt.Errorf("op=llm.generate: %w: retry after %s", domain.ErrUpstreamRateLimit, retryAfter)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	ctx, span := otel.Tracer("llm.gateway").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", g.opts.Provider),
		attribute.String("llm.operation", op),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	var out string
	attempts := 0
	call := func() error {
		attempts++
		s, err := g.inner.Generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				return backoff.Permanent(err)
			}
			return err
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty completion", domain.ErrUpstreamUnavailable)
		}
		out = s
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.opts.BackoffInitial
	expo.MaxInterval = g.opts.BackoffMax
	expo.MaxElapsedTime = 0 // bounded by the timeout context
	var policy backoff.BackOff = backoff.WithMaxRetries(expo, uint64(max(g.opts.MaxRetries, 0)))

	start := time.Now()
	err := backoff.Retry(call, backoff.WithContext(policy, ctx))
	dur := time.Since(start)
	span.SetAttributes(attribute.Int("llm.attempts", attempts))

	if err != nil {
		err = classify(ctx, err)
		if g.opts.Breaker != nil {
			g.opts.Breaker.RecordFailure()
		}
		observability.ObserveLLMCall(g.opts.Provider, op, outcomeOf(err), dur)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lg.Warn("llm call failed", slog.Any("error", err), slog.Int("attempts", attempts), slog.Duration("duration", dur))
		return "", fmt.Errorf("op=llm.generate: %w", err)
	}
	if g.opts.Breaker != nil {
		g.opts.Breaker.RecordSuccess()
	}
	observability.ObserveLLMCall(g.opts.Provider, op, "ok", dur)
	lg.Debug("llm call succeeded", slog.Int("attempts", attempts), slog.Duration("duration", dur), slog.Int("response_chars", len(out)))
	return out, nil
}

// classify maps transport errors onto the upstream sentinels.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUpstreamTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrUpstreamUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "misconfigured"
	default:
		return "error"
	}
}
