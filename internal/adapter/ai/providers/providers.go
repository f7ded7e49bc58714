// Package providers contains the model backends the gateway can wrap. Each
// provider performs exactly one request per Generate call; retries, timeouts
// and the circuit breaker live in the ai.Gateway.
package providers

import (
	"fmt"
	"net/http"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// systemPrompt is sent ahead of every orchestrator prompt.
const systemPrompt = "You are an experienced technical interviewer. Follow the task instructions exactly and respond with JSON only, without commentary or code fences."

const snippetLimit = 512

// mapStatus converts an HTTP status from any backend into the upstream error family.
// Auth failures are permanent misconfiguration; other 4xx are permanent; 429 and 5xx are retryable.
func mapStatus(provider string, status int, body string, cause error) error {
	if len(body) > snippetLimit {
		body = body[:snippetLimit]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s status %d: %v", domain.ErrUpstreamRateLimit, provider, status, orBody(cause, body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected credentials (status %d)", domain.ErrInvalidArgument, provider, status)
	case status >= 400 && status < 500:
		return backoff.Permanent(fmt.Errorf("%w: %s status %d: %v", domain.ErrUpstreamUnavailable, provider, status, orBody(cause, body)))
	default:
		return fmt.Errorf("%w: %s status %d: %v", domain.ErrUpstreamUnavailable, provider, status, orBody(cause, body))
	}
}

func orBody(cause error, body string) any {
	if cause != nil {
		return cause
	}
	return body
}

func resolveModel(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
