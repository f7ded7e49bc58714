package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestOpenAI_Success(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"score":7}`},
				"finish_reason": "stop",
			}},
		})
	})
	p, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: url + "/v1"})
	require.NoError(t, err)
	out, err := p.Generate(context.Background(), "grade this")
	require.NoError(t, err)
	assert.Equal(t, `{"score":7}`, out)
}

func TestOpenAI_RateLimit(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit_error"},
		})
	})
	p, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: url + "/v1"})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
}

func TestAnthropic_Success(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": `{"feedback":"ok"}`}},
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	})
	p, err := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: url})
	require.NoError(t, err)
	out, err := p.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, `{"feedback":"ok"}`, out)
}

func TestAnthropic_ServerError(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
	})
	p, err := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: url})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "summarize")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestGemini_Success(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": `[{"id":"q1"}]`}}},
			}},
		})
	})
	p, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "test-model", BaseURL: url})
	require.NoError(t, err)
	out, err := p.Generate(context.Background(), "questions")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"q1"}]`, out)
}
