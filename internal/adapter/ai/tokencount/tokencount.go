// Package tokencount counts and trims prompt text with tiktoken encodings.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// embedded BPE ranks; no download at runtime
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter is safe for concurrent use.
type Counter struct {
	model string

	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter returns a counter for model. Unknown models use cl100k_base.
func NewCounter(model string) *Counter {
	return &Counter{model: model, cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encoding() (*tiktoken.Tiktoken, error) {
	key := normalizeModelName(c.model)

	c.mu.RLock()
	enc, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[key]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(key)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", c.model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.cache[key] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids onto names tiktoken knows.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// llama, mistral, gemini, claude: cl100k_base is a close enough approximation
		return "gpt-4"
	}
}

// Count returns the token count of text, or a 4-chars-per-token estimate if no encoding loads.
func (c *Counter) Count(text string) int {
	enc, err := c.encoding()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate returns text cut to at most maxTokens tokens and whether it was cut.
func (c *Counter) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	enc, err := c.encoding()
	if err != nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text, false
		}
		return strings.ToValidUTF8(text[:limit], ""), true
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	return strings.ToValidUTF8(enc.Decode(tokens[:maxTokens]), ""), true
}
