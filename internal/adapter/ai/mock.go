package ai

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// MockProvider answers prompts deterministically for dev and tests. It reads the
// "task:" header the orchestrators put at the top of every prompt.
type MockProvider struct{}

// NewMockProvider constructs a deterministic offline provider.
func NewMockProvider() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Generate(_ domain.Context, prompt string) (string, error) {
	var (
		payload any
		task    = header(prompt, "task")
	)
	switch task {
	case "generate_questions":
		payload = mockQuestions(prompt)
	case "evaluate_answer":
		payload = mockEvaluation(prompt)
	case "summarize_session":
		payload = mockSummary(prompt)
	default:
		return "", fmt.Errorf("%w: mock provider cannot handle task %q", domain.ErrInvalidArgument, task)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mock marshal: %w", err)
	}
	return string(b), nil
}

func mockQuestions(prompt string) []map[string]any {
	count, err := strconv.Atoi(header(prompt, "count"))
	if err != nil || count <= 0 {
		count = 5
	}
	skills := splitList(header(prompt, "skills"))
	if len(skills) == 0 {
		skills = []string{"general"}
	}
	difficulty := header(prompt, "difficulty")
	if difficulty == "" {
		difficulty = string(domain.DifficultyMedium)
	}
	types := []domain.QuestionType{domain.QuestionTechnical, domain.QuestionBehavioral, domain.QuestionSituational}
	out := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		skill := skills[i%len(skills)]
		qt := types[i%len(types)]
		out = append(out, map[string]any{
			"id":                fmt.Sprintf("q%d", i+1),
			"question":          questionText(qt, skill, i),
			"type":              qt,
			"skill":             skill,
			"difficulty":        difficulty,
			"expected_keywords": []string{skill, "trade-off", "example"},
		})
	}
	return out
}

func questionText(qt domain.QuestionType, skill string, i int) string {
	switch qt {
	case domain.QuestionBehavioral:
		return fmt.Sprintf("Tell me about a time you had to learn %s quickly. What did you do?", skill)
	case domain.QuestionSituational:
		return fmt.Sprintf("A production issue involving %s appears during a release. How do you respond?", skill)
	default:
		return fmt.Sprintf("Explain a core concept of %s and a trade-off you have made with it (#%d).", skill, i+1)
	}
}

func mockEvaluation(prompt string) map[string]any {
	answer := between(prompt, "<answer>", "</answer>")
	words := len(strings.Fields(answer))
	base := 2 + words/12 + int(hashUint(answer)%3)
	score := clampInt(base)
	return map[string]any{
		"score": score,
		"criteria": map[string]int{
			"technical_accuracy": clampInt(score + int(hashUint(answer+"t")%3) - 1),
			"communication":      clampInt(score + int(hashUint(answer+"c")%3) - 1),
			"problem_solving":    clampInt(score + int(hashUint(answer+"p")%3) - 1),
			"confidence":         clampInt(score + int(hashUint(answer+"f")%3) - 1),
		},
		"feedback": fmt.Sprintf("The answer covers %d words; add a concrete example and the trade-offs you considered.", words),
	}
}

func mockSummary(prompt string) map[string]any {
	avg, _ := strconv.ParseFloat(header(prompt, "average_score"), 64)
	rec := domain.RecommendNeutral
	switch {
	case avg >= 7:
		rec = domain.RecommendPositive
	case avg < 4:
		rec = domain.RecommendNegative
	}
	return map[string]any{
		"feedback":       fmt.Sprintf("Average score %.1f across answered questions.", avg),
		"strengths":      []string{"Structured answers"},
		"improvements":   []string{"Quantify impact with concrete numbers"},
		"recommendation": rec,
	}
}

// header returns the value of the first "key: value" line for key.
func header(prompt, key string) string {
	prefix := key + ":"
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

func between(s, startTag, endTag string) string {
	i := strings.Index(s, startTag)
	if i < 0 {
		return ""
	}
	rest := s[i+len(startTag):]
	if j := strings.Index(rest, endTag); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hashUint(s string) uint32 {
	h := sha1.Sum([]byte(s))
	return binary.BigEndian.Uint32(h[:4])
}

func clampInt(v int) int {
	if v < domain.MinScore {
		return domain.MinScore
	}
	if v > domain.MaxScore {
		return domain.MaxScore
	}
	return v
}
