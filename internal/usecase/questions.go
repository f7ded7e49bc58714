package usecase

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/pkg/llmparse"
	"github.com/fairyhunter13/ai-mock-interview/pkg/textx"
)

const (
	DefaultQuestionCount = 10
	MaxQuestionCount     = 20
)

// Items are checked one by one so a single malformed entry does not discard the set.
var questionListSchema = llmparse.MustCompileSchema("question_list", `{
	"type": "array",
	"minItems": 1
}`)

// QuestionRequest describes the set of questions to generate.
type QuestionRequest struct {
	Skills          []string
	Difficulty      domain.Difficulty
	Type            domain.QuestionType // empty means mixed
	Count           int
	ExperienceHint  string
	DurationMinutes int
}

// QuestionGenerator asks the model for a question set and always returns at least one question.
type QuestionGenerator struct {
	LLM domain.LLMGateway
}

func NewQuestionGenerator(llm domain.LLMGateway) QuestionGenerator {
	return QuestionGenerator{LLM: llm}
}

// questionItem accepts the field spellings models commonly produce.
type questionItem struct {
	ID                    any      `json:"id"`
	Question              string   `json:"question"`
	Text                  string   `json:"text"`
	Type                  string   `json:"type"`
	Skill                 string   `json:"skill"`
	Difficulty            string   `json:"difficulty"`
	ExpectedKeywords      []string `json:"expected_keywords"`
	ExpectedKeywordsCamel []string `json:"expectedKeywords"`
	ExpectedAnswer        string   `json:"expected_answer"`
}

// Generate never returns an empty list and never returns more than req.Count questions.
func (g QuestionGenerator) Generate(ctx domain.Context, req QuestionRequest) []domain.Question {
	req = normalizeQuestionRequest(req)
	lg := obsctx.LoggerFromContext(ctx)
	ctx = obsctx.ContextWithOperation(ctx, OpGenerateQuestions)

	raw, err := g.LLM.Generate(ctx, buildQuestionPrompt(req))
	if err != nil {
		lg.Warn("question generation failed; using fallback questions", slog.Any("error", err))
		observability.RecordFallback(OpGenerateQuestions, fallbackCause(err))
		return fallbackQuestions(req)
	}
	res := llmparse.Parse[[]json.RawMessage](raw, llmparse.ShapeArray, llmparse.WithSchema(questionListSchema))
	items, ok := res.Value()
	if !ok {
		lg.Warn("question generation returned unparseable output; using fallback questions",
			slog.String("reason", res.Reason()), slog.Int("response_chars", len(raw)))
		observability.RecordFallback(OpGenerateQuestions, "parse_failed")
		return fallbackQuestions(req)
	}

	out := make([]domain.Question, 0, min(len(items), req.Count))
	seen := map[string]struct{}{}
	dropped := 0
	for i, rawItem := range items {
		if len(out) == req.Count {
			break
		}
		var it questionItem
		if err := json.Unmarshal(rawItem, &it); err != nil {
			dropped++
			continue
		}
		q, ok := it.toQuestion(req, i)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[q.ID]; dup || q.ID == "" {
			q.ID = "q-" + strings.ToLower(ulid.Make().String())
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	if len(out) == 0 {
		lg.Warn("question generation produced no valid questions; using fallback questions", slog.Int("dropped", dropped))
		observability.RecordFallback(OpGenerateQuestions, "empty")
		return fallbackQuestions(req)
	}
	lg.Info("questions generated",
		slog.Int("requested", req.Count),
		slog.Int("returned", len(out)),
		slog.Int("dropped", dropped),
		slog.Bool("lenient_parse", res.Lenient()))
	return out
}

func (it questionItem) toQuestion(req QuestionRequest, i int) (domain.Question, bool) {
	text := textx.SanitizeText(it.Question)
	if text == "" {
		text = textx.SanitizeText(it.Text)
	}
	if text == "" {
		return domain.Question{}, false
	}
	qt := domain.QuestionType(strings.ToLower(strings.TrimSpace(it.Type)))
	if !qt.Valid() {
		qt = req.Type
		if !qt.Valid() {
			qt = domain.QuestionTechnical
		}
	}
	diff := domain.Difficulty(strings.ToLower(strings.TrimSpace(it.Difficulty)))
	if !diff.Valid() {
		diff = req.Difficulty
	}
	skill := textx.SanitizeText(it.Skill)
	if skill == "" {
		skill = req.Skills[i%len(req.Skills)]
	}
	kw := it.ExpectedKeywords
	if len(kw) == 0 {
		kw = it.ExpectedKeywordsCamel
	}
	return domain.Question{
		ID:               idString(it.ID),
		Text:             text,
		Type:             qt,
		Skill:            skill,
		Difficulty:       diff,
		ExpectedKeywords: textx.NormalizeList(kw),
		ExpectedAnswer:   textx.SanitizeText(it.ExpectedAnswer),
	}, true
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return "q" + strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func normalizeQuestionRequest(req QuestionRequest) QuestionRequest {
	req.Skills = textx.NormalizeList(req.Skills)
	if len(req.Skills) == 0 {
		req.Skills = []string{"general software engineering"}
	}
	if !req.Difficulty.Valid() {
		req.Difficulty = domain.DifficultyMedium
	}
	switch {
	case req.Count <= 0:
		req.Count = DefaultQuestionCount
	case req.Count > MaxQuestionCount:
		req.Count = MaxQuestionCount
	}
	return req
}

// fallbackQuestions is the fixed minimal set used when the model cannot help.
func fallbackQuestions(req QuestionRequest) []domain.Question {
	skill := req.Skills[0]
	qs := []domain.Question{
		{
			ID:               "q1",
			Text:             "Walk me through a recent project where you used " + skill + ". What were the key technical decisions and their trade-offs?",
			Type:             domain.QuestionTechnical,
			Skill:            skill,
			Difficulty:       req.Difficulty,
			ExpectedKeywords: []string{},
		},
		{
			ID:               "q2",
			Text:             "Describe a difficult problem you solved at work. How did you approach it and what was the outcome?",
			Type:             domain.QuestionBehavioral,
			Skill:            skill,
			Difficulty:       req.Difficulty,
			ExpectedKeywords: []string{},
		},
	}
	if req.Count < len(qs) {
		qs = qs[:req.Count]
	}
	return qs
}
