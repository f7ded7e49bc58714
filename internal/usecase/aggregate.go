package usecase

import (
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/pkg/llmparse"
	"github.com/fairyhunter13/ai-mock-interview/pkg/textx"
)

const maxNarrativeItems = 5

var narrativeSchema = llmparse.MustCompileSchema("session_narrative", `{
	"type": "object",
	"required": ["feedback", "recommendation"],
	"properties": {
		"feedback": {"type": "string", "minLength": 1},
		"strengths": {"type": "array", "items": {"type": "string"}},
		"improvements": {"type": "array", "items": {"type": "string"}},
		"recommendation": {"type": "string"}
	}
}`)

// ScoreAggregator writes the narrative part of a session verdict. Numbers are
// never taken from the model; see domain.TallyQuestions.
type ScoreAggregator struct {
	LLM domain.LLMGateway
}

func NewScoreAggregator(llm domain.LLMGateway) ScoreAggregator {
	return ScoreAggregator{LLM: llm}
}

// FallbackNarrative is returned whenever the model output cannot be used.
func FallbackNarrative() domain.Narrative {
	return domain.Narrative{
		Feedback:       "Your session has been scored. A written summary is not available right now; review the feedback on each question for details.",
		Strengths:      []string{},
		Improvements:   []string{"Review the per-question feedback and practise the lowest-scoring topics."},
		Recommendation: domain.RecommendNeutral,
	}
}

// Summarize always returns a narrative with non-empty feedback and a valid recommendation.
func (a ScoreAggregator) Summarize(ctx domain.Context, s domain.PracticeSession, t domain.Tally) domain.Narrative {
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("session_id", s.ID))
	if t.CompletedQuestions == 0 {
		// nothing to summarize; the model would only invent content
		n := FallbackNarrative()
		n.Feedback = "No questions were answered in this session."
		n.Improvements = []string{"Answer at least a few questions to receive feedback."}
		return n
	}
	ctx = obsctx.ContextWithOperation(ctx, OpSummarizeSession)
	raw, err := a.LLM.Generate(ctx, buildSummaryPrompt(s, t))
	if err != nil {
		lg.Warn("session summary failed; using neutral narrative", slog.Any("error", err))
		observability.RecordFallback(OpSummarizeSession, fallbackCause(err))
		return FallbackNarrative()
	}
	res := llmparse.Parse[domain.Narrative](raw, llmparse.ShapeObject, llmparse.WithSchema(narrativeSchema))
	n, ok := res.Value()
	if !ok {
		lg.Warn("session summary unparseable; using neutral narrative", slog.String("reason", res.Reason()))
		observability.RecordFallback(OpSummarizeSession, "parse_failed")
		return FallbackNarrative()
	}
	n.Recommendation = domain.Recommendation(strings.ToLower(strings.TrimSpace(string(n.Recommendation))))
	n.Feedback = textx.SanitizeText(n.Feedback)
	if !n.Recommendation.Valid() || n.Feedback == "" {
		lg.Warn("session summary out of contract; using neutral narrative", slog.String("recommendation", string(n.Recommendation)))
		observability.RecordFallback(OpSummarizeSession, "invalid")
		return FallbackNarrative()
	}
	n.Strengths = capList(textx.NormalizeList(n.Strengths))
	n.Improvements = capList(textx.NormalizeList(n.Improvements))
	return n
}

func capList(items []string) []string {
	if len(items) > maxNarrativeItems {
		return items[:maxNarrativeItems]
	}
	return items
}
