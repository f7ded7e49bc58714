package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/pkg/llmparse"
	"github.com/fairyhunter13/ai-mock-interview/pkg/textx"
)

const (
	neutralScore    = 5
	neutralFeedback = "We could not assess this answer automatically. Add more detail: describe your approach, the trade-offs you considered and a concrete example."
	blankFeedback   = "No answer was provided, so this question was scored as not attempted."
	missingFeedback = "The answer was scored without written feedback."
)

var evaluationSchema = llmparse.MustCompileSchema("answer_evaluation", `{
	"type": "object",
	"required": ["score"],
	"properties": {
		"score": {"type": ["number", "string"]},
		"feedback": {"type": "string"},
		"criteria": {"type": "object"}
	}
}`)

// AnswerEvaluator scores one answer. Evaluate always returns a valid evaluation.
type AnswerEvaluator struct {
	LLM domain.LLMGateway
	// Tokens and TokenBudget bound the answer text sent to the model; zero disables truncation.
	Tokens      *tokencount.Counter
	TokenBudget int
	Now         func() time.Time
}

func NewAnswerEvaluator(llm domain.LLMGateway, tokens *tokencount.Counter, budget int) AnswerEvaluator {
	return AnswerEvaluator{LLM: llm, Tokens: tokens, TokenBudget: budget, Now: time.Now}
}

// looseNumber accepts 7, 7.5, "7" and "7/10".
type looseNumber struct {
	v   float64
	set bool
}

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s, _, _ = strings.Cut(strings.TrimSpace(s), "/")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", s, err)
		}
		n.v, n.set = f, true
		return nil
	}
	if err := json.Unmarshal(b, &n.v); err != nil {
		return err
	}
	n.set = true
	return nil
}

type criteriaWire struct {
	TechnicalAccuracy looseNumber `json:"technical_accuracy"`
	Communication     looseNumber `json:"communication"`
	ProblemSolving    looseNumber `json:"problem_solving"`
	Confidence        looseNumber `json:"confidence"`
}

// evaluationWire covers both the nested JSON object and the flat key:value block.
type evaluationWire struct {
	Score    looseNumber   `json:"score"`
	Feedback string        `json:"feedback"`
	Criteria *criteriaWire `json:"criteria"`
	criteriaWire
}

func (w evaluationWire) criteria() criteriaWire {
	if w.Criteria != nil {
		return *w.Criteria
	}
	return w.criteriaWire
}

// Evaluate never fails: a blank answer scores zero without a model call, and any
// model or parse failure yields the neutral evaluation.
func (e AnswerEvaluator) Evaluate(ctx domain.Context, q domain.Question, answer string) domain.Evaluation {
	now := e.now()
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("question_id", q.ID))
	answer = textx.SanitizeText(answer)
	if answer == "" {
		ev, _ := domain.NewEvaluation(0, domain.Criteria{}, blankFeedback, now)
		observability.ObserveAnswerScore(ev.Score)
		return ev
	}
	if e.Tokens != nil && e.TokenBudget > 0 {
		if cut, truncated := e.Tokens.Truncate(answer, e.TokenBudget); truncated {
			lg.Info("answer truncated for evaluation", slog.Int("token_budget", e.TokenBudget))
			answer = cut
		}
	}

	ctx = obsctx.ContextWithOperation(ctx, OpEvaluateAnswer)
	raw, err := e.LLM.Generate(ctx, buildEvaluationPrompt(q, answer))
	if err != nil {
		lg.Warn("answer evaluation failed; using neutral evaluation", slog.Any("error", err))
		observability.RecordFallback(OpEvaluateAnswer, fallbackCause(err))
		return neutralEvaluation(now)
	}

	res := llmparse.Parse[evaluationWire](raw, llmparse.ShapeObject, llmparse.WithSchema(evaluationSchema))
	if !res.OK() {
		res = llmparse.Parse[evaluationWire](raw, llmparse.ShapeKeyValue)
	}
	w, ok := res.Value()
	if !ok || !w.Score.set {
		lg.Warn("answer evaluation unparseable; using neutral evaluation", slog.String("reason", res.Reason()))
		observability.RecordFallback(OpEvaluateAnswer, "parse_failed")
		return neutralEvaluation(now)
	}

	score := domain.ClampScore(w.Score.v)
	c := w.criteria()
	feedback := textx.SanitizeText(w.Feedback)
	if feedback == "" {
		feedback = missingFeedback
	}
	ev, err := domain.NewEvaluation(score, domain.Criteria{
		TechnicalAccuracy: criterionOr(c.TechnicalAccuracy, score),
		Communication:     criterionOr(c.Communication, score),
		ProblemSolving:    criterionOr(c.ProblemSolving, score),
		Confidence:        criterionOr(c.Confidence, score),
	}, feedback, now)
	if err != nil {
		// unreachable after clamping; keep the guarantee anyway
		return neutralEvaluation(now)
	}
	observability.ObserveAnswerScore(ev.Score)
	lg.Debug("answer evaluated", slog.Int("score", ev.Score), slog.Bool("lenient_parse", res.Lenient()))
	return ev
}

func criterionOr(n looseNumber, fallback int) int {
	if !n.set {
		return fallback
	}
	return domain.ClampScore(n.v)
}

func neutralEvaluation(at time.Time) domain.Evaluation {
	c := domain.Criteria{TechnicalAccuracy: neutralScore, Communication: neutralScore, ProblemSolving: neutralScore, Confidence: neutralScore}
	ev, _ := domain.NewEvaluation(neutralScore, c, neutralFeedback, at)
	observability.ObserveAnswerScore(ev.Score)
	return ev
}

func (e AnswerEvaluator) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}
