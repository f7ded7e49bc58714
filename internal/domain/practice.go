package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	MinScore = 0
	MaxScore = 10
)

// SessionStatus is the state of a practice session.
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled:  {SessionInProgress, SessionCancelled},
	SessionInProgress: {SessionCompleted},
}

// CanTransitionTo reports whether the edge s -> to exists.
func (s SessionStatus) CanTransitionTo(to SessionStatus) bool {
	for _, t := range sessionTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s SessionStatus) Terminal() bool { return len(sessionTransitions[s]) == 0 }

// Criteria holds per-criterion scores, each in [0,10].
type Criteria struct {
	TechnicalAccuracy int `json:"technical_accuracy"`
	Communication     int `json:"communication"`
	ProblemSolving    int `json:"problem_solving"`
	Confidence        int `json:"confidence"`
}

func (c Criteria) validate() error {
	for name, v := range map[string]int{
		"technical_accuracy": c.TechnicalAccuracy,
		"communication":      c.Communication,
		"problem_solving":    c.ProblemSolving,
		"confidence":         c.Confidence,
	} {
		if v < MinScore || v > MaxScore {
			return fmt.Errorf("%w: criterion %s=%d out of range", ErrInvalidArgument, name, v)
		}
	}
	return nil
}

// Evaluation is the score of one answer. Construct with NewEvaluation.
type Evaluation struct {
	Score       int       `json:"score"`
	Criteria    Criteria  `json:"criteria"`
	Feedback    string    `json:"feedback"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// NewEvaluation validates score bounds and a non-empty feedback.
func NewEvaluation(score int, c Criteria, feedback string, at time.Time) (Evaluation, error) {
	if score < MinScore || score > MaxScore {
		return Evaluation{}, fmt.Errorf("%w: score %d out of range", ErrInvalidArgument, score)
	}
	if err := c.validate(); err != nil {
		return Evaluation{}, err
	}
	if strings.TrimSpace(feedback) == "" {
		return Evaluation{}, fmt.Errorf("%w: empty feedback", ErrInvalidArgument)
	}
	return Evaluation{Score: score, Criteria: c, Feedback: feedback, EvaluatedAt: at}, nil
}

// ClampScore rounds v to the nearest integer within [0,10].
func ClampScore(v float64) int {
	if math.IsNaN(v) {
		return MinScore
	}
	r := int(math.Round(v))
	if r < MinScore {
		return MinScore
	}
	if r > MaxScore {
		return MaxScore
	}
	return r
}

type Answer struct {
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Question belongs to exactly one practice session. Evaluation is set only together with Answer.
type Question struct {
	ID               string       `json:"id"`
	Text             string       `json:"question"`
	Type             QuestionType `json:"type"`
	Skill            string       `json:"skill"`
	Difficulty       Difficulty   `json:"difficulty"`
	ExpectedKeywords []string     `json:"expected_keywords,omitempty"`
	ExpectedAnswer   string       `json:"expected_answer,omitempty"`
	Answer           *Answer      `json:"answer,omitempty"`
	Evaluation       *Evaluation  `json:"evaluation,omitempty"`
}

// Narrative is the model-sourced part of an overall verdict.
type Narrative struct {
	Feedback       string         `json:"feedback"`
	Strengths      []string       `json:"strengths"`
	Improvements   []string       `json:"improvements"`
	Recommendation Recommendation `json:"recommendation"`
}

// OverallEvaluation is created once, when a session completes.
type OverallEvaluation struct {
	TotalScore         int            `json:"total_score"`
	AverageScore       float64        `json:"average_score"`
	TotalQuestions     int            `json:"total_questions"`
	CompletedQuestions int            `json:"completed_questions"`
	Feedback           string         `json:"feedback"`
	Strengths          []string       `json:"strengths"`
	Improvements       []string       `json:"improvements"`
	Recommendation     Recommendation `json:"recommendation"`
}

// Tally holds the deterministic numeric part of an overall verdict.
type Tally struct {
	TotalScore         int
	AverageScore       float64
	TotalQuestions     int
	CompletedQuestions int
}

// TallyQuestions sums evaluated questions. Unevaluated questions count as zero and are not completed.
func TallyQuestions(qs []Question) Tally {
	t := Tally{TotalQuestions: len(qs)}
	for _, q := range qs {
		if q.Evaluation == nil {
			continue
		}
		t.TotalScore += q.Evaluation.Score
		t.CompletedQuestions++
	}
	if t.CompletedQuestions > 0 {
		t.AverageScore = math.Round(float64(t.TotalScore)/float64(t.CompletedQuestions)*100) / 100
	}
	return t
}

// NewOverallEvaluation combines a tally and a narrative, enforcing the bounds of both.
func NewOverallEvaluation(t Tally, n Narrative) (OverallEvaluation, error) {
	if t.CompletedQuestions < 0 || t.CompletedQuestions > t.TotalQuestions {
		return OverallEvaluation{}, fmt.Errorf("%w: completed %d of %d", ErrInvalidArgument, t.CompletedQuestions, t.TotalQuestions)
	}
	if t.AverageScore < MinScore || t.AverageScore > MaxScore {
		return OverallEvaluation{}, fmt.Errorf("%w: average %.2f out of range", ErrInvalidArgument, t.AverageScore)
	}
	if !n.Recommendation.Valid() {
		return OverallEvaluation{}, fmt.Errorf("%w: recommendation %q", ErrInvalidArgument, n.Recommendation)
	}
	return OverallEvaluation{
		TotalScore:         t.TotalScore,
		AverageScore:       t.AverageScore,
		TotalQuestions:     t.TotalQuestions,
		CompletedQuestions: t.CompletedQuestions,
		Feedback:           n.Feedback,
		Strengths:          nonNil(n.Strengths),
		Improvements:       nonNil(n.Improvements),
		Recommendation:     n.Recommendation,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// PracticeSession is owned by the candidate who created it.
type PracticeSession struct {
	ID              string
	CandidateID     string
	Title           string
	Skills          []string
	Difficulty      Difficulty
	Type            QuestionType
	QuestionCount   int
	ExperienceHint  string
	DurationMinutes int
	Questions       []Question
	Status          SessionStatus
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Overall         *OverallEvaluation
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QuestionIndex returns the position of the question with id, or -1.
func (s PracticeSession) QuestionIndex(id string) int {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return i
		}
	}
	return -1
}
