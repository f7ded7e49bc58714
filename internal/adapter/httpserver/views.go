package httpserver

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

var errInvalidQuery = fmt.Errorf("%w: invalid query parameters", domain.ErrInvalidArgument)

type questionView struct {
	ID               string             `json:"id"`
	Question         string             `json:"question"`
	Type             string             `json:"type"`
	Skill            string             `json:"skill"`
	Difficulty       string             `json:"difficulty"`
	ExpectedKeywords []string           `json:"expected_keywords,omitempty"`
	ExpectedAnswer   string             `json:"expected_answer,omitempty"`
	Answer           *domain.Answer     `json:"answer,omitempty"`
	Evaluation       *domain.Evaluation `json:"evaluation,omitempty"`
}

type practiceView struct {
	ID              string                    `json:"id"`
	CandidateID     string                    `json:"candidate_id"`
	Title           string                    `json:"title"`
	Skills          []string                  `json:"skills"`
	Difficulty      string                    `json:"difficulty"`
	Type            string                    `json:"type,omitempty"`
	QuestionCount   int                       `json:"question_count"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
	Status          string                    `json:"status"`
	Questions       []questionView            `json:"questions"`
	StartedAt       *time.Time                `json:"started_at,omitempty"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
	Overall         *domain.OverallEvaluation `json:"overall_evaluation,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// newPracticeView hides reference answers from candidates until the session is completed.
func newPracticeView(ps domain.PracticeSession, viewer domain.Actor) practiceView {
	reveal := viewer.Role != domain.RoleCandidate || ps.Status == domain.SessionCompleted
	qs := make([]questionView, 0, len(ps.Questions))
	for _, q := range ps.Questions {
		v := questionView{
			ID:         q.ID,
			Question:   q.Text,
			Type:       string(q.Type),
			Skill:      q.Skill,
			Difficulty: string(q.Difficulty),
			Answer:     q.Answer,
			Evaluation: q.Evaluation,
		}
		if reveal {
			v.ExpectedKeywords = q.ExpectedKeywords
			v.ExpectedAnswer = q.ExpectedAnswer
		}
		qs = append(qs, v)
	}
	return practiceView{
		ID:              ps.ID,
		CandidateID:     ps.CandidateID,
		Title:           ps.Title,
		Skills:          ps.Skills,
		Difficulty:      string(ps.Difficulty),
		Type:            string(ps.Type),
		QuestionCount:   ps.QuestionCount,
		DurationMinutes: ps.DurationMinutes,
		Status:          string(ps.Status),
		Questions:       qs,
		StartedAt:       ps.StartedAt,
		CompletedAt:     ps.CompletedAt,
		Overall:         ps.Overall,
		CreatedAt:       ps.CreatedAt,
		UpdatedAt:       ps.UpdatedAt,
	}
}

type bookingView struct {
	ID              string    `json:"id"`
	CandidateID     string    `json:"candidate_id"`
	InterviewerID   string    `json:"interviewer_id,omitempty"`
	BookedBy        string    `json:"booked_by"`
	Title           string    `json:"title"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	EndsAt          time.Time `json:"ends_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	MeetingLink     string    `json:"meeting_link"`
	Notes           string    `json:"notes,omitempty"`
	CancelReason    string    `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newBookingView(b domain.BookedInterview) bookingView {
	return bookingView{
		ID:              b.ID,
		CandidateID:     b.CandidateID,
		InterviewerID:   b.InterviewerID,
		BookedBy:        b.BookedBy,
		Title:           b.Title,
		ScheduledAt:     b.ScheduledAt,
		EndsAt:          b.End(),
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		MeetingLink:     b.MeetingLink,
		Notes:           b.Notes,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}
