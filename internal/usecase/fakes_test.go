package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// llmFunc adapts a function to domain.LLMGateway and counts calls.
type llmFunc struct {
	calls atomic.Int32
	fn    func(prompt string) (string, error)
}

func newLLM(fn func(prompt string) (string, error)) *llmFunc { return &llmFunc{fn: fn} }

func (l *llmFunc) Generate(_ domain.Context, prompt string) (string, error) {
	l.calls.Add(1)
	return l.fn(prompt)
}

func taskOf(prompt string) string {
	first, _, _ := strings.Cut(prompt, "\n")
	return strings.TrimSpace(strings.TrimPrefix(first, "### task:"))
}

func answerOf(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "<answer>\n")
	if !ok {
		return ""
	}
	ans, _, _ := strings.Cut(rest, "\n</answer>")
	return ans
}

type memPracticeRepo struct {
	mu   sync.Mutex
	seq  int
	rows map[string]domain.PracticeSession
}

func newMemPracticeRepo() *memPracticeRepo {
	return &memPracticeRepo{rows: map[string]domain.PracticeSession{}}
}

func clonePractice(s domain.PracticeSession) domain.PracticeSession {
	s.Questions = append([]domain.Question(nil), s.Questions...)
	s.Skills = append([]string(nil), s.Skills...)
	return s
}

func (r *memPracticeRepo) Create(_ context.Context, s domain.PracticeSession) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s.ID = fmt.Sprintf("ps-%d", r.seq)
	r.rows[s.ID] = clonePractice(s)
	return s.ID, nil
}

func (r *memPracticeRepo) Get(_ context.Context, id string) (domain.PracticeSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return domain.PracticeSession{}, fmt.Errorf("%w: practice session %s", domain.ErrNotFound, id)
	}
	return clonePractice(s), nil
}

func (r *memPracticeRepo) ListByCandidate(_ context.Context, candidateID string, limit int) ([]domain.PracticeSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PracticeSession
	for _, s := range r.rows {
		if s.CandidateID == candidateID {
			out = append(out, clonePractice(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPracticeRepo) Update(_ context.Context, s domain.PracticeSession, expected domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != s.Version || cur.Status != expected {
		return domain.ErrStateConflict
	}
	s.Version++
	r.rows[s.ID] = clonePractice(s)
	return nil
}

func (r *memPracticeRepo) Delete(_ context.Context, id string, expected domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != expected {
		return domain.ErrStateConflict
	}
	delete(r.rows, id)
	return nil
}

// memBookingRepo re-checks overlap in Create and Update, like the SQL store.
type memBookingRepo struct {
	mu   sync.Mutex
	seq  int
	rows map[string]domain.BookedInterview
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{rows: map[string]domain.BookedInterview{}}
}

func (r *memBookingRepo) overlaps(b domain.BookedInterview) bool {
	if b.InterviewerID == "" || !b.Status.Active() {
		return false
	}
	for _, o := range r.rows {
		if o.ID == b.ID || o.InterviewerID != b.InterviewerID || !o.Status.Active() {
			continue
		}
		if domain.Overlaps(b.ScheduledAt, b.End(), o.ScheduledAt, o.End()) {
			return true
		}
	}
	return false
}

func (r *memBookingRepo) Create(_ context.Context, b domain.BookedInterview) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlaps(b) {
		return "", fmt.Errorf("%w: overlapping booking", domain.ErrConflict)
	}
	r.seq++
	b.ID = fmt.Sprintf("bk-%d", r.seq)
	r.rows[b.ID] = b
	return b.ID, nil
}

// insert stores b as-is, bypassing checks; used to seed fixtures.
func (r *memBookingRepo) insert(b domain.BookedInterview) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[b.ID] = b
}

func (r *memBookingRepo) Get(_ context.Context, id string) (domain.BookedInterview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.rows[id]
	if !ok {
		return domain.BookedInterview{}, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	return b, nil
}

func (r *memBookingRepo) ListByParticipant(_ context.Context, subjectID string, limit int) ([]domain.BookedInterview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BookedInterview
	for _, b := range r.rows {
		if b.IsParty(subjectID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memBookingRepo) ListActiveByInterviewer(_ context.Context, interviewerID string, from, to time.Time) ([]domain.BookedInterview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BookedInterview
	for _, b := range r.rows {
		if b.InterviewerID == interviewerID && b.Status.Active() && domain.Overlaps(b.ScheduledAt, b.End(), from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) Update(_ context.Context, b domain.BookedInterview, expected domain.BookingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != b.Version || cur.Status != expected {
		return domain.ErrStateConflict
	}
	if r.overlaps(b) {
		return fmt.Errorf("%w: overlapping booking", domain.ErrConflict)
	}
	b.Version++
	r.rows[b.ID] = b
	return nil
}

func (r *memBookingRepo) all() []domain.BookedInterview {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.BookedInterview, 0, len(r.rows))
	for _, b := range r.rows {
		out = append(out, b)
	}
	return out
}
