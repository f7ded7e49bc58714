package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

const practiceColumns = `id, candidate_id, title, skills, difficulty, question_type, question_count,
	experience_hint, duration_minutes, questions, status, started_at, completed_at, overall,
	version, created_at, updated_at`

// PracticeRepo persists practice sessions. Questions and the overall verdict are JSONB documents.
type PracticeRepo struct{ Pool PgxPool }

// NewPracticeRepo constructs a PracticeRepo with the given pool.
func NewPracticeRepo(p PgxPool) *PracticeRepo { return &PracticeRepo{Pool: p} }

var _ domain.PracticeSessionRepository = (*PracticeRepo)(nil)

// Create inserts a new session and returns its id (generates one if empty).
func (r *PracticeRepo) Create(ctx domain.Context, s domain.PracticeSession) (string, error) {
	ctx, span := startSpan(ctx, "practice_sessions", "INSERT", "practice.Create")
	defer span.End()
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	questions, overall, err := encodePracticeDocs(s)
	if err != nil {
		return "", fmt.Errorf("op=practice_repo.create: %w", err)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.Version == 0 {
		s.Version = 1
	}
	q := `INSERT INTO practice_sessions (` + practiceColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err = r.Pool.Exec(ctx, q, id, s.CandidateID, s.Title, s.Skills, s.Difficulty, s.Type, s.QuestionCount,
		s.ExperienceHint, s.DurationMinutes, questions, s.Status, s.StartedAt, s.CompletedAt, overall,
		s.Version, s.CreatedAt, now)
	if err != nil {
		return "", fmt.Errorf("op=practice_repo.create: %w", err)
	}
	return id, nil
}

// Get loads a session by id.
func (r *PracticeRepo) Get(ctx domain.Context, id string) (domain.PracticeSession, error) {
	ctx, span := startSpan(ctx, "practice_sessions", "SELECT", "practice.Get")
	defer span.End()
	if _, err := uuid.Parse(id); err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice_repo.get: %w", domain.ErrNotFound)
	}
	row := r.Pool.QueryRow(ctx, `SELECT `+practiceColumns+` FROM practice_sessions WHERE id=$1`, id)
	s, err := scanPractice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PracticeSession{}, fmt.Errorf("op=practice_repo.get: %w", domain.ErrNotFound)
		}
		return domain.PracticeSession{}, fmt.Errorf("op=practice_repo.get: %w", err)
	}
	return s, nil
}

// ListByCandidate returns the candidate's sessions, newest first.
func (r *PracticeRepo) ListByCandidate(ctx domain.Context, candidateID string, limit int) ([]domain.PracticeSession, error) {
	ctx, span := startSpan(ctx, "practice_sessions", "SELECT", "practice.ListByCandidate")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+practiceColumns+` FROM practice_sessions
		WHERE candidate_id=$1 ORDER BY created_at DESC LIMIT $2`, candidateID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=practice_repo.list: %w", err)
	}
	defer rows.Close()
	out := []domain.PracticeSession{}
	for rows.Next() {
		s, err := scanPractice(rows)
		if err != nil {
			return nil, fmt.Errorf("op=practice_repo.list: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=practice_repo.list: %w", err)
	}
	return out, nil
}

// Update writes the mutable fields when both version and status still match.
func (r *PracticeRepo) Update(ctx domain.Context, s domain.PracticeSession, expected domain.SessionStatus) error {
	ctx, span := startSpan(ctx, "practice_sessions", "UPDATE", "practice.Update")
	defer span.End()
	questions, overall, err := encodePracticeDocs(s)
	if err != nil {
		return fmt.Errorf("op=practice_repo.update: %w", err)
	}
	q := `UPDATE practice_sessions
		SET title=$4, questions=$5, status=$6, started_at=$7, completed_at=$8, overall=$9,
			version=version+1, updated_at=$10
		WHERE id=$1 AND version=$2 AND status=$3`
	tag, err := r.Pool.Exec(ctx, q, s.ID, s.Version, expected, s.Title, questions, s.Status,
		s.StartedAt, s.CompletedAt, overall, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=practice_repo.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=practice_repo.update: %w", missingOr(ctx, r.Pool, "practice_sessions", s.ID, domain.ErrStateConflict))
	}
	return nil
}

// Delete removes the session while it still has the expected status.
func (r *PracticeRepo) Delete(ctx domain.Context, id string, expected domain.SessionStatus) error {
	ctx, span := startSpan(ctx, "practice_sessions", "DELETE", "practice.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM practice_sessions WHERE id=$1 AND status=$2`, id, expected)
	if err != nil {
		return fmt.Errorf("op=practice_repo.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=practice_repo.delete: %w", missingOr(ctx, r.Pool, "practice_sessions", id, domain.ErrStateConflict))
	}
	return nil
}

func encodePracticeDocs(s domain.PracticeSession) (questions, overall []byte, err error) {
	qs := s.Questions
	if qs == nil {
		qs = []domain.Question{}
	}
	if questions, err = json.Marshal(qs); err != nil {
		return nil, nil, fmt.Errorf("encode questions: %w", err)
	}
	if s.Overall != nil {
		if overall, err = json.Marshal(s.Overall); err != nil {
			return nil, nil, fmt.Errorf("encode overall: %w", err)
		}
	}
	return questions, overall, nil
}

func scanPractice(row pgx.Row) (domain.PracticeSession, error) {
	var (
		s                  domain.PracticeSession
		questions, overall []byte
	)
	err := row.Scan(&s.ID, &s.CandidateID, &s.Title, &s.Skills, &s.Difficulty, &s.Type, &s.QuestionCount,
		&s.ExperienceHint, &s.DurationMinutes, &questions, &s.Status, &s.StartedAt, &s.CompletedAt, &overall,
		&s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.PracticeSession{}, err
	}
	s.Questions = []domain.Question{}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &s.Questions); err != nil {
			return domain.PracticeSession{}, fmt.Errorf("decode questions: %w", err)
		}
		if s.Questions == nil {
			s.Questions = []domain.Question{}
		}
	}
	if len(overall) > 0 {
		var o domain.OverallEvaluation
		if err := json.Unmarshal(overall, &o); err != nil {
			return domain.PracticeSession{}, fmt.Errorf("decode overall: %w", err)
		}
		s.Overall = &o
	}
	return s, nil
}
