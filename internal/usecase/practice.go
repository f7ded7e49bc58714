package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/pkg/textx"
)

const (
	entityPractice   = "practice_session"
	listLimit        = 50
	maxTitleRunes    = 200
	maxSkills        = 10
	maxHintRunes     = 500
	maxAnswerRunes   = 10000
	submitAttempts   = 2
	defaultPracticeT = "Practice interview"
)

// CreatePracticeInput holds the candidate-supplied fields of a new session.
type CreatePracticeInput struct {
	Title           string
	Skills          []string
	Difficulty      domain.Difficulty
	Type            domain.QuestionType
	QuestionCount   int
	ExperienceHint  string
	DurationMinutes int
}

// PracticeService drives the practice session state machine.
type PracticeService struct {
	Sessions   domain.PracticeSessionRepository
	Questions  QuestionGenerator
	Evaluator  AnswerEvaluator
	Aggregator ScoreAggregator
	Now        func() time.Time
}

func NewPracticeService(repo domain.PracticeSessionRepository, q QuestionGenerator, e AnswerEvaluator, a ScoreAggregator) PracticeService {
	return PracticeService{Sessions: repo, Questions: q, Evaluator: e, Aggregator: a, Now: time.Now}
}

func (s PracticeService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create stores a new Scheduled session owned by the calling candidate.
func (s PracticeService) Create(ctx domain.Context, actor domain.Actor, in CreatePracticeInput) (domain.PracticeSession, error) {
	if err := actor.Validate(); err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w", err)
	}
	if actor.Role != domain.RoleCandidate {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: only candidates own practice sessions", domain.ErrForbidden)
	}
	skills := textx.NormalizeList(in.Skills)
	if len(skills) == 0 {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: at least one skill is required", domain.ErrInvalidArgument)
	}
	if len(skills) > maxSkills {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: at most %d skills", domain.ErrInvalidArgument, maxSkills)
	}
	if in.Difficulty == "" {
		in.Difficulty = domain.DifficultyMedium
	}
	if !in.Difficulty.Valid() {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: difficulty %q", domain.ErrInvalidArgument, in.Difficulty)
	}
	if in.Type != "" && !in.Type.Valid() {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: type %q", domain.ErrInvalidArgument, in.Type)
	}
	if in.QuestionCount == 0 {
		in.QuestionCount = DefaultQuestionCount
	}
	if in.QuestionCount < 1 || in.QuestionCount > MaxQuestionCount {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: question count must be 1..%d", domain.ErrInvalidArgument, MaxQuestionCount)
	}
	if in.DurationMinutes < 0 {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w: negative duration", domain.ErrInvalidArgument)
	}
	title := textx.TruncateRunes(textx.SanitizeText(in.Title), maxTitleRunes)
	if title == "" {
		title = defaultPracticeT
	}

	now := s.now()
	ps := domain.PracticeSession{
		CandidateID:     actor.SubjectID,
		Title:           title,
		Skills:          skills,
		Difficulty:      in.Difficulty,
		Type:            in.Type,
		QuestionCount:   in.QuestionCount,
		ExperienceHint:  textx.TruncateRunes(textx.SanitizeText(in.ExperienceHint), maxHintRunes),
		DurationMinutes: in.DurationMinutes,
		Questions:       []domain.Question{},
		Status:          domain.SessionScheduled,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	id, err := s.Sessions.Create(ctx, ps)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.create: %w", err)
	}
	ps.ID = id
	obsctx.LoggerFromContext(ctx).Info("practice session created",
		slog.String("session_id", id), slog.Int("question_count", ps.QuestionCount))
	return ps, nil
}

// Get returns a session to its owner (or an admin).
func (s PracticeService) Get(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error) {
	if err := actor.Validate(); err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.get: %w", err)
	}
	ps, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.get: %w", err)
	}
	if ps.CandidateID != actor.SubjectID && actor.Role != domain.RoleAdmin {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.get: %w", domain.ErrForbidden)
	}
	return ps, nil
}

// List returns the caller's own sessions, newest first.
func (s PracticeService) List(ctx domain.Context, actor domain.Actor) ([]domain.PracticeSession, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("op=practice.list: %w", err)
	}
	out, err := s.Sessions.ListByCandidate(ctx, actor.SubjectID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("op=practice.list: %w", err)
	}
	if out == nil {
		out = []domain.PracticeSession{}
	}
	return out, nil
}

// owned loads the session and checks that actor owns it.
func (s PracticeService) owned(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error) {
	if err := actor.Validate(); err != nil {
		return domain.PracticeSession{}, err
	}
	ps, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return domain.PracticeSession{}, err
	}
	if ps.CandidateID != actor.SubjectID {
		return domain.PracticeSession{}, fmt.Errorf("%w: session belongs to another candidate", domain.ErrForbidden)
	}
	return ps, nil
}

func practiceConflict(from domain.SessionStatus, to string) error {
	return &domain.StateConflict{Entity: entityPractice, From: string(from), To: to}
}

// lostRace turns a repository ErrStateConflict into a StateConflict naming the
// status the session has now.
func (s PracticeService) lostRace(ctx domain.Context, id string, to domain.SessionStatus, err error) error {
	if !errors.Is(err, domain.ErrStateConflict) {
		return err
	}
	cur, gerr := s.Sessions.Get(ctx, id)
	if gerr != nil {
		return err
	}
	return practiceConflict(cur.Status, string(to))
}

// commit writes ps with an optimistic (version, status) check and bumps the version.
func (s PracticeService) commit(ctx domain.Context, ps *domain.PracticeSession, expected domain.SessionStatus) error {
	ps.UpdatedAt = s.now()
	if err := s.Sessions.Update(ctx, *ps, expected); err != nil {
		return err
	}
	ps.Version++
	if expected != ps.Status {
		observability.RecordTransition(entityPractice, string(expected), string(ps.Status))
		obsctx.LoggerFromContext(ctx).Info("practice session transition",
			slog.String("session_id", ps.ID),
			slog.String("from", string(expected)),
			slog.String("to", string(ps.Status)))
	}
	return nil
}

// Start moves a Scheduled session to InProgress, generating questions first if needed.
func (s PracticeService) Start(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error) {
	ps, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.start: %w", err)
	}
	if !ps.Status.CanTransitionTo(domain.SessionInProgress) {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.start: %w", practiceConflict(ps.Status, string(domain.SessionInProgress)))
	}
	if len(ps.Questions) == 0 {
		ps.Questions = s.Questions.Generate(ctx, QuestionRequest{
			Skills:          ps.Skills,
			Difficulty:      ps.Difficulty,
			Type:            ps.Type,
			Count:           ps.QuestionCount,
			ExperienceHint:  ps.ExperienceHint,
			DurationMinutes: ps.DurationMinutes,
		})
	}
	now := s.now()
	ps.Status = domain.SessionInProgress
	ps.StartedAt = &now
	if err := s.commit(ctx, &ps, domain.SessionScheduled); err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.start: %w", s.lostRace(ctx, id, domain.SessionInProgress, err))
	}
	return ps, nil
}

// SubmitAnswer records (or replaces) the answer to one question and attaches its evaluation.
// The evaluation step cannot fail; only state, ownership and store errors are returned.
func (s PracticeService) SubmitAnswer(ctx domain.Context, actor domain.Actor, id, questionID, text string) (domain.PracticeSession, error) {
	ps, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.submit_answer: %w", err)
	}
	if ps.Status != domain.SessionInProgress {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.submit_answer: %w", practiceConflict(ps.Status, string(domain.SessionInProgress)))
	}
	idx := ps.QuestionIndex(questionID)
	if idx < 0 {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.submit_answer: %w: question %q", domain.ErrNotFound, questionID)
	}
	text = textx.SanitizeText(text)
	if text == "" {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.submit_answer: %w: answer is required", domain.ErrInvalidArgument)
	}
	if len([]rune(text)) > maxAnswerRunes {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.submit_answer: %w: answer longer than %d characters", domain.ErrInvalidArgument, maxAnswerRunes)
	}

	answer := domain.Answer{Text: text, SubmittedAt: s.now()}
	ev := s.Evaluator.Evaluate(ctx, ps.Questions[idx], text)

	// A concurrent submit for another question may win the version race; reapply on a fresh read.
	for attempt := 1; ; attempt++ {
		ps.Questions[idx].Answer = &answer
		ps.Questions[idx].Evaluation = &ev
		err = s.commit(ctx, &ps, domain.SessionInProgress)
		if err == nil {
			return ps, nil
		}
		if !errors.Is(err, domain.ErrStateConflict) || attempt >= submitAttempts {
			break
		}
		fresh, gerr := s.Sessions.Get(ctx, id)
		if gerr != nil || fresh.Status != domain.SessionInProgress || fresh.QuestionIndex(questionID) != idx {
			break
		}
		ps = fresh
	}
	return domain.PracticeSession{}, fmt.Errorf("op=practice.submit_answer: %w", s.lostRace(ctx, id, domain.SessionInProgress, err))
}

// Complete computes the verdict once. Calling it on a Completed session returns the stored verdict.
func (s PracticeService) Complete(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error) {
	ps, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.complete: %w", err)
	}
	if ps.Status == domain.SessionCompleted && ps.Overall != nil {
		return ps, nil
	}
	if ps.Status != domain.SessionInProgress {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.complete: %w", practiceConflict(ps.Status, string(domain.SessionCompleted)))
	}

	tally := domain.TallyQuestions(ps.Questions)
	narrative := s.Aggregator.Summarize(ctx, ps, tally)
	overall, err := domain.NewOverallEvaluation(tally, narrative)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.complete: %w: %v", domain.ErrInternal, err)
	}
	now := s.now()
	ps.Status = domain.SessionCompleted
	ps.CompletedAt = &now
	ps.Overall = &overall
	if err := s.commit(ctx, &ps, domain.SessionInProgress); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			// a parallel complete won; hand back its verdict
			if cur, gerr := s.Sessions.Get(ctx, id); gerr == nil && cur.Status == domain.SessionCompleted && cur.Overall != nil {
				return cur, nil
			}
		}
		return domain.PracticeSession{}, fmt.Errorf("op=practice.complete: %w", s.lostRace(ctx, id, domain.SessionCompleted, err))
	}
	observability.ObserveSessionAverage(overall.AverageScore)
	return ps, nil
}

// Cancel moves a Scheduled session to Cancelled.
func (s PracticeService) Cancel(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error) {
	ps, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.cancel: %w", err)
	}
	if !ps.Status.CanTransitionTo(domain.SessionCancelled) {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.cancel: %w", practiceConflict(ps.Status, string(domain.SessionCancelled)))
	}
	ps.Status = domain.SessionCancelled
	if err := s.commit(ctx, &ps, domain.SessionScheduled); err != nil {
		return domain.PracticeSession{}, fmt.Errorf("op=practice.cancel: %w", s.lostRace(ctx, id, domain.SessionCancelled, err))
	}
	return ps, nil
}

// Delete removes a session that has not been started.
func (s PracticeService) Delete(ctx domain.Context, actor domain.Actor, id string) error {
	ps, err := s.owned(ctx, actor, id)
	if err != nil {
		return fmt.Errorf("op=practice.delete: %w", err)
	}
	if ps.Status != domain.SessionScheduled {
		return fmt.Errorf("op=practice.delete: %w", practiceConflict(ps.Status, "deleted"))
	}
	if err := s.Sessions.Delete(ctx, id, domain.SessionScheduled); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			if cur, gerr := s.Sessions.Get(ctx, id); gerr == nil {
				err = practiceConflict(cur.Status, "deleted")
			}
		}
		return fmt.Errorf("op=practice.delete: %w", err)
	}
	observability.RecordTransition(entityPractice, string(domain.SessionScheduled), "deleted")
	obsctx.LoggerFromContext(ctx).Info("practice session deleted", slog.String("session_id", id))
	return nil
}
