package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain/mocks"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

var (
	alice = domain.Actor{SubjectID: "cand-alice", Role: domain.RoleCandidate}
	bob   = domain.Actor{SubjectID: "cand-bob", Role: domain.RoleCandidate}
	admin = domain.Actor{SubjectID: "admin-1", Role: domain.RoleAdmin}
)

func newPracticeService(repo domain.PracticeSessionRepository, llm domain.LLMGateway) usecase.PracticeService {
	svc := usecase.NewPracticeService(repo,
		usecase.NewQuestionGenerator(llm),
		newEvaluator(llm),
		usecase.NewScoreAggregator(llm))
	svc.Now = func() time.Time { return fixedNow }
	return svc
}

// scoringLLM answers every task; evaluations score the answer text when it is a number.
func scoringLLM() *llmFunc {
	return newLLM(func(p string) (string, error) {
		switch taskOf(p) {
		case usecase.OpGenerateQuestions:
			return `[{"id":"q1","question":"One?"},{"id":"q2","question":"Two?"},{"id":"q3","question":"Three?"}]`, nil
		case usecase.OpEvaluateAnswer:
			return fmt.Sprintf(`{"score": %s, "feedback": "scored"}`, answerOf(p)), nil
		case usecase.OpSummarizeSession:
			return `{"feedback": "Solid session.", "strengths": ["clarity"], "improvements": ["depth"], "recommendation": "positive"}`, nil
		}
		return "", errors.New("unexpected task")
	})
}

func createStarted(t *testing.T, svc usecase.PracticeService) domain.PracticeSession {
	t.Helper()
	ps, err := svc.Create(context.Background(), alice, usecase.CreatePracticeInput{Skills: []string{"Go"}, QuestionCount: 3})
	require.NoError(t, err)
	ps, err = svc.Start(context.Background(), alice, ps.ID)
	require.NoError(t, err)
	return ps
}

func TestPractice_Create(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())
	ctx := context.Background()

	ps, err := svc.Create(ctx, alice, usecase.CreatePracticeInput{Skills: []string{" Go ", "go", "SQL"}})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionScheduled, ps.Status)
	assert.Equal(t, []string{"Go", "SQL"}, ps.Skills)
	assert.Equal(t, usecase.DefaultQuestionCount, ps.QuestionCount)
	assert.Equal(t, domain.DifficultyMedium, ps.Difficulty)
	assert.Equal(t, "Practice interview", ps.Title)
	assert.Empty(t, ps.Questions)
	assert.Nil(t, ps.Overall)

	invalid := []usecase.CreatePracticeInput{
		{},
		{Skills: []string{"Go"}, Difficulty: "impossible"},
		{Skills: []string{"Go"}, QuestionCount: 21},
		{Skills: []string{"Go"}, QuestionCount: -1},
		{Skills: []string{"Go"}, Type: "trivia"},
	}
	for i, in := range invalid {
		_, err := svc.Create(ctx, alice, in)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "case %d", i)
	}

	_, err = svc.Create(ctx, domain.Actor{SubjectID: "iv", Role: domain.RoleInterviewer}, usecase.CreatePracticeInput{Skills: []string{"Go"}})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Create(ctx, domain.Actor{}, usecase.CreatePracticeInput{Skills: []string{"Go"}})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestPractice_StartGeneratesQuestions(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())
	ps := createStarted(t, svc)
	assert.Equal(t, domain.SessionInProgress, ps.Status)
	require.NotNil(t, ps.StartedAt)
	assert.Equal(t, fixedNow, *ps.StartedAt)
	assert.Len(t, ps.Questions, 3)
	assert.Equal(t, 2, ps.Version)
}

func TestPractice_StartSurvivesModelOutage(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), failing(domain.ErrUpstreamTimeout))
	ps := createStarted(t, svc)
	assert.Equal(t, domain.SessionInProgress, ps.Status)
	assert.NotEmpty(t, ps.Questions)
}

func TestPractice_OwnershipAndNotFound(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())
	ctx := context.Background()
	ps, err := svc.Create(ctx, alice, usecase.CreatePracticeInput{Skills: []string{"Go"}})
	require.NoError(t, err)

	_, err = svc.Start(ctx, bob, ps.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Get(ctx, bob, ps.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Get(ctx, admin, ps.ID)
	assert.NoError(t, err)
	_, err = svc.Start(ctx, alice, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := svc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPractice_SubmitAnswer(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())
	ctx := context.Background()
	ps := createStarted(t, svc)

	ps, err := svc.SubmitAnswer(ctx, alice, ps.ID, "q1", "6")
	require.NoError(t, err)
	require.NotNil(t, ps.Questions[0].Answer)
	require.NotNil(t, ps.Questions[0].Evaluation)
	assert.Equal(t, 6, ps.Questions[0].Evaluation.Score)

	// re-answerable while in progress
	ps, err = svc.SubmitAnswer(ctx, alice, ps.ID, "q1", "9")
	require.NoError(t, err)
	assert.Equal(t, "9", ps.Questions[0].Answer.Text)
	assert.Equal(t, 9, ps.Questions[0].Evaluation.Score)

	_, err = svc.SubmitAnswer(ctx, alice, ps.ID, "q2", " \n\t ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "blank answers are rejected")
	stored, err := svc.Get(ctx, alice, ps.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Questions[1].Answer)

	_, err = svc.SubmitAnswer(ctx, alice, ps.ID, "q404", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.SubmitAnswer(ctx, bob, ps.ID, "q1", "x")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPractice_SubmitAnswerNeverFailsOnModelErrors(t *testing.T) {
	repo := newMemPracticeRepo()
	svc := newPracticeService(repo, scoringLLM())
	ps := createStarted(t, svc)

	down := newPracticeService(repo, failing(domain.ErrUpstreamUnavailable))
	ps, err := down.SubmitAnswer(context.Background(), alice, ps.ID, "q2", "a thoughtful answer")
	require.NoError(t, err)
	assert.Equal(t, 5, ps.Questions[1].Evaluation.Score)
}

func TestPractice_SubmitBeforeStartIsStateConflict(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())
	ps, err := svc.Create(context.Background(), alice, usecase.CreatePracticeInput{Skills: []string{"Go"}})
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(context.Background(), alice, ps.ID, "q1", "x")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

// 3 questions, answers scored 6 and 8, one unanswered.
func TestPractice_CompleteExample(t *testing.T) {
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())
	ctx := context.Background()
	ps := createStarted(t, svc)

	_, err := svc.SubmitAnswer(ctx, alice, ps.ID, "q1", "6")
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, alice, ps.ID, "q2", "8")
	require.NoError(t, err)

	done, err := svc.Complete(ctx, alice, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.Overall)
	assert.Equal(t, 2, done.Overall.CompletedQuestions)
	assert.Equal(t, 14, done.Overall.TotalScore)
	assert.InDelta(t, 7.0, done.Overall.AverageScore, 1e-9)
	assert.Equal(t, 3, done.Overall.TotalQuestions)
	assert.Equal(t, domain.RecommendPositive, done.Overall.Recommendation)
}

func TestPractice_CompleteIsIdempotent(t *testing.T) {
	llm := scoringLLM()
	svc := newPracticeService(newMemPracticeRepo(), llm)
	ctx := context.Background()
	ps := createStarted(t, svc)
	_, err := svc.SubmitAnswer(ctx, alice, ps.ID, "q1", "7")
	require.NoError(t, err)

	first, err := svc.Complete(ctx, alice, ps.ID)
	require.NoError(t, err)
	calls := llm.calls.Load()

	second, err := svc.Complete(ctx, alice, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.Overall, *second.Overall)
	assert.Equal(t, 1, second.Overall.CompletedQuestions)
	assert.Equal(t, calls, llm.calls.Load(), "verdict must not be recomputed")
}

func TestPractice_CompleteWithModelDownKeepsNumbers(t *testing.T) {
	repo := newMemPracticeRepo()
	svc := newPracticeService(repo, scoringLLM())
	ctx := context.Background()
	ps := createStarted(t, svc)
	_, err := svc.SubmitAnswer(ctx, alice, ps.ID, "q1", "6")
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, alice, ps.ID, "q2", "8")
	require.NoError(t, err)

	done, err := newPracticeService(repo, failing(domain.ErrUpstreamTimeout)).Complete(ctx, alice, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, done.Overall.TotalScore)
	assert.InDelta(t, 7.0, done.Overall.AverageScore, 1e-9)
	assert.Equal(t, usecase.FallbackNarrative().Feedback, done.Overall.Feedback)
	assert.Equal(t, domain.RecommendNeutral, done.Overall.Recommendation)
}

func TestPractice_StateMonotonicity(t *testing.T) {
	ctx := context.Background()
	svc := newPracticeService(newMemPracticeRepo(), scoringLLM())

	// completed is terminal
	ps := createStarted(t, svc)
	_, err := svc.Cancel(ctx, alice, ps.ID)
	assert.ErrorIs(t, err, domain.ErrStateConflict, "in-progress sessions cannot be cancelled")
	assert.ErrorIs(t, svc.Delete(ctx, alice, ps.ID), domain.ErrStateConflict)
	_, err = svc.Complete(ctx, alice, ps.ID)
	require.NoError(t, err)

	_, err = svc.Start(ctx, alice, ps.ID)
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	_, err = svc.SubmitAnswer(ctx, alice, ps.ID, "q1", "5")
	assert.ErrorIs(t, err, domain.ErrStateConflict)
	_, err = svc.Cancel(ctx, alice, ps.ID)
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	// cancelled is terminal
	c, err := svc.Create(ctx, alice, usecase.CreatePracticeInput{Skills: []string{"Go"}})
	require.NoError(t, err)
	c, err = svc.Cancel(ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCancelled, c.Status)
	_, err = svc.Start(ctx, alice, c.ID)
	var sc *domain.StateConflict
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "cancelled", sc.From)
	assert.Equal(t, "in_progress", sc.To)
	_, err = svc.Complete(ctx, alice, c.ID)
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestPractice_DeleteOnlyWhileScheduled(t *testing.T) {
	repo := newMemPracticeRepo()
	svc := newPracticeService(repo, scoringLLM())
	ctx := context.Background()
	ps, err := svc.Create(ctx, alice, usecase.CreatePracticeInput{Skills: []string{"Go"}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, bob, ps.ID), domain.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, alice, ps.ID))
	_, err = svc.Get(ctx, alice, ps.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPractice_LostRaceReportsCurrentState(t *testing.T) {
	repo := mocks.NewMockPracticeSessionRepository(t)
	svc := newPracticeService(repo, ai.NewMockProvider())
	ctx := context.Background()

	scheduled := domain.PracticeSession{ID: "ps-1", CandidateID: alice.SubjectID, Skills: []string{"Go"}, QuestionCount: 2, Status: domain.SessionScheduled, Version: 1}
	cancelled := scheduled
	cancelled.Status = domain.SessionCancelled
	cancelled.Version = 2

	repo.On("Get", mock.Anything, "ps-1").Return(scheduled, nil).Once()
	repo.On("Update", mock.Anything, mock.MatchedBy(func(s domain.PracticeSession) bool {
		return s.Status == domain.SessionInProgress && s.Version == 1 && len(s.Questions) == 2 && s.StartedAt != nil
	}), domain.SessionScheduled).Return(domain.ErrStateConflict).Once()
	repo.On("Get", mock.Anything, "ps-1").Return(cancelled, nil).Once()

	_, err := svc.Start(ctx, alice, "ps-1")
	var sc *domain.StateConflict
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "cancelled", sc.From)
	assert.Contains(t, err.Error(), "op=practice.start")
}

func TestPractice_ConcurrentCompleteReturnsWinner(t *testing.T) {
	repo := mocks.NewMockPracticeSessionRepository(t)
	svc := newPracticeService(repo, failing(domain.ErrUpstreamTimeout))
	ctx := context.Background()

	inProgress := domain.PracticeSession{ID: "ps-1", CandidateID: alice.SubjectID, Status: domain.SessionInProgress, Version: 3,
		Questions: []domain.Question{{ID: "q1", Text: "Q"}}}
	winner := inProgress
	winner.Status = domain.SessionCompleted
	winner.Version = 4
	winner.Overall = &domain.OverallEvaluation{TotalQuestions: 1, Feedback: "winner", Recommendation: domain.RecommendNeutral}

	repo.On("Get", mock.Anything, "ps-1").Return(inProgress, nil).Once()
	repo.On("Update", mock.Anything, mock.Anything, domain.SessionInProgress).Return(domain.ErrStateConflict).Once()
	repo.On("Get", mock.Anything, "ps-1").Return(winner, nil).Once()

	got, err := svc.Complete(ctx, alice, "ps-1")
	require.NoError(t, err)
	assert.Equal(t, "winner", got.Overall.Feedback)
}

func TestPractice_StoreErrorsPropagate(t *testing.T) {
	repo := mocks.NewMockPracticeSessionRepository(t)
	svc := newPracticeService(repo, ai.NewMockProvider())
	boom := errors.New("connection reset")
	repo.On("Get", mock.Anything, "ps-1").Return(domain.PracticeSession{}, boom).Once()

	_, err := svc.Complete(context.Background(), alice, "ps-1")
	assert.ErrorIs(t, err, boom)
}
