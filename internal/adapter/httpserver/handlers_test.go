package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

type fakePractice struct {
	created usecase.CreatePracticeInput
	session domain.PracticeSession
	err     error
	deleted string
	answer  [2]string
}

func (f *fakePractice) Create(_ domain.Context, _ domain.Actor, in usecase.CreatePracticeInput) (domain.PracticeSession, error) {
	f.created = in
	return f.session, f.err
}
func (f *fakePractice) Get(domain.Context, domain.Actor, string) (domain.PracticeSession, error) {
	return f.session, f.err
}
func (f *fakePractice) List(domain.Context, domain.Actor) ([]domain.PracticeSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PracticeSession{f.session}, nil
}
func (f *fakePractice) Start(domain.Context, domain.Actor, string) (domain.PracticeSession, error) {
	return f.session, f.err
}
func (f *fakePractice) SubmitAnswer(_ domain.Context, _ domain.Actor, _ string, qid, text string) (domain.PracticeSession, error) {
	f.answer = [2]string{qid, text}
	return f.session, f.err
}
func (f *fakePractice) Complete(domain.Context, domain.Actor, string) (domain.PracticeSession, error) {
	return f.session, f.err
}
func (f *fakePractice) Cancel(domain.Context, domain.Actor, string) (domain.PracticeSession, error) {
	return f.session, f.err
}
func (f *fakePractice) Delete(_ domain.Context, _ domain.Actor, id string) error {
	f.deleted = id
	return f.err
}

type fakeBookings struct {
	booked  usecase.BookInput
	booking domain.BookedInterview
	reason  string
	err     error
}

func (f *fakeBookings) Book(_ domain.Context, _ domain.Actor, in usecase.BookInput) (domain.BookedInterview, error) {
	f.booked = in
	return f.booking, f.err
}
func (f *fakeBookings) Get(domain.Context, domain.Actor, string) (domain.BookedInterview, error) {
	return f.booking, f.err
}
func (f *fakeBookings) List(domain.Context, domain.Actor) ([]domain.BookedInterview, error) {
	return []domain.BookedInterview{f.booking}, f.err
}
func (f *fakeBookings) Assign(_ domain.Context, _ domain.Actor, _, interviewerID string) (domain.BookedInterview, error) {
	f.booking.InterviewerID = interviewerID
	return f.booking, f.err
}
func (f *fakeBookings) Confirm(domain.Context, domain.Actor, string) (domain.BookedInterview, error) {
	return f.booking, f.err
}
func (f *fakeBookings) Cancel(_ domain.Context, _ domain.Actor, _, reason string) (domain.BookedInterview, error) {
	f.reason = reason
	return f.booking, f.err
}
func (f *fakeBookings) Complete(domain.Context, domain.Actor, string, string) (domain.BookedInterview, error) {
	return f.booking, f.err
}

type fakeAvailability struct {
	from, to time.Time
	duration int
	days     []usecase.DayAvailability
	err      error
}

func (f *fakeAvailability) ListAvailability(_ domain.Context, _ string, from, to time.Time, d int) ([]usecase.DayAvailability, error) {
	f.from, f.to, f.duration = from, to, d
	return f.days, f.err
}

type fakeHealth struct{ checks []usecase.ReadinessCheck }

func (f fakeHealth) Readiness(domain.Context) []usecase.ReadinessCheck { return f.checks }

func sampleSession(status domain.SessionStatus) domain.PracticeSession {
	return domain.PracticeSession{
		ID:            "ps-1",
		CandidateID:   "cand-1",
		Title:         "Go practice",
		Skills:        []string{"go"},
		Difficulty:    domain.DifficultyMedium,
		QuestionCount: 1,
		Status:        status,
		Questions: []domain.Question{{
			ID:               "q-1",
			Text:             "What is a goroutine?",
			Type:             domain.QuestionTechnical,
			Skill:            "go",
			Difficulty:       domain.DifficultyMedium,
			ExpectedKeywords: []string{"scheduler"},
			ExpectedAnswer:   "A lightweight thread managed by the runtime.",
		}},
	}
}

// serve routes a single request through a handler with the actor pre-set.
func serve(t *testing.T, pattern, method, target, body string, h http.HandlerFunc, actor domain.Actor) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(WithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var candidate = domain.Actor{SubjectID: "cand-1", Role: domain.RoleCandidate}

func TestCreatePractice_MapsRequest(t *testing.T) {
	fp := &fakePractice{session: sampleSession(domain.SessionScheduled)}
	srv := NewServer(fp, nil, nil, nil, nil)

	body := `{"title":"Go","skills":["go","sql"],"difficulty":"hard","type":"behavioral","question_count":3,"experience_level":"5 years","duration_minutes":30}`
	rec := serve(t, "/practice", http.MethodPost, "/practice", body, srv.CreatePractice(), candidate)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"go", "sql"}, fp.created.Skills)
	assert.Equal(t, domain.DifficultyHard, fp.created.Difficulty)
	assert.Equal(t, domain.QuestionBehavioral, fp.created.Type)
	assert.Equal(t, 3, fp.created.QuestionCount)
	assert.Equal(t, "5 years", fp.created.ExperienceHint)
	assert.Equal(t, "ps-1", decodeBody(t, rec)["id"])
}

func TestCreatePractice_ValidationDetails(t *testing.T) {
	srv := NewServer(&fakePractice{}, nil, nil, nil, nil)

	rec := serve(t, "/practice", http.MethodPost, "/practice", `{"skills":[],"difficulty":"extreme"}`, srv.CreatePractice(), candidate)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "INVALID_ARGUMENT", e["code"])
	details := e["details"].([]any)
	fields := make([]string, 0, len(details))
	for _, d := range details {
		fields = append(fields, d.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"skills", "difficulty"}, fields)
}

func TestCreatePractice_RejectsUnknownFields(t *testing.T) {
	srv := NewServer(&fakePractice{}, nil, nil, nil, nil)
	rec := serve(t, "/practice", http.MethodPost, "/practice", `{"skills":["go"],"bogus":1}`, srv.CreatePractice(), candidate)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPracticeView_HidesExpectedAnswerFromCandidateUntilCompleted(t *testing.T) {
	fp := &fakePractice{session: sampleSession(domain.SessionInProgress)}
	srv := NewServer(fp, nil, nil, nil, nil)

	rec := serve(t, "/practice/{id}", http.MethodGet, "/practice/ps-1", "", srv.GetPractice(), candidate)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decodeBody(t, rec)["questions"].([]any)[0].(map[string]any)
	assert.NotContains(t, q, "expected_answer")
	assert.NotContains(t, q, "expected_keywords")

	admin := domain.Actor{SubjectID: "adm", Role: domain.RoleAdmin}
	rec = serve(t, "/practice/{id}", http.MethodGet, "/practice/ps-1", "", srv.GetPractice(), admin)
	q = decodeBody(t, rec)["questions"].([]any)[0].(map[string]any)
	assert.Equal(t, "A lightweight thread managed by the runtime.", q["expected_answer"])

	fp.session = sampleSession(domain.SessionCompleted)
	rec = serve(t, "/practice/{id}", http.MethodGet, "/practice/ps-1", "", srv.GetPractice(), candidate)
	q = decodeBody(t, rec)["questions"].([]any)[0].(map[string]any)
	assert.Contains(t, q, "expected_answer")
}

func TestSubmitAnswer(t *testing.T) {
	fp := &fakePractice{session: sampleSession(domain.SessionInProgress)}
	srv := NewServer(fp, nil, nil, nil, nil)

	rec := serve(t, "/practice/{id}/answers", http.MethodPost, "/practice/ps-1/answers",
		`{"question_id":"q-1","answer":"green threads"}`, srv.SubmitAnswer(), candidate)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"q-1", "green threads"}, fp.answer)

	rec = serve(t, "/practice/{id}/answers", http.MethodPost, "/practice/ps-1/answers",
		`{"answer":"x"}`, srv.SubmitAnswer(), candidate)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, "/practice/{id}/answers", http.MethodPost, "/practice/ps-1/answers",
		`{"question_id":"q-1","answer":""}`, srv.SubmitAnswer(), candidate)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "answer")
}

func TestPracticeAction_StateConflictDetails(t *testing.T) {
	fp := &fakePractice{err: &domain.StateConflict{Entity: "practice_session", From: "completed", To: "in_progress"}}
	srv := NewServer(fp, nil, nil, nil, nil)

	rec := serve(t, "/practice/{id}/start", http.MethodPost, "/practice/ps-1/start", "", srv.StartPractice(), candidate)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "STATE_CONFLICT", e["code"])
	assert.Equal(t, map[string]any{"entity": "practice_session", "current": "completed", "target": "in_progress"}, e["details"])
}

func TestDeletePractice(t *testing.T) {
	fp := &fakePractice{}
	srv := NewServer(fp, nil, nil, nil, nil)

	rec := serve(t, "/practice/{id}", http.MethodDelete, "/practice/ps-9", "", srv.DeletePractice(), candidate)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ps-9", fp.deleted)

	fp.err = domain.ErrNotFound
	rec = serve(t, "/practice/{id}", http.MethodDelete, "/practice/ps-9", "", srv.DeletePractice(), candidate)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPractice_WrapsItems(t *testing.T) {
	srv := NewServer(&fakePractice{session: sampleSession(domain.SessionScheduled)}, nil, nil, nil, nil)
	rec := serve(t, "/practice", http.MethodGet, "/practice", "", srv.ListPractice(), candidate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"], 1)
}

func TestBook_CreatedWithEndsAt(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fb := &fakeBookings{booking: domain.BookedInterview{
		ID: "b-1", CandidateID: "cand-1", ScheduledAt: at, DurationMinutes: 45, Status: domain.BookingScheduled,
	}}
	srv := NewServer(nil, fb, nil, nil, nil)

	rec := serve(t, "/bookings", http.MethodPost, "/bookings",
		`{"candidate_email":"c@example.com","scheduled_at":"2026-03-02T10:00:00Z","duration_minutes":45}`, srv.Book(), candidate)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, fb.booked.ScheduledAt.Equal(at))
	assert.Equal(t, "c@example.com", fb.booked.CandidateEmail)
	assert.Equal(t, "2026-03-02T10:45:00Z", decodeBody(t, rec)["ends_at"])
}

func TestBook_ValidatesEmailAndRequiredFields(t *testing.T) {
	srv := NewServer(nil, &fakeBookings{}, nil, nil, nil)

	rec := serve(t, "/bookings", http.MethodPost, "/bookings", `{"candidate_email":"nope"}`, srv.Book(), candidate)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeBody(t, rec)["error"].(map[string]any)["details"].([]any)
	assert.Len(t, details, 3)
}

func TestBook_ConflictIs409(t *testing.T) {
	srv := NewServer(nil, &fakeBookings{err: domain.ErrConflict}, nil, nil, nil)
	rec := serve(t, "/bookings", http.MethodPost, "/bookings",
		`{"scheduled_at":"2026-03-02T10:00:00Z","duration_minutes":45}`, srv.Book(), candidate)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelBooking_OptionalBody(t *testing.T) {
	fb := &fakeBookings{booking: domain.BookedInterview{ID: "b-1", Status: domain.BookingCancelled}}
	srv := NewServer(nil, fb, nil, nil, nil)

	rec := serve(t, "/bookings/{id}/cancel", http.MethodPost, "/bookings/b-1/cancel", "", srv.CancelBooking(), candidate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fb.reason)

	rec = serve(t, "/bookings/{id}/cancel", http.MethodPost, "/bookings/b-1/cancel", `{"reason":"sick"}`, srv.CancelBooking(), candidate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sick", fb.reason)
}

func TestAssignBooking_RequiresInterviewer(t *testing.T) {
	fb := &fakeBookings{}
	srv := NewServer(nil, fb, nil, nil, nil)
	admin := domain.Actor{SubjectID: "adm", Role: domain.RoleAdmin}

	rec := serve(t, "/bookings/{id}/assign", http.MethodPost, "/bookings/b-1/assign", `{}`, srv.AssignBooking(), admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, "/bookings/{id}/assign", http.MethodPost, "/bookings/b-1/assign", `{"interviewer_id":"int-1"}`, srv.AssignBooking(), admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "int-1", decodeBody(t, rec)["interviewer_id"])
}

func TestInterviewerAvailability(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	fa := &fakeAvailability{days: []usecase.DayAvailability{{Date: "2026-03-02", Slots: []time.Time{}}}}
	srv := NewServer(nil, nil, fa, nil, loc)
	h := srv.InterviewerAvailability()
	pattern := "/interviewers/{id}/availability"

	t.Run("defaults", func(t *testing.T) {
		rec := serve(t, pattern, http.MethodGet, "/interviewers/int-1/availability?from=2026-03-02", "", h, candidate)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 60, fa.duration)
		assert.True(t, fa.from.Equal(fa.to))
		assert.True(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc).Equal(fa.from))
		body := decodeBody(t, rec)
		assert.Equal(t, "Asia/Jakarta", body["timezone"])
		assert.Equal(t, "int-1", body["interviewer_id"])
	})

	t.Run("invalid query", func(t *testing.T) {
		rec := serve(t, pattern, http.MethodGet, "/interviewers/int-1/availability?from=03/02/2026&duration=abc", "", h, candidate)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		details := decodeBody(t, rec)["error"].(map[string]any)["details"].([]any)
		assert.Len(t, details, 2)
	})

	t.Run("resolver error", func(t *testing.T) {
		fa.err = errors.New("boom")
		defer func() { fa.err = nil }()
		rec := serve(t, pattern, http.MethodGet, "/interviewers/int-1/availability?from=2026-03-02&to=2026-03-03&duration=30", "", h, candidate)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, 30, fa.duration)
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}

func TestReadyz(t *testing.T) {
	ok := NewServer(nil, nil, nil, fakeHealth{checks: []usecase.ReadinessCheck{{Name: "postgres", OK: true}}}, nil)
	rec := serve(t, "/readyz", http.MethodGet, "/readyz", "", ok.Readyz(), domain.Actor{})
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(nil, nil, nil, fakeHealth{checks: []usecase.ReadinessCheck{{Name: "kafka", OK: false, Details: "dial"}}}, nil)
	rec = serve(t, "/readyz", http.MethodGet, "/readyz", "", down.Readyz(), domain.Actor{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "kafka")
}

func TestHealthz(t *testing.T) {
	srv := NewServer(nil, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(context.Background())
	rec := httptest.NewRecorder()
	srv.Healthz()(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
