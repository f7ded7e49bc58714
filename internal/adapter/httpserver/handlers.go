package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

// PracticeAPI is the practice session use case as seen by the handlers.
type PracticeAPI interface {
	Create(ctx domain.Context, actor domain.Actor, in usecase.CreatePracticeInput) (domain.PracticeSession, error)
	Get(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error)
	List(ctx domain.Context, actor domain.Actor) ([]domain.PracticeSession, error)
	Start(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error)
	SubmitAnswer(ctx domain.Context, actor domain.Actor, id, questionID, text string) (domain.PracticeSession, error)
	Complete(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error)
	Cancel(ctx domain.Context, actor domain.Actor, id string) (domain.PracticeSession, error)
	Delete(ctx domain.Context, actor domain.Actor, id string) error
}

// BookingAPI is the booked interview use case as seen by the handlers.
type BookingAPI interface {
	Book(ctx domain.Context, actor domain.Actor, in usecase.BookInput) (domain.BookedInterview, error)
	Get(ctx domain.Context, actor domain.Actor, id string) (domain.BookedInterview, error)
	List(ctx domain.Context, actor domain.Actor) ([]domain.BookedInterview, error)
	Assign(ctx domain.Context, actor domain.Actor, id, interviewerID string) (domain.BookedInterview, error)
	Confirm(ctx domain.Context, actor domain.Actor, id string) (domain.BookedInterview, error)
	Cancel(ctx domain.Context, actor domain.Actor, id, reason string) (domain.BookedInterview, error)
	Complete(ctx domain.Context, actor domain.Actor, id, notes string) (domain.BookedInterview, error)
}

type AvailabilityAPI interface {
	ListAvailability(ctx domain.Context, interviewerID string, from, to time.Time, durationMinutes int) ([]usecase.DayAvailability, error)
}

type ReadinessAPI interface {
	Readiness(ctx domain.Context) []usecase.ReadinessCheck
}

// Server aggregates handler dependencies.
type Server struct {
	Practice     PracticeAPI
	Bookings     BookingAPI
	Availability AvailabilityAPI
	Health       ReadinessAPI
	// Location interprets date-only query parameters.
	Location *time.Location
}

func NewServer(practice PracticeAPI, bookings BookingAPI, availability AvailabilityAPI, health ReadinessAPI, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{Practice: practice, Bookings: bookings, Availability: availability, Health: health, Location: loc}
}

type createPracticeRequest struct {
	Title           string   `json:"title" validate:"max=200"`
	Skills          []string `json:"skills" validate:"required,min=1,max=10,dive,required,max=100"`
	Difficulty      string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Type            string   `json:"type" validate:"omitempty,oneof=technical behavioral situational"`
	QuestionCount   int      `json:"question_count" validate:"min=0,max=20"`
	ExperienceLevel string   `json:"experience_level" validate:"max=500"`
	DurationMinutes int      `json:"duration_minutes" validate:"min=0,max=240"`
}

type submitAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required,max=64"`
	Answer     string `json:"answer" validate:"required,max=20000"`
}

type bookRequest struct {
	CandidateID     string    `json:"candidate_id" validate:"max=128"`
	CandidateEmail  string    `json:"candidate_email" validate:"omitempty,email"`
	InterviewerID   string    `json:"interviewer_id" validate:"max=128"`
	Title           string    `json:"title" validate:"max=200"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

type assignRequest struct {
	InterviewerID string `json:"interviewer_id" validate:"required,max=128"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type completeBookingRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// decodeOptional accepts an empty body as the zero request.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) ([]ValidationError, error) {
	if r.ContentLength == 0 {
		return validateStruct(dst)
	}
	return decodeJSON(w, r, dst)
}

func (s *Server) CreatePractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPracticeRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		ps, err := s.Practice.Create(r.Context(), ActorFrom(r.Context()), usecase.CreatePracticeInput{
			Title:           req.Title,
			Skills:          req.Skills,
			Difficulty:      domain.Difficulty(req.Difficulty),
			Type:            domain.QuestionType(req.Type),
			QuestionCount:   req.QuestionCount,
			ExperienceHint:  req.ExperienceLevel,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, newPracticeView(ps, ActorFrom(r.Context())))
	}
}

func (s *Server) ListPractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFrom(r.Context())
		list, err := s.Practice.List(r.Context(), actor)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]practiceView, 0, len(list))
		for _, ps := range list {
			items = append(items, newPracticeView(ps, actor))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// practiceAction wraps the id-only practice transitions.
func (s *Server) practiceAction(fn func(domain.Context, domain.Actor, string) (domain.PracticeSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFrom(r.Context())
		ps, err := fn(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, newPracticeView(ps, actor))
	}
}

func (s *Server) GetPractice() http.HandlerFunc      { return s.practiceAction(s.Practice.Get) }
func (s *Server) StartPractice() http.HandlerFunc    { return s.practiceAction(s.Practice.Start) }
func (s *Server) CompletePractice() http.HandlerFunc { return s.practiceAction(s.Practice.Complete) }
func (s *Server) CancelPractice() http.HandlerFunc   { return s.practiceAction(s.Practice.Cancel) }

func (s *Server) SubmitAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitAnswerRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		actor := ActorFrom(r.Context())
		ps, err := s.Practice.SubmitAnswer(r.Context(), actor, chi.URLParam(r, "id"), req.QuestionID, req.Answer)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, newPracticeView(ps, actor))
	}
}

func (s *Server) DeletePractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Practice.Delete(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) Book() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bookRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		b, err := s.Bookings.Book(r.Context(), ActorFrom(r.Context()), usecase.BookInput{
			CandidateID:     req.CandidateID,
			CandidateEmail:  req.CandidateEmail,
			InterviewerID:   req.InterviewerID,
			Title:           req.Title,
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, newBookingView(b))
	}
}

func (s *Server) ListBookings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Bookings.List(r.Context(), ActorFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		items := make([]bookingView, 0, len(list))
		for _, b := range list {
			items = append(items, newBookingView(b))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (s *Server) bookingResult(w http.ResponseWriter, r *http.Request, b domain.BookedInterview, err error) {
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(b))
}

func (s *Server) GetBooking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.Bookings.Get(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
		s.bookingResult(w, r, b, err)
	}
}

func (s *Server) ConfirmBooking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.Bookings.Confirm(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"))
		s.bookingResult(w, r, b, err)
	}
}

func (s *Server) AssignBooking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if details, err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		b, err := s.Bookings.Assign(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req.InterviewerID)
		s.bookingResult(w, r, b, err)
	}
}

func (s *Server) CancelBooking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		if details, err := decodeOptional(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		b, err := s.Bookings.Cancel(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
		s.bookingResult(w, r, b, err)
	}
}

func (s *Server) CompleteBooking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req completeBookingRequest
		if details, err := decodeOptional(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		b, err := s.Bookings.Complete(r.Context(), ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Notes)
		s.bookingResult(w, r, b, err)
	}
}

// Availability serves GET /v1/interviewers/{id}/availability?from=&to=&duration=.
// from and to are dates in the scheduling zone; to defaults to from, duration to 60.
func (s *Server) InterviewerAvailability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var details []ValidationError
		from, err := time.ParseInLocation(time.DateOnly, q.Get("from"), s.Location)
		if err != nil {
			details = append(details, ValidationError{Field: "from", Code: "INVALID_FORMAT", Message: "from must be YYYY-MM-DD"})
		}
		to := from
		if v := q.Get("to"); v != "" {
			if to, err = time.ParseInLocation(time.DateOnly, v, s.Location); err != nil {
				details = append(details, ValidationError{Field: "to", Code: "INVALID_FORMAT", Message: "to must be YYYY-MM-DD"})
			}
		}
		duration := 60
		if v := q.Get("duration"); v != "" {
			if duration, err = strconv.Atoi(v); err != nil {
				details = append(details, ValidationError{Field: "duration", Code: "INVALID_FORMAT", Message: "duration must be an integer number of minutes"})
			}
		}
		if len(details) > 0 {
			writeError(w, r, errInvalidQuery, details)
			return
		}
		interviewerID := chi.URLParam(r, "id")
		days, err := s.Availability.ListAvailability(r.Context(), interviewerID, from, to, duration)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"interviewer_id":   interviewerID,
			"duration_minutes": duration,
			"timezone":         s.Location.String(),
			"days":             days,
		})
	}
}

// Healthz is liveness only.
func (s *Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Readyz reports 503 while any dependency probe fails.
func (s *Server) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := s.Health.Readiness(r.Context())
		status := http.StatusOK
		if !usecase.Ready(checks) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
