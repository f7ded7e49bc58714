package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/pkg/textx"
)

const (
	entityBooking      = "booked_interview"
	defaultBookingT    = "Mock interview"
	maxNoteRunes       = 2000
	notifyTimeout      = 5 * time.Second
	TemplateBooked     = "interview_booked"
	TemplateConfirmed  = "interview_confirmed"
	TemplateCancelled  = "interview_cancelled"
	TemplateCompleted  = "interview_completed"
	defaultLockTimeout = 5 * time.Second
)

// BookInput holds the fields of a new human-led interview.
type BookInput struct {
	CandidateID     string
	CandidateEmail  string
	InterviewerID   string
	Title           string
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           string
}

// BookingService drives the booked interview state machine.
type BookingService struct {
	Bookings        domain.BookingRepository
	Resolver        SchedulingResolver
	Notifier        domain.Notifier
	Lock            domain.BookingLock // optional; narrows but does not close the double-booking window
	LockTTL         time.Duration
	MeetingLinkBase string
	Now             func() time.Time
}

func NewBookingService(repo domain.BookingRepository, resolver SchedulingResolver, notifier domain.Notifier, lock domain.BookingLock, lockTTL time.Duration, meetingLinkBase string) BookingService {
	if lockTTL <= 0 {
		lockTTL = defaultLockTimeout
	}
	return BookingService{
		Bookings:        repo,
		Resolver:        resolver,
		Notifier:        notifier,
		Lock:            lock,
		LockTTL:         lockTTL,
		MeetingLinkBase: meetingLinkBase,
		Now:             time.Now,
	}
}

func (s BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Book creates a Scheduled interview. Candidates book for themselves; interviewers
// and admins may book on behalf of a candidate.
func (s BookingService) Book(ctx domain.Context, actor domain.Actor, in BookInput) (domain.BookedInterview, error) {
	if err := actor.Validate(); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w", err)
	}
	candidateID := strings.TrimSpace(in.CandidateID)
	email := strings.TrimSpace(in.CandidateEmail)
	switch actor.Role {
	case domain.RoleCandidate:
		if candidateID != "" && candidateID != actor.SubjectID {
			return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w: candidates can only book for themselves", domain.ErrForbidden)
		}
		candidateID = actor.SubjectID
		if email == "" {
			email = actor.Email
		}
	default:
		if candidateID == "" {
			return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w: candidate id required", domain.ErrInvalidArgument)
		}
	}
	if err := ValidateDuration(in.DurationMinutes); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w", err)
	}
	if in.ScheduledAt.IsZero() || !in.ScheduledAt.After(s.now()) {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w: scheduled time must be in the future", domain.ErrInvalidArgument)
	}
	interviewerID := strings.TrimSpace(in.InterviewerID)
	if interviewerID != "" && interviewerID == candidateID {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w: candidate cannot interview themselves", domain.ErrInvalidArgument)
	}
	title := textx.TruncateRunes(textx.SanitizeText(in.Title), maxTitleRunes)
	if title == "" {
		title = defaultBookingT
	}

	now := s.now()
	b := domain.BookedInterview{
		CandidateID:     candidateID,
		CandidateEmail:  email,
		InterviewerID:   interviewerID,
		BookedBy:        actor.SubjectID,
		Title:           title,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		Status:          domain.BookingScheduled,
		MeetingLink:     s.meetingLink(),
		Notes:           textx.TruncateRunes(textx.SanitizeText(in.Notes), maxNoteRunes),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// the lock covers check and insert only; notification happens after release
	release := func() {}
	if interviewerID != "" {
		release = s.lock(ctx, interviewerID)
		if err := s.Resolver.CheckAvailable(ctx, interviewerID, b.ScheduledAt, b.DurationMinutes, ""); err != nil {
			release()
			return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w", err)
		}
	}
	id, err := s.Bookings.Create(ctx, b)
	release()
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.RecordBookingConflict()
		}
		return domain.BookedInterview{}, fmt.Errorf("op=booking.book: %w", err)
	}
	b.ID = id
	observability.RecordTransition(entityBooking, "new", string(b.Status))
	obsctx.LoggerFromContext(ctx).Info("interview booked",
		slog.String("booking_id", id),
		slog.String("interviewer_id", interviewerID),
		slog.Time("scheduled_at", b.ScheduledAt))
	s.notify(ctx, TemplateBooked, b)
	return b, nil
}

// Get returns a booking to one of its parties or an admin.
func (s BookingService) Get(ctx domain.Context, actor domain.Actor, id string) (domain.BookedInterview, error) {
	if err := actor.Validate(); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.get: %w", err)
	}
	b, err := s.Bookings.Get(ctx, id)
	if err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.get: %w", err)
	}
	if !b.IsParty(actor.SubjectID) && actor.Role != domain.RoleAdmin {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.get: %w", domain.ErrForbidden)
	}
	return b, nil
}

// List returns bookings where the caller is candidate, booker or interviewer.
func (s BookingService) List(ctx domain.Context, actor domain.Actor) ([]domain.BookedInterview, error) {
	if err := actor.Validate(); err != nil {
		return nil, fmt.Errorf("op=booking.list: %w", err)
	}
	out, err := s.Bookings.ListByParticipant(ctx, actor.SubjectID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("op=booking.list: %w", err)
	}
	if out == nil {
		out = []domain.BookedInterview{}
	}
	return out, nil
}

// Assign sets the interviewer of an unassigned Scheduled booking. Admins and the booker may assign.
func (s BookingService) Assign(ctx domain.Context, actor domain.Actor, id, interviewerID string) (domain.BookedInterview, error) {
	if err := actor.Validate(); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w", err)
	}
	interviewerID = strings.TrimSpace(interviewerID)
	if interviewerID == "" {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w: interviewer id required", domain.ErrInvalidArgument)
	}
	b, err := s.Bookings.Get(ctx, id)
	if err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w", err)
	}
	if actor.Role != domain.RoleAdmin && actor.SubjectID != b.BookedBy {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w", domain.ErrForbidden)
	}
	if b.Status != domain.BookingScheduled {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w", bookingConflict(b.Status, "assigned"))
	}
	if b.InterviewerID != "" {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w: interviewer already assigned", domain.ErrConflict)
	}
	if interviewerID == b.CandidateID {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w: candidate cannot interview themselves", domain.ErrInvalidArgument)
	}

	release := s.lock(ctx, interviewerID)
	defer release()
	if err := s.Resolver.CheckAvailable(ctx, interviewerID, b.ScheduledAt, b.DurationMinutes, b.ID); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w", err)
	}
	b.InterviewerID = interviewerID
	if err := s.commit(ctx, &b, domain.BookingScheduled); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.RecordBookingConflict()
		}
		return domain.BookedInterview{}, fmt.Errorf("op=booking.assign: %w", s.lostRace(ctx, id, "assigned", err))
	}
	return b, nil
}

// Confirm moves Scheduled to Confirmed. Only the assigned interviewer may confirm.
func (s BookingService) Confirm(ctx domain.Context, actor domain.Actor, id string) (domain.BookedInterview, error) {
	return s.transition(ctx, actor, id, "op=booking.confirm", domain.BookingConfirmed, TemplateConfirmed,
		func(b domain.BookedInterview) bool { return isInterviewer(b, actor) }, nil)
}

// Cancel moves Scheduled or Confirmed to Cancelled. The booker or the assigned interviewer may cancel.
func (s BookingService) Cancel(ctx domain.Context, actor domain.Actor, id, reason string) (domain.BookedInterview, error) {
	reason = textx.TruncateRunes(textx.SanitizeText(reason), maxNoteRunes)
	return s.transition(ctx, actor, id, "op=booking.cancel", domain.BookingCancelled, TemplateCancelled,
		func(b domain.BookedInterview) bool { return actor.SubjectID == b.BookedBy || isInterviewer(b, actor) },
		func(b *domain.BookedInterview) { b.CancelReason = reason })
}

// Complete moves Confirmed to Completed and stores the interviewer's notes.
func (s BookingService) Complete(ctx domain.Context, actor domain.Actor, id, notes string) (domain.BookedInterview, error) {
	notes = textx.TruncateRunes(textx.SanitizeText(notes), maxNoteRunes)
	return s.transition(ctx, actor, id, "op=booking.complete", domain.BookingCompleted, TemplateCompleted,
		func(b domain.BookedInterview) bool { return isInterviewer(b, actor) },
		func(b *domain.BookedInterview) {
			if notes != "" {
				b.Notes = notes
			}
		})
}

func (s BookingService) transition(
	ctx domain.Context,
	actor domain.Actor,
	id, op string,
	to domain.BookingStatus,
	template string,
	allowed func(domain.BookedInterview) bool,
	mutate func(*domain.BookedInterview),
) (domain.BookedInterview, error) {
	if err := actor.Validate(); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("%s: %w", op, err)
	}
	b, err := s.Bookings.Get(ctx, id)
	if err != nil {
		return domain.BookedInterview{}, fmt.Errorf("%s: %w", op, err)
	}
	if !allowed(b) {
		return domain.BookedInterview{}, fmt.Errorf("%s: %w", op, domain.ErrForbidden)
	}
	from := b.Status
	if !from.CanTransitionTo(to) {
		return domain.BookedInterview{}, fmt.Errorf("%s: %w", op, bookingConflict(from, string(to)))
	}
	b.Status = to
	if mutate != nil {
		mutate(&b)
	}
	if err := s.commit(ctx, &b, from); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("%s: %w", op, s.lostRace(ctx, id, string(to), err))
	}
	s.notify(ctx, template, b)
	return b, nil
}

func isInterviewer(b domain.BookedInterview, actor domain.Actor) bool {
	return b.InterviewerID != "" && b.InterviewerID == actor.SubjectID
}

func bookingConflict(from domain.BookingStatus, to string) error {
	return &domain.StateConflict{Entity: entityBooking, From: string(from), To: to}
}

func (s BookingService) commit(ctx domain.Context, b *domain.BookedInterview, expected domain.BookingStatus) error {
	b.UpdatedAt = s.now()
	if err := s.Bookings.Update(ctx, *b, expected); err != nil {
		return err
	}
	b.Version++
	if expected != b.Status {
		observability.RecordTransition(entityBooking, string(expected), string(b.Status))
		obsctx.LoggerFromContext(ctx).Info("booking transition",
			slog.String("booking_id", b.ID),
			slog.String("from", string(expected)),
			slog.String("to", string(b.Status)))
	}
	return nil
}

func (s BookingService) lostRace(ctx domain.Context, id, to string, err error) error {
	if !errors.Is(err, domain.ErrStateConflict) {
		return err
	}
	cur, gerr := s.Bookings.Get(ctx, id)
	if gerr != nil {
		return err
	}
	return bookingConflict(cur.Status, to)
}

// lock takes the per-interviewer lock when one is configured. Lock errors are
// logged and ignored; the store-level check still runs.
func (s BookingService) lock(ctx domain.Context, interviewerID string) func() {
	noop := func() {}
	if s.Lock == nil {
		return noop
	}
	release, err := s.Lock.Acquire(ctx, "booking:interviewer:"+interviewerID, s.LockTTL)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("booking lock unavailable; relying on write-time check",
			slog.String("interviewer_id", interviewerID), slog.Any("error", err))
		return noop
	}
	if release == nil {
		return noop
	}
	return release
}

// notify is fire-and-forget: failures are logged and counted, never returned.
func (s BookingService) notify(ctx domain.Context, template string, b domain.BookedInterview) {
	if s.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	vars := map[string]string{
		"booking_id":       b.ID,
		"title":            b.Title,
		"status":           string(b.Status),
		"scheduled_at":     b.ScheduledAt.Format(time.RFC3339),
		"duration_minutes": strconv.Itoa(b.DurationMinutes),
		"meeting_link":     b.MeetingLink,
	}
	if b.CancelReason != "" {
		vars["cancel_reason"] = b.CancelReason
	}
	to := domain.Recipient{SubjectID: b.CandidateID, Email: b.CandidateEmail}
	if err := s.Notifier.SendTemplated(nctx, template, to, vars); err != nil {
		observability.RecordNotification(template, "error")
		obsctx.LoggerFromContext(ctx).Warn("notification failed",
			slog.String("template", template),
			slog.String("booking_id", b.ID),
			slog.Any("error", err))
		return
	}
	observability.RecordNotification(template, "sent")
}

func (s BookingService) meetingLink() string {
	if s.MeetingLinkBase == "" {
		return ""
	}
	return strings.TrimRight(s.MeetingLinkBase, "/") + "/" + uuid.NewString()
}
