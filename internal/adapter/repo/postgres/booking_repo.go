package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

const bookingColumns = `id, candidate_id, candidate_email, COALESCE(interviewer_id, ''), booked_by, title,
	scheduled_at, duration_minutes, status, meeting_link, notes, cancel_reason, version, created_at, updated_at`

// BookingRepo persists booked interviews. The booked_interviews_no_overlap
// exclusion constraint is the authoritative double-booking check.
type BookingRepo struct{ Pool PgxPool }

// NewBookingRepo constructs a BookingRepo with the given pool.
func NewBookingRepo(p PgxPool) *BookingRepo { return &BookingRepo{Pool: p} }

var _ domain.BookingRepository = (*BookingRepo)(nil)

func activeStatuses() []string {
	out := make([]string, 0, len(domain.ActiveBookingStatuses))
	for _, s := range domain.ActiveBookingStatuses {
		out = append(out, string(s))
	}
	return out
}

// Create inserts b. An overlapping active booking of the same interviewer yields domain.ErrConflict.
func (r *BookingRepo) Create(ctx domain.Context, b domain.BookedInterview) (string, error) {
	ctx, span := startSpan(ctx, "booked_interviews", "INSERT", "bookings.Create")
	defer span.End()
	id := b.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.Version == 0 {
		b.Version = 1
	}
	q := `INSERT INTO booked_interviews (id, candidate_id, candidate_email, interviewer_id, booked_by, title,
			scheduled_at, ends_at, duration_minutes, status, meeting_link, notes, cancel_reason, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.Pool.Exec(ctx, q, id, b.CandidateID, b.CandidateEmail, nullIfEmpty(b.InterviewerID), b.BookedBy, b.Title,
		b.ScheduledAt, b.End(), b.DurationMinutes, b.Status, b.MeetingLink, b.Notes, b.CancelReason, b.Version, b.CreatedAt, now)
	if err != nil {
		return "", fmt.Errorf("op=booking_repo.create: %w", overlapError(err))
	}
	return id, nil
}

// Get loads a booking by id.
func (r *BookingRepo) Get(ctx domain.Context, id string) (domain.BookedInterview, error) {
	ctx, span := startSpan(ctx, "booked_interviews", "SELECT", "bookings.Get")
	defer span.End()
	if _, err := uuid.Parse(id); err != nil {
		return domain.BookedInterview{}, fmt.Errorf("op=booking_repo.get: %w", domain.ErrNotFound)
	}
	b, err := scanBooking(r.Pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM booked_interviews WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BookedInterview{}, fmt.Errorf("op=booking_repo.get: %w", domain.ErrNotFound)
		}
		return domain.BookedInterview{}, fmt.Errorf("op=booking_repo.get: %w", err)
	}
	return b, nil
}

// ListByParticipant returns bookings where subjectID is candidate, booker or interviewer.
func (r *BookingRepo) ListByParticipant(ctx domain.Context, subjectID string, limit int) ([]domain.BookedInterview, error) {
	ctx, span := startSpan(ctx, "booked_interviews", "SELECT", "bookings.ListByParticipant")
	defer span.End()
	return r.list(ctx, "op=booking_repo.list", `SELECT `+bookingColumns+` FROM booked_interviews
		WHERE candidate_id=$1 OR booked_by=$1 OR interviewer_id=$1
		ORDER BY scheduled_at DESC LIMIT $2`, subjectID, limit)
}

// ListActiveByInterviewer returns Scheduled/Confirmed bookings intersecting [from, to).
func (r *BookingRepo) ListActiveByInterviewer(ctx domain.Context, interviewerID string, from, to time.Time) ([]domain.BookedInterview, error) {
	ctx, span := startSpan(ctx, "booked_interviews", "SELECT", "bookings.ListActiveByInterviewer")
	defer span.End()
	return r.list(ctx, "op=booking_repo.list_active", `SELECT `+bookingColumns+` FROM booked_interviews
		WHERE interviewer_id=$1 AND status = ANY($2) AND scheduled_at < $4 AND ends_at > $3
		ORDER BY scheduled_at`, interviewerID, activeStatuses(), from, to)
}

func (r *BookingRepo) list(ctx domain.Context, op, q string, args ...any) ([]domain.BookedInterview, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	out := []domain.BookedInterview{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Update writes the mutable fields when both version and status still match.
func (r *BookingRepo) Update(ctx domain.Context, b domain.BookedInterview, expected domain.BookingStatus) error {
	ctx, span := startSpan(ctx, "booked_interviews", "UPDATE", "bookings.Update")
	defer span.End()
	q := `UPDATE booked_interviews
		SET interviewer_id=$4, status=$5, notes=$6, cancel_reason=$7, version=version+1, updated_at=$8
		WHERE id=$1 AND version=$2 AND status=$3`
	tag, err := r.Pool.Exec(ctx, q, b.ID, b.Version, expected, nullIfEmpty(b.InterviewerID), b.Status,
		b.Notes, b.CancelReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=booking_repo.update: %w", overlapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=booking_repo.update: %w", missingOr(ctx, r.Pool, "booked_interviews", b.ID, domain.ErrStateConflict))
	}
	return nil
}

func scanBooking(row pgx.Row) (domain.BookedInterview, error) {
	var b domain.BookedInterview
	err := row.Scan(&b.ID, &b.CandidateID, &b.CandidateEmail, &b.InterviewerID, &b.BookedBy, &b.Title,
		&b.ScheduledAt, &b.DurationMinutes, &b.Status, &b.MeetingLink, &b.Notes, &b.CancelReason,
		&b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.BookedInterview{}, err
	}
	b.ScheduledAt = b.ScheduledAt.UTC()
	return b, nil
}
