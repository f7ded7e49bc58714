package domain

import "time"

// BookingStatus is the state of a human-led interview.
type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingScheduled: {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Active reports whether the booking occupies the interviewer's calendar.
func (s BookingStatus) Active() bool { return s == BookingScheduled || s == BookingConfirmed }

// ActiveBookingStatuses lists the statuses that participate in overlap checks.
var ActiveBookingStatuses = []BookingStatus{BookingScheduled, BookingConfirmed}

// BookedInterview is a human-led session. InterviewerID may be empty until assigned.
type BookedInterview struct {
	ID              string
	CandidateID     string
	CandidateEmail  string
	InterviewerID   string
	BookedBy        string
	Title           string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          BookingStatus
	MeetingLink     string
	Notes           string
	CancelReason    string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is the exclusive end of the booking interval.
func (b BookedInterview) End() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// IsParty reports whether subjectID is the candidate, the booker or the assigned interviewer.
func (b BookedInterview) IsParty(subjectID string) bool {
	return subjectID != "" && (subjectID == b.CandidateID || subjectID == b.BookedBy || subjectID == b.InterviewerID)
}
