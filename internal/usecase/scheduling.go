package usecase

import (
	"fmt"
	"sort"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 240
)

// DayAvailability lists the free slot starts of one calendar day in the scheduling time zone.
type DayAvailability struct {
	Date  string      `json:"date"`
	Slots []time.Time `json:"slots"`
}

// SchedulingResolver computes free slots and performs the authoritative overlap check.
type SchedulingResolver struct {
	Bookings     domain.BookingRepository
	Location     *time.Location
	DayStartHour int
	DayEndHour   int
	Step         time.Duration
	MaxRangeDays int
	Now          func() time.Time
}

func NewSchedulingResolver(repo domain.BookingRepository, loc *time.Location, startHour, endHour int, step time.Duration, maxDays int) SchedulingResolver {
	if loc == nil {
		loc = time.UTC
	}
	if step <= 0 {
		step = 30 * time.Minute
	}
	if maxDays <= 0 {
		maxDays = 31
	}
	return SchedulingResolver{Bookings: repo, Location: loc, DayStartHour: startHour, DayEndHour: endHour, Step: step, MaxRangeDays: maxDays, Now: time.Now}
}

// ValidateDuration checks a booking length in minutes.
func ValidateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration must be %d..%d minutes", domain.ErrInvalidArgument, MinDurationMinutes, MaxDurationMinutes)
	}
	return nil
}

// ListAvailability returns, for each day in [from, to] (dates in the scheduling zone),
// the slot starts at which a booking of durationMinutes would not overlap an active booking.
func (r SchedulingResolver) ListAvailability(ctx domain.Context, interviewerID string, from, to time.Time, durationMinutes int) ([]DayAvailability, error) {
	if interviewerID == "" {
		return nil, fmt.Errorf("op=schedule.availability: %w: interviewer id required", domain.ErrInvalidArgument)
	}
	if err := ValidateDuration(durationMinutes); err != nil {
		return nil, fmt.Errorf("op=schedule.availability: %w", err)
	}
	first := r.civilDay(from)
	last := r.civilDay(to)
	if last.Before(first) {
		return nil, fmt.Errorf("op=schedule.availability: %w: range end before start", domain.ErrInvalidArgument)
	}
	days := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days++
	}
	if days > r.MaxRangeDays {
		return nil, fmt.Errorf("op=schedule.availability: %w: range longer than %d days", domain.ErrInvalidArgument, r.MaxRangeDays)
	}

	open, _ := r.businessHours(first)
	_, closing := r.businessHours(last)
	busy, err := r.Bookings.ListActiveByInterviewer(ctx, interviewerID, open, closing)
	if err != nil {
		return nil, fmt.Errorf("op=schedule.availability: %w", err)
	}
	dur := time.Duration(durationMinutes) * time.Minute
	notBefore := r.now()
	out := make([]DayAvailability, 0, days)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		slots := FreeSlots(r.candidateSlots(d, dur), dur, busy)
		kept := slots[:0]
		for _, s := range slots {
			if !s.Before(notBefore) {
				kept = append(kept, s)
			}
		}
		out = append(out, DayAvailability{Date: d.Format(time.DateOnly), Slots: kept})
	}
	return out, nil
}

// CheckAvailable rejects an interval that overlaps an active booking of the
// interviewer. excludeID skips the booking being modified.
func (r SchedulingResolver) CheckAvailable(ctx domain.Context, interviewerID string, start time.Time, durationMinutes int, excludeID string) error {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	// bookings are at most MaxDurationMinutes long, so widen the query window by that much
	pad := time.Duration(MaxDurationMinutes) * time.Minute
	busy, err := r.Bookings.ListActiveByInterviewer(ctx, interviewerID, start.Add(-pad), end.Add(pad))
	if err != nil {
		return err
	}
	for _, b := range busy {
		if b.ID == excludeID || !b.Status.Active() {
			continue
		}
		if domain.Overlaps(start, end, b.ScheduledAt, b.End()) {
			observability.RecordBookingConflict()
			return fmt.Errorf("%w: interviewer already booked %s-%s", domain.ErrConflict,
				b.ScheduledAt.In(r.loc()).Format(time.RFC3339), b.End().In(r.loc()).Format(time.RFC3339))
		}
	}
	return nil
}

// FreeSlots keeps the candidate starts whose [start, start+dur) misses every active booking.
func FreeSlots(candidates []time.Time, dur time.Duration, bookings []domain.BookedInterview) []time.Time {
	active := make([]domain.BookedInterview, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.Active() {
			active = append(active, b)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ScheduledAt.Before(active[j].ScheduledAt) })
	out := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		free := true
		for _, b := range active {
			if !b.ScheduledAt.Before(c.Add(dur)) {
				break
			}
			if domain.Overlaps(c, c.Add(dur), b.ScheduledAt, b.End()) {
				free = false
				break
			}
		}
		if free {
			out = append(out, c)
		}
	}
	return out
}

// candidateSlots steps through the business day; a slot must end by close of business.
func (r SchedulingResolver) candidateSlots(day time.Time, dur time.Duration) []time.Time {
	open, closing := r.businessHours(day)
	step := r.Step
	if step <= 0 {
		step = 30 * time.Minute
	}
	var out []time.Time
	for t := open; !t.Add(dur).After(closing); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// civilDay anchors the calendar date of t at local noon. Midnight is skipped
// by DST changes in some zones (America/Havana, America/Santiago); noon is not.
func (r SchedulingResolver) civilDay(t time.Time) time.Time {
	t = t.In(r.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, r.loc())
}

func (r SchedulingResolver) businessHours(day time.Time) (open, closing time.Time) {
	y, m, d := day.Date()
	open = time.Date(y, m, d, r.DayStartHour, 0, 0, 0, r.loc())
	closing = time.Date(y, m, d, r.DayEndHour, 0, 0, 0, r.loc())
	return open, closing
}

func (r SchedulingResolver) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r SchedulingResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
