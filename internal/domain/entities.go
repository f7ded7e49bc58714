package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrStateConflict       = errors.New("state conflict")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInternal            = errors.New("internal error")
)

// StateConflict reports an illegal transition. It unwraps to ErrStateConflict.
type StateConflict struct {
	Entity string
	From   string
	To     string
}

func (e *StateConflict) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *StateConflict) Unwrap() error { return ErrStateConflict }

// IsExternal reports whether err belongs to the upstream (model backend / notification) family.
func IsExternal(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrUpstreamRateLimit) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Role is the caller role supplied by the identity collaborator.
type Role string

const (
	RoleCandidate   Role = "candidate"
	RoleInterviewer Role = "interviewer"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCandidate, RoleInterviewer, RoleAdmin:
		return true
	}
	return false
}

// Actor is a verified caller identity. Email is optional and only used for notification addressing.
type Actor struct {
	SubjectID string
	Role      Role
	Email     string
}

// Validate checks that the actor carries a subject and a known role.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.SubjectID) == "" {
		return fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, a.Role)
	}
	return nil
}

// Recipient addresses a templated notification.
type Recipient struct {
	SubjectID string
	Email     string
}

// Difficulty of a session or question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionType classifies a question.
type QuestionType string

const (
	QuestionTechnical   QuestionType = "technical"
	QuestionBehavioral  QuestionType = "behavioral"
	QuestionSituational QuestionType = "situational"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTechnical, QuestionBehavioral, QuestionSituational:
		return true
	}
	return false
}

// Recommendation is the narrative verdict of a completed session.
type Recommendation string

const (
	RecommendPositive Recommendation = "positive"
	RecommendNeutral  Recommendation = "neutral"
	RecommendNegative Recommendation = "negative"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendPositive, RecommendNeutral, RecommendNegative:
		return true
	}
	return false
}

// Repositories (ports)
//go:generate mockery --name=PracticeSessionRepository --with-expecter --filename=practice_repository_mock.go
//go:generate mockery --name=BookingRepository --with-expecter --filename=booking_repository_mock.go
//go:generate mockery --name=LLMGateway --with-expecter --filename=llm_gateway_mock.go
//go:generate mockery --name=Notifier --with-expecter --filename=notifier_mock.go

type PracticeSessionRepository interface {
	Create(ctx Context, s PracticeSession) (string, error)
	Get(ctx Context, id string) (PracticeSession, error)
	ListByCandidate(ctx Context, candidateID string, limit int) ([]PracticeSession, error)
	// Update writes s only if the stored row still has s.Version and the expected status.
	// A lost race returns ErrStateConflict.
	Update(ctx Context, s PracticeSession, expected SessionStatus) error
	// Delete removes the session only while it still has the expected status.
	Delete(ctx Context, id string, expected SessionStatus) error
}

type BookingRepository interface {
	// Create inserts b unless an active booking of the same interviewer overlaps it (ErrConflict).
	Create(ctx Context, b BookedInterview) (string, error)
	Get(ctx Context, id string) (BookedInterview, error)
	ListByParticipant(ctx Context, subjectID string, limit int) ([]BookedInterview, error)
	// ListActiveByInterviewer returns Scheduled/Confirmed bookings intersecting [from, to).
	ListActiveByInterviewer(ctx Context, interviewerID string, from, to time.Time) ([]BookedInterview, error)
	// Update writes b only if the stored row still has b.Version and the expected status.
	// Returns ErrStateConflict on a lost race and ErrConflict when an active b would overlap another booking.
	Update(ctx Context, b BookedInterview, expected BookingStatus) error
}

// LLMGateway is a single prompt-in, text-out call to the model backend.
type LLMGateway interface {
	Generate(ctx Context, prompt string) (string, error)
}

// Notifier delivers templated messages. Callers never depend on its success.
type Notifier interface {
	SendTemplated(ctx Context, templateKey string, to Recipient, vars map[string]string) error
}

// BookingLock serializes booking writes per interviewer on a best-effort basis.
type BookingLock interface {
	Acquire(ctx Context, key string, ttl time.Duration) (release func(), err error)
}

// Context is an alias so ports read the same as the rest of the domain.
type Context = context.Context
