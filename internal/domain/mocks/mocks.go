// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

type MockPracticeSessionRepository struct{ mock.Mock }

func NewMockPracticeSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPracticeSessionRepository {
	m := &MockPracticeSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPracticeSessionRepository) Create(ctx domain.Context, s domain.PracticeSession) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}

func (m *MockPracticeSessionRepository) Get(ctx domain.Context, id string) (domain.PracticeSession, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.PracticeSession), args.Error(1)
}

func (m *MockPracticeSessionRepository) ListByCandidate(ctx domain.Context, candidateID string, limit int) ([]domain.PracticeSession, error) {
	args := m.Called(ctx, candidateID, limit)
	out, _ := args.Get(0).([]domain.PracticeSession)
	return out, args.Error(1)
}

func (m *MockPracticeSessionRepository) Update(ctx domain.Context, s domain.PracticeSession, expected domain.SessionStatus) error {
	return m.Called(ctx, s, expected).Error(0)
}

func (m *MockPracticeSessionRepository) Delete(ctx domain.Context, id string, expected domain.SessionStatus) error {
	return m.Called(ctx, id, expected).Error(0)
}

type MockBookingRepository struct{ mock.Mock }

func NewMockBookingRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBookingRepository {
	m := &MockBookingRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockBookingRepository) Create(ctx domain.Context, b domain.BookedInterview) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func (m *MockBookingRepository) Get(ctx domain.Context, id string) (domain.BookedInterview, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.BookedInterview), args.Error(1)
}

func (m *MockBookingRepository) ListByParticipant(ctx domain.Context, subjectID string, limit int) ([]domain.BookedInterview, error) {
	args := m.Called(ctx, subjectID, limit)
	out, _ := args.Get(0).([]domain.BookedInterview)
	return out, args.Error(1)
}

func (m *MockBookingRepository) ListActiveByInterviewer(ctx domain.Context, interviewerID string, from, to time.Time) ([]domain.BookedInterview, error) {
	args := m.Called(ctx, interviewerID, from, to)
	out, _ := args.Get(0).([]domain.BookedInterview)
	return out, args.Error(1)
}

func (m *MockBookingRepository) Update(ctx domain.Context, b domain.BookedInterview, expected domain.BookingStatus) error {
	return m.Called(ctx, b, expected).Error(0)
}

type MockLLMGateway struct{ mock.Mock }

func (m *MockLLMGateway) Generate(ctx domain.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) SendTemplated(ctx domain.Context, templateKey string, to domain.Recipient, vars map[string]string) error {
	return m.Called(ctx, templateKey, to, vars).Error(0)
}

type MockBookingLock struct{ mock.Mock }

func (m *MockBookingLock) Acquire(ctx domain.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	release, _ := args.Get(0).(func())
	return release, args.Error(1)
}
