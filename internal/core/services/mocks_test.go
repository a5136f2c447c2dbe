package services

import (
	"context"
	"time"

	"huddle/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

// Mock repositories
type MockParticipantRepository struct {
	mock.Mock
}

func (m *MockParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockParticipantRepository) Get(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (*domain.Participant, error) {
	args := m.Called(ctx, session, participant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Participant), args.Error(1)
}

func (m *MockParticipantRepository) FindActive(ctx context.Context, session domain.SessionID) ([]*domain.Participant, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Participant), args.Error(1)
}

func (m *MockParticipantRepository) MarkLeft(ctx context.Context, session domain.SessionID, participant domain.ParticipantID, at time.Time) error {
	args := m.Called(ctx, session, participant, at)
	return args.Error(0)
}

func (m *MockParticipantRepository) MarkAllLeft(ctx context.Context, session domain.SessionID, at time.Time) error {
	args := m.Called(ctx, session, at)
	return args.Error(0)
}

type MockBanRepository struct {
	mock.Mock
}

func (m *MockBanRepository) Ban(ctx context.Context, ban *domain.BanRecord) error {
	args := m.Called(ctx, ban)
	return args.Error(0)
}

func (m *MockBanRepository) IsBanned(ctx context.Context, session domain.SessionID, participant domain.ParticipantID) (bool, error) {
	args := m.Called(ctx, session, participant)
	return args.Bool(0), args.Error(1)
}

type MockTimelineRepository struct {
	mock.Mock
}

func (m *MockTimelineRepository) RecordStart(ctx context.Context, session domain.SessionID, startedAt time.Time) error {
	args := m.Called(ctx, session, startedAt)
	return args.Error(0)
}

func (m *MockTimelineRepository) RecordEnd(ctx context.Context, session domain.SessionID, endedAt time.Time, duration time.Duration) error {
	args := m.Called(ctx, session, endedAt, duration)
	return args.Error(0)
}
