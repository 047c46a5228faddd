package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Get(ctx context.Context, userID string) (*repository.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.User), args.Error(1)
}

func (m *MockUserRepository) Upsert(ctx context.Context, user *repository.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) ResolveTeam(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockUserRepository) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	args := m.Called(ctx, teamID, userID)
	return args.Bool(0), args.Error(1)
}

type MockTeamRepository struct {
	mock.Mock
}

func (m *MockTeamRepository) Create(ctx context.Context, team *repository.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *MockTeamRepository) Get(ctx context.Context, id string) (*repository.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) SetChannel(ctx context.Context, id string, channel *string) error {
	args := m.Called(ctx, id, channel)
	return args.Error(0)
}

func (m *MockTeamRepository) GetTeamMembers(ctx context.Context, id string) ([]*repository.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.User), args.Error(1)
}

type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Create(ctx context.Context, queue *model.Queue) error {
	args := m.Called(ctx, queue)
	return args.Error(0)
}

func (m *MockQueueRepository) Get(ctx context.Context, teamID, name string) (*model.Queue, error) {
	args := m.Called(ctx, teamID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Queue).Clone(), args.Error(1)
}

func (m *MockQueueRepository) GetForUpdate(ctx context.Context, teamID, name string) (*model.Queue, error) {
	args := m.Called(ctx, teamID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Queue).Clone(), args.Error(1)
}

func (m *MockQueueRepository) Put(ctx context.Context, queue *model.Queue) error {
	args := m.Called(ctx, queue)
	return args.Error(0)
}

func (m *MockQueueRepository) List(ctx context.Context, teamID string) ([]string, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockQueueRepository) Delete(ctx context.Context, teamID, name string) error {
	args := m.Called(ctx, teamID, name)
	return args.Error(0)
}

type MockConflictRepository struct {
	mock.Mock
}

func (m *MockConflictRepository) Get(ctx context.Context, teamID, queueName string) (*model.Conflict, error) {
	args := m.Called(ctx, teamID, queueName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	cp := *args.Get(0).(*model.Conflict)
	return &cp, args.Error(1)
}

func (m *MockConflictRepository) Upsert(ctx context.Context, conflict *model.Conflict) error {
	args := m.Called(ctx, conflict)
	return args.Error(0)
}

func (m *MockConflictRepository) Delete(ctx context.Context, teamID, queueName string) error {
	args := m.Called(ctx, teamID, queueName)
	return args.Error(0)
}

type MockTimers struct {
	mock.Mock
}

func (m *MockTimers) Arm(ctx context.Context, key model.TimerKey, deadline time.Time, payload model.TimerPayload) (model.TimerHandle, bool, error) {
	args := m.Called(ctx, key, deadline, payload)
	return args.Get(0).(model.TimerHandle), args.Bool(1), args.Error(2)
}

func (m *MockTimers) Cancel(ctx context.Context, h model.TimerHandle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Notify(ctx context.Context, channelID, text string, action *model.CallToAction) error {
	args := m.Called(ctx, channelID, text, action)
	return args.Error(0)
}
