package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/internal/rotation"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

type QueueService struct {
	tx db.Transactor

	users     repository.UserRepository
	teams     repository.TeamRepository
	queues    repository.QueueRepository
	conflicts repository.ConflictRepository
}

func NewQueueService(tx db.Transactor) *QueueService {
	return &QueueService{tx: tx}
}

func (s *QueueService) CreateQueue(ctx context.Context, teamID, name string) (*model.Queue, *Error) {
	l := logger.FromContext(ctx)

	q := &model.Queue{TeamID: teamID, Name: name}

	err := s.queues.Create(ctx, q)
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		return nil, NewError(ErrorCodeQueueExists, "queue with this name already exists")
	case errors.Is(err, repository.ErrNotFound):
		return nil, NewError(ErrorCodeNotFound, "team not found")
	case err != nil:
		l.Error("failed to create queue", zap.String("team_id", teamID), zap.String("queue_name", name), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to create queue")
	}

	l.Info("queue created", zap.String("team_id", teamID), zap.String("queue_name", name))
	return q, nil
}

func (s *QueueService) ListQueues(ctx context.Context, teamID string) ([]string, *Error) {
	names, err := s.queues.List(ctx, teamID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list queues", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list queues")
	}
	return names, nil
}

func (s *QueueService) GetQueue(ctx context.Context, teamID, name string) (*model.Queue, *Error) {
	q, err := s.queues.Get(ctx, teamID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "queue not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get queue", zap.String("team_id", teamID), zap.String("queue_name", name), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get queue")
	}
	return q, nil
}

// DeleteQueue removes a queue along with any conflict on it. Only the team
// owner may do this.
func (s *QueueService) DeleteQueue(ctx context.Context, teamID, userID, name string) *Error {
	l := logger.FromContext(ctx)

	if e := s.requireOwner(ctx, teamID, userID); e != nil {
		return e
	}

	err := s.queues.Delete(ctx, teamID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "queue not found")
	}
	if err != nil {
		l.Error("failed to delete queue", zap.String("team_id", teamID), zap.String("queue_name", name), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to delete queue")
	}

	l.Info("queue deleted", zap.String("team_id", teamID), zap.String("queue_name", name))
	return nil
}

// SetMembers replaces the roster of a queue in the given order. The current
// holder keeps the turn if they stay in the queue; otherwise the first
// member gets it.
func (s *QueueService) SetMembers(ctx context.Context, teamID, name string, userIDs []string) (*model.Queue, *Error) {
	l := logger.FromContext(ctx)

	members := make([]*model.Member, 0, len(userIDs))
	for _, id := range userIDs {
		u, err := s.users.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && (u.TeamID == nil || *u.TeamID != teamID)) {
			return nil, NewError(ErrorCodeNotMember, "user "+id+" is not a member of the team")
		}
		if err != nil {
			l.Error("failed to get user", zap.String("user_id", id), zap.Error(err))
			return nil, NewError(ErrorCodeUnspecified, "failed to get user")
		}
		members = append(members, &model.Member{UserID: u.ID, DisplayName: u.DisplayName})
	}

	var res *model.Queue
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		q, e := s.lockQueue(txCtx, teamID, name)
		if e != nil {
			return e
		}
		if e = s.requireNoConflict(txCtx, teamID, name); e != nil {
			return e
		}

		next, err := rotation.WithMembers(q, members)
		if err != nil {
			return rotationError(err)
		}

		if e = s.put(txCtx, next); e != nil {
			return e
		}
		res = next
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to set queue members")
	}

	l.Info("queue members updated", zap.String("team_id", teamID), zap.String("queue_name", name), zap.Int("members", len(members)))
	return res, nil
}

// Advance marks the chore done and passes the turn on. It is refused while
// an opt-out is being resolved on the queue.
func (s *QueueService) Advance(ctx context.Context, teamID, name, userID string) (*model.Queue, *Error) {
	l := logger.FromContext(ctx)

	var res *model.Queue
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		q, e := s.lockQueue(txCtx, teamID, name)
		if e != nil {
			return e
		}

		if rotation.IndexOf(q, userID) == -1 {
			return NewError(ErrorCodeNotInQueue, "you are not in this queue")
		}

		if e = s.requireNoConflict(txCtx, teamID, name); e != nil {
			return e
		}

		next, err := rotation.Advance(q)
		if err != nil {
			return rotationError(err)
		}

		if e = s.put(txCtx, next); e != nil {
			return e
		}
		res = next
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to advance queue")
	}

	l.Info("turn advanced", zap.String("team_id", teamID), zap.String("queue_name", name))
	return res, nil
}

// requireNoConflict refuses changes to the turn order while an opt-out is
// open, since its resolution depends on who holds the turn.
func (s *QueueService) requireNoConflict(ctx context.Context, teamID, name string) *Error {
	_, err := s.conflicts.Get(ctx, teamID, name)
	if err == nil {
		return NewError(ErrorCodeConflictInProgress, "an opt-out is being resolved for this queue")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		logger.FromContext(ctx).Error("failed to get conflict", zap.String("queue_name", name), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to get conflict")
	}
	return nil
}

func (s *QueueService) requireOwner(ctx context.Context, teamID, userID string) *Error {
	team, err := s.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		return NewError(ErrorCodeUnspecified, "failed to get team")
	}
	if team.OwnerID != userID {
		return NewError(ErrorCodeForbidden, "only the team owner can do this")
	}
	return nil
}

func (s *QueueService) lockQueue(ctx context.Context, teamID, name string) (*model.Queue, *Error) {
	return lockQueue(ctx, s.queues, teamID, name)
}

func (s *QueueService) put(ctx context.Context, q *model.Queue) *Error {
	return putQueue(ctx, s.queues, q)
}

func lockQueue(ctx context.Context, queues repository.QueueRepository, teamID, name string) (*model.Queue, *Error) {
	q, err := queues.GetForUpdate(ctx, teamID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "queue not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to lock queue", zap.String("team_id", teamID), zap.String("queue_name", name), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get queue")
	}
	return q, nil
}

func putQueue(ctx context.Context, queues repository.QueueRepository, q *model.Queue) *Error {
	err := queues.Put(ctx, q)
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return NewError(ErrorCodeVersionConflict, "queue was changed by someone else, try again")
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "queue not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to store queue", zap.String("team_id", q.TeamID), zap.String("queue_name", q.Name), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to store queue")
	}
	return nil
}

func (s *QueueService) WithUserRepo(r repository.UserRepository) *QueueService {
	s.users = r
	return s
}

func (s *QueueService) WithTeamRepo(r repository.TeamRepository) *QueueService {
	s.teams = r
	return s
}

func (s *QueueService) WithQueueRepo(r repository.QueueRepository) *QueueService {
	s.queues = r
	return s
}

func (s *QueueService) WithConflictRepo(r repository.ConflictRepository) *QueueService {
	s.conflicts = r
	return s
}
