package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/event"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/internal/rotation"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

// ReorderService runs the two step "move member" dialog. Selections live in
// memory only; losing them on restart just means starting the dialog again.
type ReorderService struct {
	tx  db.Transactor
	ttl time.Duration
	now func() time.Time

	teams  repository.TeamRepository
	queues repository.QueueRepository

	mu       sync.Mutex
	sessions map[string]*model.ReorderSession
}

func NewReorderService(tx db.Transactor, ttl time.Duration) *ReorderService {
	return &ReorderService{
		tx:       tx,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*model.ReorderSession),
	}
}

// Begin opens a session on a queue. Only the team owner may reorder.
func (s *ReorderService) Begin(ctx context.Context, teamID, queueName, userID string) (*model.ReorderSession, *Error) {
	l := logger.FromContext(ctx)

	team, err := s.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}
	if team.OwnerID != userID {
		return nil, NewError(ErrorCodeForbidden, "only the team owner can reorder queues")
	}

	q, e := s.current(ctx, teamID, queueName)
	if e != nil {
		return nil, e
	}

	sess := &model.ReorderSession{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		QueueName: queueName,
		UserID:    userID,
		Version:   q.Version,
		ExpiresAt: s.now().Add(s.ttl),
		Queue:     q,
	}

	s.mu.Lock()
	s.purgeLocked()
	s.sessions[sess.ID] = sess
	res := copySession(sess)
	s.mu.Unlock()

	l.Info("reorder started", zap.String("session_id", sess.ID), zap.String("queue_name", queueName))
	return res, nil
}

// PickFrom records the member to move. The index is checked against the
// queue as currently stored.
func (s *ReorderService) PickFrom(ctx context.Context, sessionID, userID string, index int) (*model.ReorderSession, *Error) {
	sess, e := s.session(sessionID, userID)
	if e != nil {
		return nil, e
	}

	q, e := s.current(ctx, sess.TeamID, sess.QueueName)
	if e != nil {
		return nil, e
	}
	if q.Version != sess.Version {
		s.drop(sessionID)
		return nil, NewError(ErrorCodeVersionConflict, "queue was changed by someone else, start again")
	}
	if index < 0 || index >= len(q.Members) {
		return nil, NewError(ErrorCodeOutOfRange, "position is out of range")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[sessionID]
	if !ok {
		return nil, NewError(ErrorCodeNotFound, "reorder session expired")
	}
	live.From = &index
	live.Queue = q
	live.ExpiresAt = s.now().Add(s.ttl)

	return copySession(live), nil
}

// PickTo moves the selected member to index and commits the queue. The
// session stays open for further moves.
func (s *ReorderService) PickTo(ctx context.Context, sessionID, userID string, index int) (*model.ReorderSession, *Error) {
	l := logger.FromContext(ctx)

	sess, e := s.session(sessionID, userID)
	if e != nil {
		return nil, e
	}
	if sess.From == nil {
		return nil, NewError(ErrorCodeNoSelection, "pick the member to move first")
	}
	from := *sess.From

	var next *model.Queue
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		q, e := lockQueue(txCtx, s.queues, sess.TeamID, sess.QueueName)
		if e != nil {
			return e
		}
		if q.Version != sess.Version {
			return NewError(ErrorCodeVersionConflict, "queue was changed by someone else, start again")
		}

		var err error
		if next, err = rotation.Reorder(q, from, index); err != nil {
			return rotationError(err)
		}
		if e = putQueue(txCtx, s.queues, next); e != nil {
			return e
		}
		return nil
	})

	e = asError(err, "failed to reorder queue")
	switch {
	case e == nil:
	case e.Code == ErrorCodeNoopReorder:
		s.clearSelection(sessionID, nil)
		return nil, e
	case e.Code == ErrorCodeVersionConflict || e.Code == ErrorCodeNotFound:
		s.drop(sessionID)
		return nil, e
	default:
		return nil, e
	}

	l.Info("queue reordered",
		zap.String("session_id", sessionID),
		zap.String("queue_name", sess.QueueName),
		zap.Int("from", from),
		zap.Int("to", index))

	return s.clearSelection(sessionID, next), nil
}

func (s *ReorderService) Cancel(_ context.Context, sessionID, userID string) *Error {
	if _, e := s.session(sessionID, userID); e != nil {
		return e
	}
	s.drop(sessionID)
	return nil
}

// Step dispatches a reorder event to PickFrom or PickTo.
func (s *ReorderService) Step(ctx context.Context, ev event.ReorderStep) (*model.ReorderSession, *Error) {
	if err := event.Validate(ev); err != nil {
		return nil, NewError(ErrorCodeInvalidBody, err.Error())
	}

	if ev.Step == event.ReorderFrom {
		return s.PickFrom(ctx, ev.SessionID, ev.UserID, ev.Index)
	}
	return s.PickTo(ctx, ev.SessionID, ev.UserID, ev.Index)
}

func (s *ReorderService) current(ctx context.Context, teamID, queueName string) (*model.Queue, *Error) {
	q, err := s.queues.Get(ctx, teamID, queueName)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "queue not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get queue", zap.String("queue_name", queueName), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get queue")
	}
	return q, nil
}

func (s *ReorderService) session(id, userID string) (*model.ReorderSession, *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.now().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		return nil, NewError(ErrorCodeNotFound, "reorder session expired")
	}
	if sess.UserID != userID {
		return nil, NewError(ErrorCodeForbidden, "this reorder belongs to someone else")
	}
	return copySession(sess), nil
}

// clearSelection resets From and, when q is set, moves the session to the
// committed queue.
func (s *ReorderService) clearSelection(id string, q *model.Queue) *model.ReorderSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.From = nil
	if q != nil {
		sess.Queue = q
		sess.Version = q.Version
	}
	sess.ExpiresAt = s.now().Add(s.ttl)
	return copySession(sess)
}

func (s *ReorderService) drop(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *ReorderService) purgeLocked() {
	now := s.now()
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

func copySession(sess *model.ReorderSession) *model.ReorderSession {
	cp := *sess
	if sess.From != nil {
		from := *sess.From
		cp.From = &from
	}
	if sess.Queue != nil {
		cp.Queue = sess.Queue.Clone()
	}
	return &cp
}

func (s *ReorderService) WithTeamRepo(r repository.TeamRepository) *ReorderService {
	s.teams = r
	return s
}

func (s *ReorderService) WithQueueRepo(r repository.QueueRepository) *ReorderService {
	s.queues = r
	return s
}
