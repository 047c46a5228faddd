package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/event"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/notify"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/internal/rotation"
	"github.com/DurbeKK/maid-tg-bot/internal/timer"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

// Timers arms and cancels the escalation fallback. *timer.Service
// implements it.
type Timers interface {
	Arm(ctx context.Context, key model.TimerKey, deadline time.Time, payload model.TimerPayload) (model.TimerHandle, bool, error)
	Cancel(ctx context.Context, h model.TimerHandle) error
}

// ConflictService drives an opt-out from the turn holder through
// escalation to either a substitution or a timed-out skip. The presence of
// a conflict record is what makes a resolution valid; whoever deletes it
// first wins.
type ConflictService struct {
	tx      db.Transactor
	horizon time.Duration
	now     func() time.Time

	users     repository.UserRepository
	teams     repository.TeamRepository
	queues    repository.QueueRepository
	conflicts repository.ConflictRepository
	timers    Timers
	sink      notify.Sink
}

func NewConflictService(tx db.Transactor, horizon time.Duration) *ConflictService {
	return &ConflictService{
		tx:      tx,
		horizon: horizon,
		now:     time.Now,
	}
}

type broadcast struct {
	channel string
	text    string
	action  *model.CallToAction
}

func (s *ConflictService) DeclareInability(ctx context.Context, ev event.DeclareInability) (*model.ConflictOutcome, *Error) {
	l := logger.FromContext(ctx).With(zap.String("team_id", ev.TeamID), zap.String("queue_name", ev.QueueName))

	if err := event.Validate(ev); err != nil {
		return nil, NewError(ErrorCodeInvalidBody, err.Error())
	}

	var c *model.Conflict
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		q, e := lockQueue(txCtx, s.queues, ev.TeamID, ev.QueueName)
		if e != nil {
			return e
		}

		holder, err := rotation.CurrentTurn(q)
		if err != nil {
			return rotationError(err)
		}
		if q.Members[holder].UserID != ev.UserID {
			return NewError(ErrorCodeNotTurnHolder, "it is not your turn in this queue")
		}

		existing, err := s.conflicts.Get(txCtx, ev.TeamID, ev.QueueName)
		switch {
		case err == nil:
			if existing.InitiatorID == ev.UserID && existing.State == model.ConflictStateReasonRequested {
				c = existing
				return nil
			}
			return NewError(ErrorCodeConflictInProgress, "an opt-out for this queue is already being resolved")
		case !errors.Is(err, repository.ErrNotFound):
			l.Error("failed to get conflict", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get conflict")
		}

		c = &model.Conflict{
			TeamID:      ev.TeamID,
			QueueName:   ev.QueueName,
			InitiatorID: ev.UserID,
			State:       model.ConflictStateReasonRequested,
			CreatedAt:   s.now().UTC(),
		}
		if err = s.conflicts.Upsert(txCtx, c); err != nil {
			l.Error("failed to store conflict", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to store conflict")
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to declare inability")
	}

	l.Info("reason requested", zap.String("initiator_id", ev.UserID))

	return &model.ConflictOutcome{
		State:    model.ConflictStateReasonRequested,
		Conflict: c,
		Message:  notify.ReasonPrompt(),
	}, nil
}

// SubmitReason escalates the conflict to the team channel and arms the
// timeout. Without a channel the reason is kept and NO_CHANNEL is returned;
// submitting again after connecting a channel escalates.
func (s *ConflictService) SubmitReason(ctx context.Context, ev event.ReasonReceived) (*model.ConflictOutcome, *Error) {
	l := logger.FromContext(ctx).With(zap.String("team_id", ev.TeamID), zap.String("queue_name", ev.QueueName))

	if err := event.Validate(ev); err != nil {
		return nil, NewError(ErrorCodeInvalidBody, err.Error())
	}

	var (
		c         *model.Conflict
		noChannel bool
		out       broadcast
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		q, e := lockQueue(txCtx, s.queues, ev.TeamID, ev.QueueName)
		if e != nil {
			return e
		}

		var err error
		c, err = s.conflicts.Get(txCtx, ev.TeamID, ev.QueueName)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "there is no pending opt-out for this queue")
		}
		if err != nil {
			l.Error("failed to get conflict", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get conflict")
		}
		if c.InitiatorID != ev.UserID {
			return NewError(ErrorCodeForbidden, "only the member who opted out can give the reason")
		}
		if c.State != model.ConflictStateReasonRequested {
			return NewError(ErrorCodeConflictInProgress, "the group has already been asked")
		}

		team, e := s.team(txCtx, ev.TeamID)
		if e != nil {
			return e
		}

		c.Reason = ev.Reason
		if !team.HasChannel() {
			noChannel = true
			if err = s.conflicts.Upsert(txCtx, c); err != nil {
				l.Error("failed to store reason", zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to store reason")
			}
			return nil
		}

		key := model.TimerKey{TeamID: ev.TeamID, QueueName: ev.QueueName}
		deadline := s.now().Add(s.horizon).UTC()
		h, replaced, err := s.timers.Arm(txCtx, key, deadline, model.TimerPayload{
			Action:      model.TimerActionConflictTimeout,
			InitiatorID: ev.UserID,
		})
		if err != nil {
			l.Error("failed to arm timer", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to schedule timeout")
		}
		if replaced {
			l.Warn("replaced a live timer on escalation", zap.String("timer_id", h.ID))
		}

		c.State = model.ConflictStateEscalated
		c.Deadline = &deadline
		c.TimerID = h.ID
		if err = s.conflicts.Upsert(txCtx, c); err != nil {
			l.Error("failed to store conflict", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to store conflict")
		}

		out = broadcast{
			channel: *team.NotificationChannel,
			text:    notify.Escalation(displayName(q, ev.UserID), ev.QueueName, ev.Reason),
			action:  notify.SubstituteAction(ev.TeamID, ev.QueueName),
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to submit reason")
	}

	if noChannel {
		l.Warn("team has no channel, reason kept")
		return nil, NewError(ErrorCodeNoChannel, notify.NoChannel())
	}

	l.Info("conflict escalated", zap.Timep("deadline", c.Deadline))

	return &model.ConflictOutcome{
		State:       model.ConflictStateEscalated,
		Conflict:    c,
		Message:     notify.ReasonAccepted(),
		Undelivered: s.send(ctx, out),
	}, nil
}

// Substitute applies a volunteer's "I can do it." The volunteer takes the
// holder's place and the holder takes theirs.
func (s *ConflictService) Substitute(ctx context.Context, ev event.SubstitutionAttempt) (*model.ConflictOutcome, *Error) {
	l := logger.FromContext(ctx).With(zap.String("team_id", ev.TeamID), zap.String("queue_name", ev.QueueName))

	if err := event.Validate(ev); err != nil {
		return nil, NewError(ErrorCodeInvalidBody, err.Error())
	}

	var (
		next *model.Queue
		text string
		out  broadcast
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		q, e := lockQueue(txCtx, s.queues, ev.TeamID, ev.QueueName)
		if e != nil {
			return e
		}

		c, e := s.liveConflict(txCtx, ev.TeamID, ev.QueueName)
		if e != nil {
			return e
		}
		if c.State != model.ConflictStateEscalated {
			return NewError(ErrorCodeNotEscalated, "nobody has been asked to substitute yet")
		}

		ok, err := s.users.IsMember(txCtx, ev.TeamID, ev.UserID)
		if err != nil {
			l.Error("failed to check membership", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to check membership")
		}
		if !ok {
			return NewError(ErrorCodeNotMember, "you are not a part of this team, ask for an invite link")
		}

		idx := rotation.IndexOf(q, ev.UserID)
		if idx == -1 {
			return NewError(ErrorCodeNotInQueue, "you are not in this queue")
		}

		holder, err := rotation.CurrentTurn(q)
		if err != nil {
			return rotationError(err)
		}
		if q.Members[holder].UserID != c.InitiatorID {
			l.Error("turn moved away from the member who opted out",
				zap.String("initiator_id", c.InitiatorID),
				zap.String("holder_id", q.Members[holder].UserID))
			return NewError(ErrorCodeInvariantViolation, "the member who opted out no longer holds the turn")
		}
		holderName := q.Members[holder].DisplayName

		next, err = rotation.Substitute(q, idx)
		if err != nil {
			return rotationError(err)
		}
		if e = putQueue(txCtx, s.queues, next); e != nil {
			return e
		}

		if err = s.conflicts.Delete(txCtx, ev.TeamID, ev.QueueName); err != nil {
			l.Error("failed to delete conflict", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to resolve conflict")
		}

		err = s.timers.Cancel(txCtx, model.TimerHandle{
			Key: model.TimerKey{TeamID: ev.TeamID, QueueName: ev.QueueName},
			ID:  c.TimerID,
		})
		if errors.Is(err, timer.ErrTimerNotFound) {
			l.Info("timeout already fired, applying substitution anyway", zap.String("timer_id", c.TimerID))
		} else if err != nil {
			l.Error("failed to cancel timer", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to cancel timeout")
		}

		text = notify.Swapped(q.Members[idx].DisplayName, holderName, ev.QueueName)
		if team, e := s.team(txCtx, ev.TeamID); e == nil && team.HasChannel() {
			out = broadcast{channel: *team.NotificationChannel, text: text}
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to substitute")
	}

	l.Info("conflict resolved by substitution", zap.String("substitute_id", ev.UserID))

	return &model.ConflictOutcome{
		State:       model.ConflictStateResolved,
		Queue:       next,
		Message:     text,
		Undelivered: s.send(ctx, out),
	}, nil
}

// ResolveTimeout skips the chore for this cycle. The queue is left as is, so
// the holder keeps the turn. A timerID that no longer matches the live
// conflict is a stale fallback and reports ALREADY_RESOLVED.
func (s *ConflictService) ResolveTimeout(ctx context.Context, teamID, queueName, timerID string) (*model.ConflictOutcome, *Error) {
	l := logger.FromContext(ctx).With(zap.String("team_id", teamID), zap.String("queue_name", queueName))

	var (
		q    *model.Queue
		text string
		out  broadcast
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var e *Error
		if q, e = lockQueue(txCtx, s.queues, teamID, queueName); e != nil {
			return e
		}

		c, e := s.liveConflict(txCtx, teamID, queueName)
		if e != nil {
			return e
		}
		if c.State != model.ConflictStateEscalated || (timerID != "" && c.TimerID != timerID) {
			return NewError(ErrorCodeAlreadyResolved, "this opt-out has already been resolved")
		}

		if err := s.conflicts.Delete(txCtx, teamID, queueName); err != nil {
			l.Error("failed to delete conflict", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to resolve conflict")
		}

		// The queue is left untouched, so a roster that no longer has a
		// valid holder cannot keep the opt-out open.
		text = notify.Skipped(queueName, s.memberName(txCtx, q, c.InitiatorID))
		if team, e := s.team(txCtx, teamID); e == nil && team.HasChannel() {
			out = broadcast{channel: *team.NotificationChannel, text: text}
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to resolve timeout")
	}

	l.Info("conflict timed out, chore skipped")

	return &model.ConflictOutcome{
		State:       model.ConflictStateTimedOut,
		Queue:       q,
		Message:     text,
		Undelivered: s.send(ctx, out),
	}, nil
}

// HandleTimer is the timer.Handler for escalation fallbacks. Losing a race
// against a substitution is success. Storage failures are retried with
// backoff; other rejections only on the next sweep.
func (s *ConflictService) HandleTimer(ctx context.Context, t *model.Timer) error {
	if t.Payload.Action != model.TimerActionConflictTimeout {
		logger.FromContext(ctx).Warn("unknown timer action, dropping", zap.String("action", string(t.Payload.Action)))
		return nil
	}

	_, e := s.ResolveTimeout(ctx, t.Key.TeamID, t.Key.QueueName, t.ID)
	switch {
	case e == nil || e.Code == ErrorCodeAlreadyResolved || e.Code == ErrorCodeNotFound:
		return nil
	case e.Code == ErrorCodeUnspecified:
		return e
	default:
		// a rejection by the rules will not change on an immediate retry
		return timer.Permanent(e)
	}
}

// GetConflict reports the live conflict on a queue, or NO_CONFLICT.
func (s *ConflictService) GetConflict(ctx context.Context, teamID, queueName string) (*model.Conflict, *Error) {
	c, err := s.conflicts.Get(ctx, teamID, queueName)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.Conflict{TeamID: teamID, QueueName: queueName, State: model.ConflictStateNone}, nil
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get conflict", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get conflict")
	}
	return c, nil
}

func (s *ConflictService) liveConflict(ctx context.Context, teamID, queueName string) (*model.Conflict, *Error) {
	c, err := s.conflicts.Get(ctx, teamID, queueName)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeAlreadyResolved, "this opt-out has already been resolved")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get conflict", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get conflict")
	}
	return c, nil
}

func (s *ConflictService) team(ctx context.Context, teamID string) (*model.Team, *Error) {
	t, err := s.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}
	return &model.Team{
		ID:                  t.ID,
		Name:                t.Name,
		OwnerID:             t.OwnerID,
		NotificationChannel: t.NotificationChannel,
	}, nil
}

// send hands b to the sink after commit and returns the channels that could
// not be reached.
func (s *ConflictService) send(ctx context.Context, b broadcast) []string {
	if b.channel == "" {
		return nil
	}
	if err := s.sink.Notify(ctx, b.channel, b.text, b.action); err != nil {
		logger.FromContext(ctx).Error("failed to notify channel", zap.String("channel_id", b.channel), zap.Error(err))
		return []string{b.channel}
	}
	return nil
}

// memberName is displayName with a fallback to the user record for members
// no longer in the queue.
func (s *ConflictService) memberName(ctx context.Context, q *model.Queue, userID string) string {
	if i := rotation.IndexOf(q, userID); i != -1 {
		return q.Members[i].DisplayName
	}
	if u, err := s.users.Get(ctx, userID); err == nil {
		return u.DisplayName
	}
	return userID
}

func displayName(q *model.Queue, userID string) string {
	if i := rotation.IndexOf(q, userID); i != -1 {
		return q.Members[i].DisplayName
	}
	return userID
}

func (s *ConflictService) WithUserRepo(r repository.UserRepository) *ConflictService {
	s.users = r
	return s
}

func (s *ConflictService) WithTeamRepo(r repository.TeamRepository) *ConflictService {
	s.teams = r
	return s
}

func (s *ConflictService) WithQueueRepo(r repository.QueueRepository) *ConflictService {
	s.queues = r
	return s
}

func (s *ConflictService) WithConflictRepo(r repository.ConflictRepository) *ConflictService {
	s.conflicts = r
	return s
}

func (s *ConflictService) WithTimers(t Timers) *ConflictService {
	s.timers = t
	return s
}

func (s *ConflictService) WithSink(sink notify.Sink) *ConflictService {
	s.sink = sink
	return s
}
