// Package timer runs deferred fallbacks that survive restarts. Timers are
// persisted first and scheduled in memory second; a persisted row is only
// removed once its handler has succeeded.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

var ErrTimerNotFound = errors.New("timer not found")

// Store is the persistence the service needs. repository.TimerRepository
// satisfies it.
type Store interface {
	Save(ctx context.Context, t *model.Timer) (bool, error)
	Get(ctx context.Context, key model.TimerKey) (*model.Timer, error)
	Delete(ctx context.Context, key model.TimerKey, id string) error
	ListPending(ctx context.Context) ([]*model.Timer, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Timer, error)
	RecordFailure(ctx context.Context, key model.TimerKey, id string, msg string) error
}

// Handler performs the fallback. Returning an error keeps the timer
// persisted so it is retried.
type Handler func(ctx context.Context, t *model.Timer) error

// Permanent marks a handler error that retrying with backoff cannot fix.
// The timer stays persisted and is tried again on the next sweep only.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type Config struct {
	SweepInterval        time.Duration
	RetryInitialInterval time.Duration
	RetryMaxElapsed      time.Duration
}

type slot struct {
	id    string
	timer *time.Timer
}

type Service struct {
	store Store
	cfg   Config

	mu       sync.Mutex
	handler  Handler
	ctx      context.Context
	cancel   context.CancelFunc
	slots    map[model.TimerKey]*slot
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewService(store Store, cfg Config) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(map[model.TimerKey]*slot),
		inflight: make(map[string]struct{}),
	}
}

// Arm persists a timer for key and schedules it. Any timer already armed on
// the key is replaced, which is reported through replaced.
func (s *Service) Arm(ctx context.Context, key model.TimerKey, deadline time.Time, payload model.TimerPayload) (model.TimerHandle, bool, error) {
	t := &model.Timer{
		ID:       uuid.NewString(),
		Key:      key,
		Deadline: deadline.UTC(),
		Payload:  payload,
	}

	replaced, err := s.store.Save(ctx, t)
	if err != nil {
		return model.TimerHandle{}, false, errors.Wrap(err, "persist timer")
	}

	s.schedule(t)

	logger.FromContext(ctx).Debug("timer armed",
		zap.String("timer_id", t.ID),
		zap.String("team_id", key.TeamID),
		zap.String("queue_name", key.QueueName),
		zap.Time("deadline", t.Deadline),
		zap.Bool("replaced", replaced))

	return model.TimerHandle{Key: key, ID: t.ID}, replaced, nil
}

// Cancel removes the timer identified by h. ErrTimerNotFound means it has
// already fired, been cancelled or been replaced.
func (s *Service) Cancel(ctx context.Context, h model.TimerHandle) error {
	err := s.store.Delete(ctx, h.Key, h.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTimerNotFound
	}
	if err != nil {
		return errors.Wrap(err, "delete timer")
	}

	s.unschedule(h.Key, h.ID)
	return nil
}

// Start loads persisted timers and begins the periodic sweep. Timers whose
// deadline passed while the process was down fire right away.
func (s *Service) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return errors.Wrap(err, "load pending timers")
	}

	for _, t := range pending {
		s.schedule(t)
	}

	logger.FromContext(ctx).Info("timer service started", zap.Int("pending", len(pending)))

	s.wg.Add(1)
	go s.sweep()

	return nil
}

// Stop halts scheduling. Persisted timers are left in place for the next Start.
func (s *Service) Stop() {
	s.mu.Lock()
	s.cancel()
	for key, sl := range s.slots {
		sl.timer.Stop()
		delete(s.slots, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) schedule(t *model.Timer) {
	key, id := t.Key, t.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.slots[key]; ok {
		old.timer.Stop()
	}

	s.slots[key] = &slot{
		id: id,
		timer: time.AfterFunc(time.Until(t.Deadline), func() {
			s.fire(key, id)
		}),
	}
}

func (s *Service) unschedule(key model.TimerKey, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sl, ok := s.slots[key]; ok && sl.id == id {
		sl.timer.Stop()
		delete(s.slots, key)
	}
}

func (s *Service) sweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			due, err := s.store.ListDue(s.ctx, time.Now())
			if err != nil {
				if s.ctx.Err() == nil {
					zap.L().Error("failed to list due timers", zap.Error(err))
				}
				continue
			}
			for _, t := range due {
				go s.fire(t.Key, t.ID)
			}
		}
	}
}

func (s *Service) fire(key model.TimerKey, id string) {
	s.mu.Lock()
	ctx, h := s.ctx, s.handler
	if _, busy := s.inflight[id]; busy || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.inflight[id] = struct{}{}
	// Added under mu after the ctx check, so Stop waits for every run it
	// did not cancel.
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
		s.wg.Done()
	}()

	l := zap.L().With(
		zap.String("timer_id", id),
		zap.String("team_id", key.TeamID),
		zap.String("queue_name", key.QueueName))
	ctx = logger.WithLogger(ctx, l)

	t, err := s.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && t.ID != id) {
		l.Debug("timer superseded, dropping")
		return
	}
	if err != nil {
		l.Error("failed to load timer", zap.Error(err))
		return
	}

	if h == nil {
		l.Warn("no handler registered, timer left for the next sweep")
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitialInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, h(ctx, t)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(s.cfg.RetryMaxElapsed))
	if err != nil {
		l.Error("timer handler failed", zap.Error(err))
		if rerr := s.store.RecordFailure(ctx, key, id, err.Error()); rerr != nil && !errors.Is(rerr, repository.ErrNotFound) {
			l.Error("failed to record timer failure", zap.Error(rerr))
		}
		return
	}

	if err = s.store.Delete(ctx, key, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		l.Error("failed to delete fired timer", zap.Error(err))
	}
	s.unschedule(key, id)

	l.Info("timer fired")
}
