package service

import (
	"context"
	"sync"
	"time"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
)

// memTx serializes transactions, standing in for the queue row lock, and
// restores the store when fn fails.
type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (m *memTx) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(saved)
		return err
	}
	return nil
}

type memStore struct {
	mu        sync.Mutex
	teams     map[string]*repository.Team
	users     map[string]*repository.User
	queues    map[string]*model.Queue
	conflicts map[string]*model.Conflict
	timers    map[model.TimerKey]*model.Timer
}

func newMemStore() *memStore {
	return &memStore{
		teams:     make(map[string]*repository.Team),
		users:     make(map[string]*repository.User),
		queues:    make(map[string]*model.Queue),
		conflicts: make(map[string]*model.Conflict),
		timers:    make(map[model.TimerKey]*model.Timer),
	}
}

func (m *memStore) snapshot() *memStore {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := newMemStore()
	for k, v := range m.teams {
		t := *v
		cp.teams[k] = &t
	}
	for k, v := range m.users {
		u := *v
		cp.users[k] = &u
	}
	for k, v := range m.queues {
		cp.queues[k] = v.Clone()
	}
	for k, v := range m.conflicts {
		c := *v
		cp.conflicts[k] = &c
	}
	for k, v := range m.timers {
		t := *v
		cp.timers[k] = &t
	}
	return cp
}

func (m *memStore) restore(saved *memStore) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teams = saved.teams
	m.users = saved.users
	m.queues = saved.queues
	m.conflicts = saved.conflicts
	m.timers = saved.timers
}

func key(teamID, name string) string {
	return teamID + "/" + name
}

type memTeams struct{ *memStore }

func (m memTeams) Create(_ context.Context, t *repository.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[t.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *t
	m.teams[t.ID] = &cp
	return nil
}

func (m memTeams) Get(_ context.Context, id string) (*repository.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m memTeams) SetChannel(_ context.Context, id string, channel *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.NotificationChannel = channel
	return nil
}

func (m memTeams) GetTeamMembers(_ context.Context, id string) ([]*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*repository.User
	for _, u := range m.users {
		if u.TeamID != nil && *u.TeamID == id {
			cp := *u
			res = append(res, &cp)
		}
	}
	return res, nil
}

type memUsers struct{ *memStore }

func (m memUsers) Get(_ context.Context, id string) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m memUsers) Upsert(_ context.Context, u *repository.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m memUsers) ResolveTeam(ctx context.Context, id string) (string, error) {
	u, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if u.TeamID == nil {
		return "", repository.ErrNotFound
	}
	return *u.TeamID, nil
}

func (m memUsers) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	t, err := m.ResolveTeam(ctx, userID)
	if err != nil {
		return false, nil
	}
	return t == teamID, nil
}

type memQueues struct{ *memStore }

func (m memQueues) Create(_ context.Context, q *model.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[key(q.TeamID, q.Name)]; ok {
		return repository.ErrAlreadyExists
	}
	m.queues[key(q.TeamID, q.Name)] = q.Clone()
	return nil
}

func (m memQueues) Get(_ context.Context, teamID, name string) (*model.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[key(teamID, name)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return q.Clone(), nil
}

func (m memQueues) GetForUpdate(ctx context.Context, teamID, name string) (*model.Queue, error) {
	return m.Get(ctx, teamID, name)
}

func (m memQueues) Put(_ context.Context, q *model.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.queues[key(q.TeamID, q.Name)]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != q.Version {
		return repository.ErrVersionConflict
	}
	q.Version++
	m.queues[key(q.TeamID, q.Name)] = q.Clone()
	return nil
}

func (m memQueues) List(_ context.Context, teamID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []string
	for _, q := range m.queues {
		if q.TeamID == teamID {
			res = append(res, q.Name)
		}
	}
	return res, nil
}

func (m memQueues) Delete(_ context.Context, teamID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[key(teamID, name)]; !ok {
		return repository.ErrNotFound
	}
	delete(m.queues, key(teamID, name))
	delete(m.conflicts, key(teamID, name))
	return nil
}

type memConflicts struct{ *memStore }

func (m memConflicts) Get(_ context.Context, teamID, name string) (*model.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[key(teamID, name)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memConflicts) Upsert(_ context.Context, c *model.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.conflicts[key(c.TeamID, c.QueueName)] = &cp
	return nil
}

func (m memConflicts) Delete(_ context.Context, teamID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conflicts[key(teamID, name)]; !ok {
		return repository.ErrNotFound
	}
	delete(m.conflicts, key(teamID, name))
	return nil
}

type memTimers struct{ *memStore }

func (m memTimers) Save(_ context.Context, t *model.Timer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, replaced := m.timers[t.Key]
	cp := *t
	m.timers[t.Key] = &cp
	return replaced, nil
}

func (m memTimers) Get(_ context.Context, k model.TimerKey) (*model.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m memTimers) Delete(_ context.Context, k model.TimerKey, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[k]
	if !ok || t.ID != id {
		return repository.ErrNotFound
	}
	delete(m.timers, k)
	return nil
}

func (m memTimers) ListPending(context.Context) ([]*model.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*model.Timer
	for _, t := range m.timers {
		cp := *t
		res = append(res, &cp)
	}
	return res, nil
}

func (m memTimers) ListDue(_ context.Context, now time.Time) ([]*model.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*model.Timer
	for _, t := range m.timers {
		if !t.Deadline.After(now) {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m memTimers) RecordFailure(_ context.Context, k model.TimerKey, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[k]
	if !ok || t.ID != id {
		return repository.ErrNotFound
	}
	t.Attempts++
	t.LastError = msg
	return nil
}

func (m *memStore) timerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

type sentMessage struct {
	channel string
	text    string
	action  *model.CallToAction
}

type memSink struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *memSink) Notify(_ context.Context, channel, text string, action *model.CallToAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{channel: channel, text: text, action: action})
	return nil
}

func (m *memSink) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}
