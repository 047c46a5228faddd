// Package rotation holds the pure turn logic of a queue. Every function
// returns a fresh queue and leaves its argument untouched, so a failed
// operation never leaves a partially applied mutation behind.
package rotation

import (
	"github.com/pkg/errors"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
)

// CurrentTurn returns the index of the turn holder.
func CurrentTurn(q *model.Queue) (int, error) {
	if len(q.Members) == 0 {
		return -1, ErrEmptyQueue
	}

	holder := -1
	for i, m := range q.Members {
		if !m.CurrentTurn {
			continue
		}
		if holder != -1 {
			return -1, errors.Wrapf(ErrInvariantViolation, "positions %d and %d both hold the turn", holder, i)
		}
		holder = i
	}

	if holder == -1 {
		return -1, errors.Wrap(ErrInvariantViolation, "nobody holds the turn")
	}
	return holder, nil
}

// Validate checks the single turn holder invariant. An empty queue is valid.
func Validate(q *model.Queue) error {
	if len(q.Members) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(q.Members))
	for _, m := range q.Members {
		if _, ok := seen[m.UserID]; ok {
			return errors.Wrap(ErrDuplicateMember, m.UserID)
		}
		seen[m.UserID] = struct{}{}
	}

	_, err := CurrentTurn(q)
	return err
}

func IndexOf(q *model.Queue, userID string) int {
	for i, m := range q.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

// Advance passes the turn to the next member, wrapping around.
func Advance(q *model.Queue) (*model.Queue, error) {
	i, err := CurrentTurn(q)
	if err != nil {
		return nil, err
	}

	next := q.Clone()
	next.Members[i].CurrentTurn = false
	next.Members[(i+1)%len(next.Members)].CurrentTurn = true

	return next, nil
}

// Substitute records that the member at substituteIdx covered the current
// turn. The cycle counts as completed by the holder's slot, so the turn
// marker moves to the position after the holder, and then the holder and
// the substitute exchange places. The holder ends up doing the chore when
// the substitute's slot comes around.
func Substitute(q *model.Queue, substituteIdx int) (*model.Queue, error) {
	i, err := CurrentTurn(q)
	if err != nil {
		return nil, err
	}

	n := len(q.Members)
	if substituteIdx < 0 || substituteIdx >= n {
		return nil, errors.Wrapf(ErrOutOfRange, "substitute position %d of %d", substituteIdx, n)
	}
	if substituteIdx == i {
		return nil, ErrSelfSubstitution
	}

	next := q.Clone()
	turn := (i + 1) % n

	next.Members[i], next.Members[substituteIdx] = next.Members[substituteIdx], next.Members[i]
	for pos, m := range next.Members {
		m.CurrentTurn = pos == turn
	}

	return next, nil
}

// Reorder moves the member at from to position to. The turn flag travels
// with the member.
func Reorder(q *model.Queue, from, to int) (*model.Queue, error) {
	if _, err := CurrentTurn(q); err != nil {
		return nil, err
	}

	n := len(q.Members)
	if from < 0 || from >= n {
		return nil, errors.Wrapf(ErrOutOfRange, "from position %d of %d", from, n)
	}
	if to < 0 || to >= n {
		return nil, errors.Wrapf(ErrOutOfRange, "to position %d of %d", to, n)
	}
	if from == to {
		return nil, ErrNoopReorder
	}

	next := q.Clone()
	moved := next.Members[from]

	members := append(next.Members[:from:from], next.Members[from+1:]...)
	members = append(members[:to], append([]*model.Member{moved}, members[to:]...)...)
	next.Members = members

	return next, nil
}

// WithMembers replaces the roster. The current holder keeps the turn when
// still present; otherwise the first member gets it.
func WithMembers(q *model.Queue, members []*model.Member) (*model.Queue, error) {
	holderID := ""
	if i, err := CurrentTurn(q); err == nil {
		holderID = q.Members[i].UserID
	}

	next := &model.Queue{
		TeamID:  q.TeamID,
		Name:    q.Name,
		Version: q.Version,
		Members: make([]*model.Member, 0, len(members)),
	}

	holder := 0
	for i, m := range members {
		cp := *m
		cp.CurrentTurn = false
		if cp.UserID == holderID {
			holder = i
		}
		next.Members = append(next.Members, &cp)
	}

	if len(next.Members) > 0 {
		next.Members[holder].CurrentTurn = true
	}

	if err := Validate(next); err != nil {
		return nil, err
	}
	return next, nil
}
