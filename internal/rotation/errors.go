package rotation

import "github.com/pkg/errors"

var (
	ErrEmptyQueue         = errors.New("queue has no members")
	ErrSelfSubstitution   = errors.New("current turn holder cannot substitute themselves")
	ErrOutOfRange         = errors.New("position out of range")
	ErrNoopReorder        = errors.New("source and destination positions are the same")
	ErrInvariantViolation = errors.New("queue must have exactly one current turn holder")
	ErrDuplicateMember    = errors.New("member appears more than once")
)
