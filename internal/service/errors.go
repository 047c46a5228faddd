package service

import (
	"github.com/pkg/errors"

	"github.com/DurbeKK/maid-tg-bot/internal/rotation"
)

type ErrorCode string

const (
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
	ErrorCodeEmptyQueue         ErrorCode = "EMPTY_QUEUE"
	ErrorCodeSelfSubstitution   ErrorCode = "SELF_SUBSTITUTION"
	ErrorCodeOutOfRange         ErrorCode = "OUT_OF_RANGE"
	ErrorCodeNotMember          ErrorCode = "NOT_MEMBER"
	ErrorCodeNotInQueue         ErrorCode = "NOT_IN_QUEUE"
	ErrorCodeNoopReorder        ErrorCode = "NOOP_REORDER"
	ErrorCodeNoChannel          ErrorCode = "NO_CHANNEL"
	ErrorCodeAlreadyResolved    ErrorCode = "ALREADY_RESOLVED"
	ErrorCodeConflictInProgress ErrorCode = "CONFLICT_IN_PROGRESS"
	ErrorCodeNotTurnHolder      ErrorCode = "NOT_TURN_HOLDER"
	ErrorCodeNotEscalated       ErrorCode = "NOT_ESCALATED"
	ErrorCodeNoSelection        ErrorCode = "NO_SELECTION"
	ErrorCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrorCodeInvalidBody        ErrorCode = "INVALID_BODY"
	ErrorCodeTeamExists         ErrorCode = "TEAM_EXISTS"
	ErrorCodeQueueExists        ErrorCode = "QUEUE_EXISTS"
	ErrorCodeVersionConflict    ErrorCode = "VERSION_CONFLICT"
	ErrorCodeUnspecified        ErrorCode = "UNSPECIFIED"
)

type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	return e.Message
}

// asError extracts a service error from err, wrapping anything else as
// UNSPECIFIED with the given message.
func asError(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	var res *Error
	if errors.As(err, &res) {
		return res
	}
	return NewError(ErrorCodeUnspecified, fallback)
}

// rotationError maps turn logic failures to codes.
func rotationError(err error) *Error {
	switch {
	case errors.Is(err, rotation.ErrEmptyQueue):
		return NewError(ErrorCodeEmptyQueue, "queue has no members")
	case errors.Is(err, rotation.ErrSelfSubstitution):
		return NewError(ErrorCodeSelfSubstitution, "you can't swap with yourself")
	case errors.Is(err, rotation.ErrOutOfRange):
		return NewError(ErrorCodeOutOfRange, "position is out of range")
	case errors.Is(err, rotation.ErrNoopReorder):
		return NewError(ErrorCodeNoopReorder, "member is already at that position, nothing changed")
	case errors.Is(err, rotation.ErrDuplicateMember):
		return NewError(ErrorCodeInvalidBody, "member appears more than once")
	case errors.Is(err, rotation.ErrInvariantViolation):
		return NewError(ErrorCodeInvariantViolation, "queue must have exactly one current turn holder")
	default:
		return NewError(ErrorCodeUnspecified, "failed to update queue")
	}
}
