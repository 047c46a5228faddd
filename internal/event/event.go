// Package event defines the inputs that drive conflicts and reorders.
// Every event is validated before it reaches a service.
package event

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Event is implemented only by the types in this package.
type Event interface {
	Kind() string
	event()
}

type Target struct {
	TeamID    string `json:"team_id" validate:"required"`
	QueueName string `json:"queue_name" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

// DeclareInability is sent by the turn holder who cannot do the chore.
type DeclareInability struct {
	Target
}

type ReasonReceived struct {
	Target
	Reason string `json:"reason" validate:"required,max=2000"`
}

// SubstitutionAttempt is sent when someone presses "I can do it."
type SubstitutionAttempt struct {
	Target
}

type ReorderStepKind string

const (
	ReorderFrom ReorderStepKind = "from"
	ReorderTo   ReorderStepKind = "to"
)

type ReorderStep struct {
	SessionID string          `json:"session_id" validate:"required"`
	UserID    string          `json:"user_id" validate:"required"`
	Step      ReorderStepKind `json:"step" validate:"required,oneof=from to"`
	Index     int             `json:"index" validate:"gte=0"`
}

func (DeclareInability) Kind() string    { return "declare_inability" }
func (ReasonReceived) Kind() string      { return "reason_received" }
func (SubstitutionAttempt) Kind() string { return "substitution_attempt" }
func (ReorderStep) Kind() string         { return "reorder_step" }

func (DeclareInability) event()    {}
func (ReasonReceived) event()      {}
func (SubstitutionAttempt) event() {}
func (ReorderStep) event()         {}

func Validate(e Event) error {
	if err := validate.Struct(e); err != nil {
		return errors.Wrapf(err, "invalid %s event", e.Kind())
	}
	return nil
}
