package model

import "time"

type ConflictState string

const (
	ConflictStateNone            ConflictState = "NO_CONFLICT"
	ConflictStateReasonRequested ConflictState = "REASON_REQUESTED"
	ConflictStateEscalated       ConflictState = "ESCALATED"
	ConflictStateResolved        ConflictState = "RESOLVED"
	ConflictStateTimedOut        ConflictState = "TIMED_OUT"
)

// Conflict is one in-flight opt-out for a queue. Only ReasonRequested and
// Escalated are ever persisted; the other states are reported to callers.
type Conflict struct {
	TeamID      string        `json:"team_id"`
	QueueName   string        `json:"queue_name"`
	InitiatorID string        `json:"initiator_id"`
	Reason      string        `json:"reason,omitempty"`
	State       ConflictState `json:"state"`
	Deadline    *time.Time    `json:"deadline,omitempty"`
	TimerID     string        `json:"timer_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

type ConflictOutcome struct {
	State    ConflictState `json:"state"`
	Conflict *Conflict     `json:"conflict,omitempty"`
	Queue    *Queue        `json:"queue,omitempty"`
	Message  string        `json:"message"`
	// Undelivered lists channels whose notification could not be handed to the sink.
	Undelivered []string `json:"undelivered,omitempty"`
}
