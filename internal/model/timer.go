package model

import "time"

type TimerAction string

const TimerActionConflictTimeout TimerAction = "conflict.timeout"

type TimerKey struct {
	TeamID    string `json:"team_id"`
	QueueName string `json:"queue_name"`
}

type TimerPayload struct {
	Action      TimerAction `json:"action"`
	InitiatorID string      `json:"initiator_id,omitempty"`
}

type Timer struct {
	ID        string       `json:"id"`
	Key       TimerKey     `json:"key"`
	Deadline  time.Time    `json:"deadline"`
	Payload   TimerPayload `json:"payload"`
	Attempts  int          `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
}

// TimerHandle identifies one arming of a key. A re-armed key gets a new ID.
type TimerHandle struct {
	Key TimerKey `json:"key"`
	ID  string   `json:"id"`
}
