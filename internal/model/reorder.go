package model

import "time"

type ReorderSession struct {
	ID        string    `json:"session_id"`
	TeamID    string    `json:"team_id"`
	QueueName string    `json:"queue_name"`
	UserID    string    `json:"user_id"`
	From      *int      `json:"from,omitempty"`
	Version   int64     `json:"version"`
	ExpiresAt time.Time `json:"expires_at"`
	Queue     *Queue    `json:"queue,omitempty"`
}
