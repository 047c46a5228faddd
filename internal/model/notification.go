package model

import "time"

// CallToAction is the structured button attached to a broadcast.
type CallToAction struct {
	Label     string `json:"label"`
	Event     string `json:"event"`
	TeamID    string `json:"team_id"`
	QueueName string `json:"queue_name"`
}

type Notification struct {
	ID        string        `json:"id"`
	ChannelID string        `json:"channel_id"`
	Text      string        `json:"text"`
	Action    *CallToAction `json:"action,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
