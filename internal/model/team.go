package model

type Team struct {
	ID      string `json:"team_id"`
	Name    string `json:"team_name"`
	OwnerID string `json:"owner_id"`
	// NotificationChannel is where escalations and outcomes are broadcast.
	// Nil until the team connects a group chat.
	NotificationChannel *string `json:"notification_channel,omitempty"`
	Members             []*User `json:"members,omitempty"`
}

func (t *Team) HasChannel() bool {
	return t.NotificationChannel != nil && *t.NotificationChannel != ""
}
