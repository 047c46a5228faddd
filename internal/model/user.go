package model

type User struct {
	ID          string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TeamID      string `json:"team_id,omitempty"`
}
