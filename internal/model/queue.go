package model

import (
	"fmt"
	"strings"
)

type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	CurrentTurn bool   `json:"current_turn"`
}

// Queue is the ordered rotation of one recurring chore inside a team.
type Queue struct {
	TeamID  string    `json:"team_id"`
	Name    string    `json:"name"`
	Members []*Member `json:"members"`
	// Version increases on every committed write and guards concurrent writers.
	Version int64 `json:"version"`
}

// Clone returns a deep copy so callers can mutate members freely.
func (q *Queue) Clone() *Queue {
	c := &Queue{
		TeamID:  q.TeamID,
		Name:    q.Name,
		Version: q.Version,
	}
	if q.Members == nil {
		return c
	}

	c.Members = make([]*Member, len(q.Members))
	for i, m := range q.Members {
		cp := *m
		c.Members[i] = &cp
	}
	return c
}

// Names lists display names in rotation order.
func (q *Queue) Names() []string {
	names := make([]string, 0, len(q.Members))
	for _, m := range q.Members {
		names = append(names, m.DisplayName)
	}
	return names
}

// Listing renders the numbered list shown to users.
func (q *Queue) Listing() string {
	var b strings.Builder
	for i, m := range q.Members {
		marker := ""
		if m.CurrentTurn {
			marker = " <- current turn"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, m.DisplayName, marker)
	}
	return b.String()
}
