package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
)

const (
	testTeam  = "t1"
	testQueue = "dishes"
)

// newQueue builds a queue of members named names where holder has the turn.
// User ids are "u-" + name.
func newQueue(holder int, names ...string) *model.Queue {
	q := &model.Queue{TeamID: testTeam, Name: testQueue, Version: 1}
	for i, n := range names {
		q.Members = append(q.Members, &model.Member{
			UserID:      "u-" + n,
			DisplayName: n,
			CurrentTurn: i == holder,
		})
	}
	return q
}

func holderName(q *model.Queue) string {
	for _, m := range q.Members {
		if m.CurrentTurn {
			return m.DisplayName
		}
	}
	return ""
}

func strPtr(s string) *string {
	return &s
}

func assertErrorCode(t *testing.T, want ErrorCode, got *Error) {
	t.Helper()
	if want == "" {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.Equal(t, want, got.Code)
}
