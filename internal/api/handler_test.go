package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/auth"
	"github.com/DurbeKK/maid-tg-bot/internal/event"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/service"
)

type mockUsers struct{ mock.Mock }

func (m *mockUsers) ResolveTeam(ctx context.Context, userID string) (string, *service.Error) {
	args := m.Called(ctx, userID)
	if args.Get(1) == nil {
		return args.String(0), nil
	}
	return args.String(0), args.Get(1).(*service.Error)
}

type mockConflicts struct{ mock.Mock }

func (m *mockConflicts) outcome(args mock.Arguments) (*model.ConflictOutcome, *service.Error) {
	var out *model.ConflictOutcome
	if args.Get(0) != nil {
		out = args.Get(0).(*model.ConflictOutcome)
	}
	if args.Get(1) == nil {
		return out, nil
	}
	return out, args.Get(1).(*service.Error)
}

func (m *mockConflicts) DeclareInability(ctx context.Context, ev event.DeclareInability) (*model.ConflictOutcome, *service.Error) {
	return m.outcome(m.Called(ctx, ev))
}

func (m *mockConflicts) SubmitReason(ctx context.Context, ev event.ReasonReceived) (*model.ConflictOutcome, *service.Error) {
	return m.outcome(m.Called(ctx, ev))
}

func (m *mockConflicts) Substitute(ctx context.Context, ev event.SubstitutionAttempt) (*model.ConflictOutcome, *service.Error) {
	return m.outcome(m.Called(ctx, ev))
}

func (m *mockConflicts) GetConflict(ctx context.Context, teamID, queueName string) (*model.Conflict, *service.Error) {
	args := m.Called(ctx, teamID, queueName)
	if args.Get(1) != nil {
		return nil, args.Get(1).(*service.Error)
	}
	return args.Get(0).(*model.Conflict), nil
}

type mockReorders struct{ mock.Mock }

func (m *mockReorders) Begin(ctx context.Context, teamID, queueName, userID string) (*model.ReorderSession, *service.Error) {
	args := m.Called(ctx, teamID, queueName, userID)
	if args.Get(1) != nil {
		return nil, args.Get(1).(*service.Error)
	}
	return args.Get(0).(*model.ReorderSession), nil
}

func (m *mockReorders) Step(ctx context.Context, ev event.ReorderStep) (*model.ReorderSession, *service.Error) {
	args := m.Called(ctx, ev)
	if args.Get(1) != nil {
		return nil, args.Get(1).(*service.Error)
	}
	return args.Get(0).(*model.ReorderSession), nil
}

func (m *mockReorders) Cancel(ctx context.Context, sessionID, userID string) *service.Error {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*service.Error)
}

const testSecret = "test-secret"

func bearer(t *testing.T, userID string, typ auth.TokenType) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, "Ann", typ, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestServer(users *mockUsers, conflicts *mockConflicts, reorders *mockReorders) *echo.Echo {
	auth.TokenSecretKey = testSecret

	e := echo.New()
	NewHandler(zap.NewNop()).
		WithUserService(users).
		WithConflictService(conflicts).
		WithReorderService(reorders).
		RegisterRoutes(e)
	return e
}

func TestHandler_Auth(t *testing.T) {
	users := &mockUsers{}
	e := newTestServer(users, &mockConflicts{}, &mockReorders{})

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "no token", path: "/queues/dishes/conflict", status: http.StatusUnauthorized},
		{name: "garbage token", path: "/queues/dishes/conflict", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "user token on admin route", path: "/notifications?channel_id=c1", header: bearer(t, "u1", auth.TokenTypeUser), status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
	users.AssertNotCalled(t, "ResolveTeam", mock.Anything, mock.Anything)
}

func TestHandler_Conflict(t *testing.T) {
	target := event.Target{TeamID: "t1", QueueName: "dishes", UserID: "u1"}

	tests := []struct {
		name       string
		path       string
		body       string
		setupMocks func(*mockUsers, *mockConflicts)
		status     int
		contains   string
	}{
		{
			name: "declare inability",
			path: "/queues/dishes/conflict/decline",
			setupMocks: func(u *mockUsers, c *mockConflicts) {
				u.On("ResolveTeam", mock.Anything, "u1").Return("t1", nil)
				c.On("DeclareInability", mock.Anything, event.DeclareInability{Target: target}).
					Return(&model.ConflictOutcome{State: model.ConflictStateReasonRequested, Message: "why?"}, nil)
			},
			status:   http.StatusOK,
			contains: string(model.ConflictStateReasonRequested),
		},
		{
			name: "reason escalates",
			path: "/queues/dishes/conflict/reason",
			body: `{"reason":"sick"}`,
			setupMocks: func(u *mockUsers, c *mockConflicts) {
				u.On("ResolveTeam", mock.Anything, "u1").Return("t1", nil)
				c.On("SubmitReason", mock.Anything, event.ReasonReceived{Target: target, Reason: "sick"}).
					Return(&model.ConflictOutcome{State: model.ConflictStateEscalated}, nil)
			},
			status:   http.StatusOK,
			contains: string(model.ConflictStateEscalated),
		},
		{
			name:       "empty reason",
			path:       "/queues/dishes/conflict/reason",
			body:       `{"reason":""}`,
			setupMocks: func(u *mockUsers, c *mockConflicts) {},
			status:     http.StatusBadRequest,
			contains:   string(service.ErrorCodeInvalidBody),
		},
		{
			name: "no channel",
			path: "/queues/dishes/conflict/reason",
			body: `{"reason":"sick"}`,
			setupMocks: func(u *mockUsers, c *mockConflicts) {
				u.On("ResolveTeam", mock.Anything, "u1").Return("t1", nil)
				c.On("SubmitReason", mock.Anything, mock.Anything).
					Return(nil, service.NewError(service.ErrorCodeNoChannel, "no channel"))
			},
			status:   http.StatusUnprocessableEntity,
			contains: string(service.ErrorCodeNoChannel),
		},
		{
			name: "substitute after resolution",
			path: "/queues/dishes/conflict/substitute",
			body: `{"team_id":"t1"}`,
			setupMocks: func(u *mockUsers, c *mockConflicts) {
				c.On("Substitute", mock.Anything, event.SubstitutionAttempt{Target: target}).
					Return(nil, service.NewError(service.ErrorCodeAlreadyResolved, "already resolved"))
			},
			status:   http.StatusConflict,
			contains: string(service.ErrorCodeAlreadyResolved),
		},
		{
			name: "outsider presses the button",
			path: "/queues/dishes/conflict/substitute",
			body: `{"team_id":"t1"}`,
			setupMocks: func(u *mockUsers, c *mockConflicts) {
				c.On("Substitute", mock.Anything, event.SubstitutionAttempt{Target: target}).
					Return(nil, service.NewError(service.ErrorCodeNotMember, "you are not a part of this team"))
			},
			status:   http.StatusForbidden,
			contains: string(service.ErrorCodeNotMember),
		},
		{
			name:       "substitute without team",
			path:       "/queues/dishes/conflict/substitute",
			body:       `{}`,
			setupMocks: func(u *mockUsers, c *mockConflicts) {},
			status:     http.StatusBadRequest,
			contains:   string(service.ErrorCodeInvalidBody),
		},
		{
			name: "caller without team",
			path: "/queues/dishes/conflict/decline",
			setupMocks: func(u *mockUsers, c *mockConflicts) {
				u.On("ResolveTeam", mock.Anything, "u1").Return("", service.NewError(service.ErrorCodeNotFound, "user has no team"))
			},
			status:   http.StatusNotFound,
			contains: string(service.ErrorCodeNotFound),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, conflicts := &mockUsers{}, &mockConflicts{}
			tt.setupMocks(users, conflicts)
			e := newTestServer(users, conflicts, &mockReorders{})

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req.Header.Set(echo.HeaderAuthorization, bearer(t, "u1", auth.TokenTypeUser))
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			users.AssertExpectations(t)
			conflicts.AssertExpectations(t)
		})
	}
}

func TestHandler_ReorderStep(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		setupMocks func(*mockReorders)
		status     int
	}{
		{
			name: "pick from",
			path: "/reorder/s1/from",
			body: `{"index":0}`,
			setupMocks: func(r *mockReorders) {
				r.On("Step", mock.Anything, event.ReorderStep{SessionID: "s1", UserID: "u1", Step: event.ReorderFrom, Index: 0}).
					Return(&model.ReorderSession{ID: "s1"}, nil)
			},
			status: http.StatusOK,
		},
		{
			name: "same position",
			path: "/reorder/s1/to",
			body: `{"index":1}`,
			setupMocks: func(r *mockReorders) {
				r.On("Step", mock.Anything, event.ReorderStep{SessionID: "s1", UserID: "u1", Step: event.ReorderTo, Index: 1}).
					Return(nil, service.NewError(service.ErrorCodeNoopReorder, "same position"))
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing index",
			path:       "/reorder/s1/to",
			body:       `{}`,
			setupMocks: func(r *mockReorders) {},
			status:     http.StatusBadRequest,
		},
		{
			name:       "negative index",
			path:       "/reorder/s1/from",
			body:       `{"index":-1}`,
			setupMocks: func(r *mockReorders) {},
			status:     http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reorders := &mockReorders{}
			tt.setupMocks(reorders)
			e := newTestServer(&mockUsers{}, &mockConflicts{}, reorders)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req.Header.Set(echo.HeaderAuthorization, bearer(t, "u1", auth.TokenTypeUser))
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			reorders.AssertExpectations(t)
		})
	}
}
