package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/auth"
	"github.com/DurbeKK/maid-tg-bot/internal/event"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/service"
)

type TeamService interface {
	CreateTeam(ctx context.Context, owner *model.User, name string) (*model.Team, *service.Error)
	JoinTeam(ctx context.Context, user *model.User, teamID string) (*model.Team, *service.Error)
	SetChannel(ctx context.Context, teamID, channel string) *service.Error
	GetTeam(ctx context.Context, teamID string) (*model.Team, *service.Error)
}

type UserService interface {
	ResolveTeam(ctx context.Context, userID string) (string, *service.Error)
}

type QueueService interface {
	CreateQueue(ctx context.Context, teamID, name string) (*model.Queue, *service.Error)
	ListQueues(ctx context.Context, teamID string) ([]string, *service.Error)
	GetQueue(ctx context.Context, teamID, name string) (*model.Queue, *service.Error)
	DeleteQueue(ctx context.Context, teamID, userID, name string) *service.Error
	SetMembers(ctx context.Context, teamID, name string, userIDs []string) (*model.Queue, *service.Error)
	Advance(ctx context.Context, teamID, name, userID string) (*model.Queue, *service.Error)
}

type ConflictService interface {
	DeclareInability(ctx context.Context, ev event.DeclareInability) (*model.ConflictOutcome, *service.Error)
	SubmitReason(ctx context.Context, ev event.ReasonReceived) (*model.ConflictOutcome, *service.Error)
	Substitute(ctx context.Context, ev event.SubstitutionAttempt) (*model.ConflictOutcome, *service.Error)
	GetConflict(ctx context.Context, teamID, queueName string) (*model.Conflict, *service.Error)
}

type ReorderService interface {
	Begin(ctx context.Context, teamID, queueName, userID string) (*model.ReorderSession, *service.Error)
	Step(ctx context.Context, ev event.ReorderStep) (*model.ReorderSession, *service.Error)
	Cancel(ctx context.Context, sessionID, userID string) *service.Error
}

type NotificationLister interface {
	List(ctx context.Context, channelID string, limit int) ([]*model.Notification, error)
}

type Handler struct {
	team          TeamService
	user          UserService
	queue         QueueService
	conflict      ConflictService
	reorder       ReorderService
	notifications NotificationLister

	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTeamService(team TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithUserService(user UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) WithQueueService(queue QueueService) *Handler {
	h.queue = queue
	return h
}

func (h *Handler) WithConflictService(conflict ConflictService) *Handler {
	h.conflict = conflict
	return h
}

func (h *Handler) WithReorderService(reorder ReorderService) *Handler {
	h.reorder = reorder
	return h
}

func (h *Handler) WithNotifications(n NotificationLister) *Handler {
	h.notifications = n
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}

	users := e.Group("", AuthMiddleware(auth.TokenTypeUser, auth.TokenTypeAdmin))

	users.POST("/teams", h.CreateTeam)
	users.GET("/teams", h.GetTeam)
	users.POST("/teams/join", h.JoinTeam)
	users.POST("/teams/channel", h.SetChannel)

	users.POST("/queues", h.CreateQueue)
	users.GET("/queues", h.ListQueues)
	users.GET("/queues/:name", h.GetQueue)
	users.DELETE("/queues/:name", h.DeleteQueue)
	users.PUT("/queues/:name/members", h.SetMembers)
	users.POST("/queues/:name/advance", h.Advance)

	users.GET("/queues/:name/conflict", h.GetConflict)
	users.POST("/queues/:name/conflict/decline", h.DeclareInability)
	users.POST("/queues/:name/conflict/reason", h.SubmitReason)
	users.POST("/queues/:name/conflict/substitute", h.Substitute)

	users.POST("/queues/:name/reorder", h.BeginReorder)
	users.POST("/reorder/:session/from", h.ReorderFrom)
	users.POST("/reorder/:session/to", h.ReorderTo)
	users.DELETE("/reorder/:session", h.CancelReorder)

	admins := e.Group("", AuthMiddleware(auth.TokenTypeAdmin))

	admins.GET("/notifications", h.ListNotifications)
}

func (h *Handler) caller(e echo.Context) *model.User {
	claims := ClaimsFromContext(e)
	if claims == nil {
		return &model.User{}
	}

	name := claims.Name
	if name == "" {
		name = claims.UserID()
	}
	return &model.User{ID: claims.UserID(), DisplayName: name}
}

// callerTeam resolves the team of the authenticated user.
func (h *Handler) callerTeam(e echo.Context) (string, *service.Error) {
	return h.user.ResolveTeam(e.Request().Context(), h.caller(e).ID)
}

func errorBody(code service.ErrorCode, message string) any {
	return struct {
		Error *service.Error `json:"error"`
	}{Error: service.NewError(code, message)}
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeNotMember, service.ErrorCodeForbidden, service.ErrorCodeNotTurnHolder:
		return e.JSON(http.StatusForbidden, response)
	case service.ErrorCodeSelfSubstitution, service.ErrorCodeOutOfRange, service.ErrorCodeNotInQueue,
		service.ErrorCodeNoopReorder, service.ErrorCodeNoSelection, service.ErrorCodeEmptyQueue, service.ErrorCodeNoChannel:
		return e.JSON(http.StatusUnprocessableEntity, response)
	case service.ErrorCodeAlreadyResolved, service.ErrorCodeConflictInProgress, service.ErrorCodeNotEscalated,
		service.ErrorCodeTeamExists, service.ErrorCodeQueueExists, service.ErrorCodeVersionConflict:
		return e.JSON(http.StatusConflict, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
