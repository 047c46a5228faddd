package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

type queueView struct {
	*model.Queue
	Listing string `json:"listing"`
}

func (h *Handler) CreateQueue(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name string `json:"name" validate:"required,max=64,excludesall=/"`
	}

	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	q, err := h.queue.CreateQueue(e.Request().Context(), teamID, req.Name)
	if err != nil {
		l.Error("failed to create queue", zap.String("queue_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, q)
}

func (h *Handler) ListQueues(e echo.Context) error {
	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	names, err := h.queue.ListQueues(e.Request().Context(), teamID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string][]string{"queues": names})
}

func (h *Handler) GetQueue(e echo.Context) error {
	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	q, err := h.queue.GetQueue(e.Request().Context(), teamID, e.Param("name"))
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, queueView{Queue: q, Listing: q.Listing()})
}

func (h *Handler) DeleteQueue(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	name := e.Param("name")
	if err = h.queue.DeleteQueue(e.Request().Context(), teamID, h.caller(e).ID, name); err != nil {
		l.Error("failed to delete queue", zap.String("queue_name", name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) SetMembers(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name    string   `param:"name" validate:"required"`
		UserIDs []string `json:"user_ids" validate:"dive,required"`
	}

	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	q, err := h.queue.SetMembers(e.Request().Context(), teamID, req.Name, req.UserIDs)
	if err != nil {
		l.Error("failed to set members", zap.String("queue_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, queueView{Queue: q, Listing: q.Listing()})
}

// Advance is the "chore done" action.
func (h *Handler) Advance(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	name := e.Param("name")
	q, err := h.queue.Advance(e.Request().Context(), teamID, name, h.caller(e).ID)
	if err != nil {
		l.Error("failed to advance queue", zap.String("queue_name", name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, queueView{Queue: q, Listing: q.Listing()})
}
