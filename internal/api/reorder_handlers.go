package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/event"
	"github.com/DurbeKK/maid-tg-bot/internal/service"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

type reorderStepRequest struct {
	SessionID string `param:"session" validate:"required"`
	Index     *int   `json:"index" validate:"required,gte=0"`
}

func (h *Handler) BeginReorder(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	name := e.Param("name")
	sess, err := h.reorder.Begin(e.Request().Context(), teamID, name, h.caller(e).ID)
	if err != nil {
		l.Warn("reorder not started", zap.String("queue_name", name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, sess)
}

func (h *Handler) ReorderFrom(e echo.Context) error {
	return h.reorderStep(e, event.ReorderFrom)
}

func (h *Handler) ReorderTo(e echo.Context) error {
	return h.reorderStep(e, event.ReorderTo)
}

func (h *Handler) reorderStep(e echo.Context, step event.ReorderStepKind) error {
	var req reorderStepRequest
	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}

	sess, err := h.reorder.Step(e.Request().Context(), event.ReorderStep{
		SessionID: req.SessionID,
		UserID:    h.caller(e).ID,
		Step:      step,
		Index:     *req.Index,
	})
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, sess)
}

func (h *Handler) CancelReorder(e echo.Context) error {
	if err := h.reorder.Cancel(e.Request().Context(), e.Param("session"), h.caller(e).ID); err != nil {
		return h.transportError(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

// ListNotifications is polled by the chat delivery worker.
func (h *Handler) ListNotifications(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		ChannelID string `query:"channel_id" validate:"required"`
		Limit     int    `query:"limit" validate:"gte=0,lte=500"`
	}

	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	list, err := h.notifications.List(e.Request().Context(), req.ChannelID, req.Limit)
	if err != nil {
		l.Error("failed to list notifications", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return h.transportError(e, service.NewError(service.ErrorCodeUnspecified, "failed to list notifications"))
	}

	return e.JSON(http.StatusOK, map[string]any{"notifications": list})
}
