package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/event"
	"github.com/DurbeKK/maid-tg-bot/internal/service"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

func (h *Handler) target(e echo.Context) (event.Target, *service.Error) {
	teamID, err := h.callerTeam(e)
	if err != nil {
		return event.Target{}, err
	}
	return event.Target{TeamID: teamID, QueueName: e.Param("name"), UserID: h.caller(e).ID}, nil
}

func (h *Handler) GetConflict(e echo.Context) error {
	t, err := h.target(e)
	if err != nil {
		return h.transportError(e, err)
	}

	c, err := h.conflict.GetConflict(e.Request().Context(), t.TeamID, t.QueueName)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, c)
}

// DeclareInability is the "I can't do it today" action of the turn holder.
func (h *Handler) DeclareInability(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	t, err := h.target(e)
	if err != nil {
		return h.transportError(e, err)
	}

	out, err := h.conflict.DeclareInability(e.Request().Context(), event.DeclareInability{Target: t})
	if err != nil {
		l.Warn("declare inability rejected", zap.String("queue_name", t.QueueName), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, out)
}

func (h *Handler) SubmitReason(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Reason string `json:"reason" validate:"required,max=2000"`
	}

	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}

	t, err := h.target(e)
	if err != nil {
		return h.transportError(e, err)
	}

	out, err := h.conflict.SubmitReason(e.Request().Context(), event.ReasonReceived{Target: t, Reason: req.Reason})
	if err != nil {
		l.Warn("reason not escalated", zap.String("queue_name", t.QueueName), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, out)
}

// Substitute is the "I can do it." button. The team comes from the button
// payload, not from the caller, so the service can turn away outsiders.
func (h *Handler) Substitute(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name   string `param:"name" validate:"required"`
		TeamID string `json:"team_id" validate:"required"`
	}

	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}

	t := event.Target{TeamID: req.TeamID, QueueName: req.Name, UserID: h.caller(e).ID}
	out, err := h.conflict.Substitute(e.Request().Context(), event.SubstitutionAttempt{Target: t})
	if err != nil {
		l.Info("substitution rejected", zap.String("queue_name", t.QueueName), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, out)
}
