package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Name string `json:"team_name" validate:"required,max=64"`
	}

	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.CreateTeam(e.Request().Context(), h.caller(e), req.Name)
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) GetTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

// JoinTeam is what the invite link leads to.
func (h *Handler) JoinTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		TeamID string `json:"team_id" validate:"required"`
	}

	if err := decodeRequest(e, &req); err != nil {
		l.Warn("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	team, err := h.team.JoinTeam(e.Request().Context(), h.caller(e), req.TeamID)
	if err != nil {
		l.Error("failed to join team", zap.String("team_id", req.TeamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) SetChannel(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		ChannelID string `json:"channel_id"`
	}

	if err := decodeRequest(e, &req); err != nil {
		return h.transportError(e, err)
	}

	teamID, err := h.callerTeam(e)
	if err != nil {
		return h.transportError(e, err)
	}

	if err = h.team.SetChannel(e.Request().Context(), teamID, req.ChannelID); err != nil {
		l.Error("failed to set channel", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}
