package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/syncrelay/syncrelay/internal/domain"
)

// ReceiveActivity accepts one inbound activity from the relay channel and
// runs it through the turn pipeline.
// POST /api/messages
func (h *Handler) ReceiveActivity(c echo.Context) error {
	var a domain.Activity
	if err := c.Bind(&a); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid activity"})
	}
	if a.Kind == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "activity type is required"})
	}

	if err := h.adapter.ProcessActivity(c.Request().Context(), &a, h.bot); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to process activity"})
	}
	return c.NoContent(http.StatusAccepted)
}

// GetUserActivities returns the logged history for a user.
// GET /v1/users/:user_id/activities
func (h *Handler) GetUserActivities(c echo.Context) error {
	userID := c.Param("user_id")

	activities, err := h.service.UserHistory(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"activities": activities,
		"count":      len(activities),
	})
}
