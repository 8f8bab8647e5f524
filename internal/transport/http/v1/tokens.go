package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/syncrelay/syncrelay/internal/domain"
)

type tokenRequest struct {
	UserID string `json:"userId"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

// ObtainToken issues or resumes a session credential for a user.
// POST /v1/tokens
func (h *Handler) ObtainToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
	}

	origin := c.Request().Header.Get(echo.HeaderOrigin)
	cred, err := h.service.ObtainCredential(c.Request().Context(), req.UserID, origin)
	if err != nil {
		if errors.Is(err, domain.ErrOriginNotTrusted) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "origin not trusted"})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, cred)
}

// RefreshToken renews a previously issued session token.
// POST /v1/tokens/refresh
func (h *Handler) RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "token is required"})
	}

	cred, err := h.service.RefreshCredential(c.Request().Context(), req.Token)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, cred)
}
