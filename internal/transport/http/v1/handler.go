// Package v1 provides the HTTP handlers for the relay service.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/syncrelay/syncrelay/internal/service"
	"github.com/syncrelay/syncrelay/internal/turn"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	adapter *turn.Adapter
	bot     turn.Handler
	log     zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, adapter *turn.Adapter, bot turn.Handler, log zerolog.Logger) *Handler {
	return &Handler{
		service: svc,
		adapter: adapter,
		bot:     bot,
		log:     log,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Credential endpoint (called by front-ends before a session exists)
	e.POST("/v1/tokens", h.ObtainToken)
	e.POST("/v1/tokens/refresh", h.RefreshToken)

	// Inbound activity webhook (called by the relay channel)
	e.POST("/api/messages", h.ReceiveActivity)

	// Operator visibility
	e.GET("/v1/users/:user_id/activities", h.GetUserActivities)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
