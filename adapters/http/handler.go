package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/asistente-auditoria/widget/adapters/websocket"
	"github.com/asistente-auditoria/widget/domain"
)

const defaultMaxConcurrent = 100

type WidgetHandler struct {
	wsHub         *websocket.Hub
	maxConcurrent int
}

type CatalogResponse struct {
	Auditorias []domain.Option `json:"auditorias"`
	Entes      []domain.Option `json:"entes"`
}

func NewWidgetHandler(wsHub *websocket.Hub, maxConcurrent int) *WidgetHandler {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &WidgetHandler{
		wsHub:         wsHub,
		maxConcurrent: maxConcurrent,
	}
}

// ConcurrencyLimitMiddleware caps how many requests (and so live sockets on
// /ws) are served at once.
func (h *WidgetHandler) ConcurrencyLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	semaphore := make(chan struct{}, h.maxConcurrent)
	return func(c echo.Context) error {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent sessions")
		}
	}
}

// Catalog lists the options of the guided intake, for front ends that build
// their own buttons.
func (h *WidgetHandler) Catalog(c echo.Context) error {
	return c.JSON(http.StatusOK, CatalogResponse{
		Auditorias: domain.AuditoriaOptions,
		Entes:      domain.EnteOptions,
	})
}

// Health check endpoint
func (h *WidgetHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "audit-assistant-widget",
		"sessions":  h.wsHub.ClientCount(),
	})
}
