package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/faltrading/FAL-chat-service/internal/realtime"
)

// Pinger проверяет доступность зависимости (Postgres, Redis)
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	registry *realtime.Registry
	checks   map[string]Pinger
}

func NewHealthHandler(registry *realtime.Registry, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		checks:   checks,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       "ok",
		"service":      "chat",
		"dependencies": deps,
		"connections":  h.registry.Count(),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
