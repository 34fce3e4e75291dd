package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"knowledge_backend/models"
)

// Pinger is a dependency whose liveness is reported by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			report[name] = err.Error()
			status = fiber.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	if status != fiber.StatusOK {
		return c.Status(status).JSON(models.StandardResponse{Code: status, Message: "unhealthy", Data: report})
	}
	return ok(c, status, report)
}
