package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/wirehooks/eventbus-svc/internal/database"
	"github.com/wirehooks/eventbus-svc/internal/rabbitmq"
)

// HealthHandler reports the health of configured collaborators. DB and RMQ
// may be nil when the in-memory backend or no broker is configured.
type HealthHandler struct {
	DB  *gorm.DB
	RMQ *rabbitmq.Connection
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *gorm.DB, rmq *rabbitmq.Connection) *HealthHandler {
	return &HealthHandler{DB: db, RMQ: rmq}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthCheck handles the health check endpoint.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	if h.DB != nil {
		if err := database.HealthCheck(ctx, h.DB); err != nil {
			services["database"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			services["database"] = "healthy"
		}
	} else {
		services["database"] = "not configured"
	}

	if h.RMQ != nil {
		if h.RMQ.IsHealthy() {
			services["rabbitmq"] = "healthy"
		} else {
			services["rabbitmq"] = "unhealthy: connection closed"
			status = "unhealthy"
		}
	} else {
		services["rabbitmq"] = "not configured"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}
