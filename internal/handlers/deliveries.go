package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/bus"
	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// DeliveriesHandler exposes delivery tracking and stats.
type DeliveriesHandler struct {
	Bus    *bus.Bus
	Logger *zap.Logger
}

// NewDeliveriesHandler creates a deliveries handler with dependencies.
func NewDeliveriesHandler(b *bus.Bus, logger *zap.Logger) *DeliveriesHandler {
	return &DeliveriesHandler{Bus: b, Logger: logger}
}

// DeliveriesResponse is the response structure for GET /deliveries.
type DeliveriesResponse struct {
	Deliveries []*models.Delivery `json:"deliveries"`
	HasMore    bool               `json:"has_more"`
}

func parseSubscriptionID(c *fiber.Ctx) (*uuid.UUID, error) {
	raw := c.Query("subscription_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.New("invalid subscription_id")
	}
	return &id, nil
}

// List handles GET /deliveries with optional ?subscription_id= filtering.
func (h *DeliveriesHandler) List(c *fiber.Ctx) error {
	subscriptionID, err := parseSubscriptionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	deliveries, err := h.Bus.GetDeliveries(c.Context(), subscriptionID)
	if err != nil {
		h.Logger.Error("Failed to list deliveries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list deliveries",
		})
	}

	page, hasMore := paginate(deliveries, limit, offset)
	return c.JSON(DeliveriesResponse{Deliveries: page, HasMore: hasMore})
}

// Get handles GET /deliveries/:id.
func (h *DeliveriesHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid delivery id",
		})
	}

	delivery, err := h.Bus.GetDelivery(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "delivery not found",
			})
		}
		h.Logger.Error("Failed to load delivery", zap.String("delivery_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load delivery",
		})
	}

	return c.JSON(delivery)
}

// Stats handles GET /deliveries/stats with optional ?subscription_id=.
func (h *DeliveriesHandler) Stats(c *fiber.Ctx) error {
	subscriptionID, err := parseSubscriptionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	stats, err := h.Bus.GetDeliveryStats(c.Context(), subscriptionID)
	if err != nil {
		h.Logger.Error("Failed to aggregate delivery stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to aggregate delivery stats",
		})
	}

	return c.JSON(stats)
}
