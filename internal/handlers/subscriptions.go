package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/bus"
	"github.com/wirehooks/eventbus-svc/internal/registry"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// SubscriptionsHandler exposes subscription management.
type SubscriptionsHandler struct {
	Bus    *bus.Bus
	Logger *zap.Logger
}

// NewSubscriptionsHandler creates a subscriptions handler with dependencies.
func NewSubscriptionsHandler(b *bus.Bus, logger *zap.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{Bus: b, Logger: logger}
}

// Create handles POST /subscriptions.
func (h *SubscriptionsHandler) Create(c *fiber.Ctx) error {
	var input registry.CreateInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	sub, err := h.Bus.CreateSubscription(c.Context(), input)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// Get handles GET /subscriptions/:id.
func (h *SubscriptionsHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid subscription id",
		})
	}

	sub, err := h.Bus.GetSubscription(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "subscription not found",
			})
		}
		h.Logger.Error("Failed to load subscription", zap.String("subscription_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load subscription",
		})
	}

	return c.JSON(sub)
}

// Update handles PATCH /subscriptions/:id with partial patch semantics.
func (h *SubscriptionsHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid subscription id",
		})
	}

	var input registry.UpdateInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	sub, err := h.Bus.UpdateSubscription(c.Context(), id, input)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "subscription not found",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(sub)
}

// Delete handles DELETE /subscriptions/:id.
func (h *SubscriptionsHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid subscription id",
		})
	}

	removed, err := h.Bus.DeleteSubscription(c.Context(), id)
	if err != nil {
		h.Logger.Error("Failed to delete subscription", zap.String("subscription_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete subscription",
		})
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "subscription not found",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// List handles GET /subscriptions. With ?active=true only active
// subscriptions are returned.
func (h *SubscriptionsHandler) List(c *fiber.Ctx) error {
	var err error
	var subs interface{}
	if c.Query("active") == "true" {
		subs, err = h.Bus.GetActiveSubscriptions(c.Context())
	} else {
		subs, err = h.Bus.GetSubscriptions(c.Context())
	}
	if err != nil {
		h.Logger.Error("Failed to list subscriptions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list subscriptions",
		})
	}

	return c.JSON(fiber.Map{"subscriptions": subs})
}
