package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/bus"
	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// EventsHandler exposes event ingestion and queries.
type EventsHandler struct {
	Bus    *bus.Bus
	Logger *zap.Logger
}

// NewEventsHandler creates an events handler with dependencies.
func NewEventsHandler(b *bus.Bus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{Bus: b, Logger: logger}
}

// EventsResponse is the response structure for GET /events.
type EventsResponse struct {
	Events  []*models.Event `json:"events"`
	HasMore bool            `json:"has_more"`
}

// EmitEvent handles POST /events.
func (h *EventsHandler) EmitEvent(c *fiber.Ctx) error {
	var input bus.EmitInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	event, err := h.Bus.EmitEvent(c.Context(), input)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.Logger.Error("Failed to emit event", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to emit event",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(event)
}

// GetEvent handles GET /events/:id.
func (h *EventsHandler) GetEvent(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid event id",
		})
	}

	event, err := h.Bus.GetEvent(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "event not found",
			})
		}
		h.Logger.Error("Failed to load event", zap.String("event_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load event",
		})
	}

	return c.JSON(event)
}

// GetEvents handles GET /events.
// Query parameters:
//   - types (optional): comma-separated event types
//   - sources (optional): comma-separated sources
//   - from, to (optional): RFC 3339 timestamps, inclusive
//   - limit (optional, default 25), offset (optional, default 0)
func (h *EventsHandler) GetEvents(c *fiber.Ctx) error {
	filter := &models.EventFilter{}
	if types := c.Query("types"); types != "" {
		filter.EventTypes = strings.Split(types, ",")
	}
	if sources := c.Query("sources"); sources != "" {
		filter.Sources = strings.Split(sources, ",")
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from must be an RFC 3339 timestamp",
			})
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "to must be an RFC 3339 timestamp",
			})
		}
		filter.To = &t
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	events, err := h.Bus.GetEvents(c.Context(), filter)
	if err != nil {
		h.Logger.Error("Failed to query events", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to query events",
		})
	}

	page, hasMore := paginate(events, limit, offset)
	return c.JSON(EventsResponse{Events: page, HasMore: hasMore})
}

func parsePagination(c *fiber.Ctx) (limit, offset int, err error) {
	limit = 25
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = parsed
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}

func paginate[T any](items []T, limit, offset int) ([]T, bool) {
	if offset >= len(items) {
		return []T{}, false
	}
	items = items[offset:]
	if len(items) > limit {
		return items[:limit], true
	}
	return items, false
}
