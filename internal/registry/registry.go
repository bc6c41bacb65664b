package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/notify"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// CreateInput is the caller-supplied part of a new subscription. Pointer
// fields distinguish "absent, use the default" from an explicit zero value.
type CreateInput struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	URL         string                 `json:"url"`
	EventTypes  []string               `json:"event_types"`
	Secret      string                 `json:"secret"`
	Active      *bool                  `json:"active"`
	RetryPolicy *models.RetryPolicy    `json:"retry_policy"`
	Filters     map[string]interface{} `json:"filters"`
	Headers     map[string]string      `json:"headers"`
	TimeoutMs   *int                   `json:"timeout_ms"`
}

// UpdateInput is a partial patch: only non-nil fields change.
type UpdateInput struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	URL         *string                `json:"url"`
	EventTypes  []string               `json:"event_types"`
	Secret      *string                `json:"secret"`
	Active      *bool                  `json:"active"`
	RetryPolicy *models.RetryPolicy    `json:"retry_policy"`
	Filters     map[string]interface{} `json:"filters"`
	Headers     map[string]string      `json:"headers"`
	TimeoutMs   *int                   `json:"timeout_ms"`
}

// Registry is the sole writer of subscription records. Every mutation
// publishes a notification for downstream observers.
type Registry struct {
	subscriptions store.SubscriptionStore
	broker        notify.Broker
	validate      *validator.Validate
	logger        *zap.Logger
}

// New creates a registry over the given subscription store.
func New(subscriptions store.SubscriptionStore, broker notify.Broker, logger *zap.Logger) *Registry {
	return &Registry{
		subscriptions: subscriptions,
		broker:        broker,
		validate:      validator.New(),
		logger:        logger,
	}
}

// Create validates the input, fills defaults, stores the subscription, and
// publishes a subscription:created notification.
func (r *Registry) Create(ctx context.Context, input CreateInput) (*models.Subscription, error) {
	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:          uuid.New(),
		Name:        input.Name,
		Description: input.Description,
		URL:         input.URL,
		EventTypes:  input.EventTypes,
		Secret:      input.Secret,
		Active:      true,
		RetryPolicy: models.DefaultRetryPolicy(),
		Filters:     input.Filters,
		Headers:     input.Headers,
		TimeoutMs:   models.DefaultTimeoutMs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Active != nil {
		sub.Active = *input.Active
	}
	if input.RetryPolicy != nil {
		sub.RetryPolicy = *input.RetryPolicy
	}
	if input.TimeoutMs != nil {
		sub.TimeoutMs = *input.TimeoutMs
	}

	if err := r.validate.Struct(sub); err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}

	if err := r.subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}

	r.broker.Publish(notify.KindSubscriptionCreated, sub)
	r.logger.Info("Subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("name", sub.Name),
		zap.Strings("event_types", sub.EventTypes),
	)
	return sub, nil
}

// Get returns one subscription by ID.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return r.subscriptions.Get(ctx, id)
}

// Update applies a partial patch: only supplied fields change. ID and
// CreatedAt never change; UpdatedAt is refreshed. Publishes a
// subscription:updated notification.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Subscription, error) {
	sub, err := r.subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		sub.Name = *input.Name
	}
	if input.Description != nil {
		sub.Description = *input.Description
	}
	if input.URL != nil {
		sub.URL = *input.URL
	}
	if input.EventTypes != nil {
		sub.EventTypes = input.EventTypes
	}
	if input.Secret != nil {
		sub.Secret = *input.Secret
	}
	if input.Active != nil {
		sub.Active = *input.Active
	}
	if input.RetryPolicy != nil {
		sub.RetryPolicy = *input.RetryPolicy
	}
	if input.Filters != nil {
		sub.Filters = input.Filters
	}
	if input.Headers != nil {
		sub.Headers = input.Headers
	}
	if input.TimeoutMs != nil {
		sub.TimeoutMs = *input.TimeoutMs
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := r.validate.Struct(sub); err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}

	if err := r.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}

	r.broker.Publish(notify.KindSubscriptionUpdated, sub)
	r.logger.Info("Subscription updated",
		zap.String("subscription_id", sub.ID.String()),
	)
	return sub, nil
}

// Delete removes the subscription and reports whether it existed. Publishes
// a subscription:deleted notification carrying the identifier.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	removed, err := r.subscriptions.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		r.broker.Publish(notify.KindSubscriptionDeleted, id.String())
		r.logger.Info("Subscription deleted",
			zap.String("subscription_id", id.String()),
		)
	}
	return removed, nil
}

// List returns all subscriptions.
func (r *Registry) List(ctx context.Context) ([]*models.Subscription, error) {
	return r.subscriptions.List(ctx)
}

// ListActive returns subscriptions with the active flag set.
func (r *Registry) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	return r.subscriptions.ListActive(ctx)
}
