package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wirehooks/eventbus-svc/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// EventStore persists emitted events. Events are immutable once appended.
type EventStore interface {
	Append(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// Query returns all events matching the filter, newest-first. A nil
	// filter returns the full set.
	Query(ctx context.Context, filter *models.EventFilter) ([]*models.Event, error)
}

// SubscriptionStore persists subscription records.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, sub *models.Subscription) error
	// Delete removes the subscription and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context) ([]*models.Subscription, error)
	ListActive(ctx context.Context) ([]*models.Subscription, error)
}

// DeliveryStore persists delivery records and their status history.
type DeliveryStore interface {
	Create(ctx context.Context, delivery *models.Delivery) error
	Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	Update(ctx context.Context, delivery *models.Delivery) error
	// List returns deliveries newest-first, optionally restricted to one
	// subscription.
	List(ctx context.Context, subscriptionID *uuid.UUID) ([]*models.Delivery, error)
}

// Store bundles the three stores so a durable backend can be substituted for
// the in-memory reference without touching the state-machine logic.
type Store interface {
	Events() EventStore
	Subscriptions() SubscriptionStore
	Deliveries() DeliveryStore
}
