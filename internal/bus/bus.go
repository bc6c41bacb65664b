package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/ledger"
	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/notify"
	"github.com/wirehooks/eventbus-svc/internal/observability"
	"github.com/wirehooks/eventbus-svc/internal/registry"
	"github.com/wirehooks/eventbus-svc/internal/scheduler"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// EmitInput is a caller-supplied event candidate. The engine assigns the
// identifier and timestamp; callers never do.
type EmitInput struct {
	Type     string                 `json:"type" validate:"required"`
	Data     map[string]interface{} `json:"data"`
	Source   string                 `json:"source" validate:"required"`
	Version  string                 `json:"version"`
	Metadata map[string]string      `json:"metadata"`
}

// Bus is the engine façade: event ingestion, subscription matching, and
// delivery fan-out, plus read access to everything underneath.
type Bus struct {
	store     store.Store
	registry  *registry.Registry
	ledger    *ledger.Ledger
	scheduler *scheduler.Scheduler
	broker    notify.Broker
	metrics   *observability.Metrics
	validate  *validator.Validate
	logger    *zap.Logger
}

// New wires the bus from its components. metrics may be nil.
func New(
	st store.Store,
	reg *registry.Registry,
	led *ledger.Ledger,
	sched *scheduler.Scheduler,
	broker notify.Broker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Bus {
	return &Bus{
		store:     st,
		registry:  reg,
		ledger:    led,
		scheduler: sched,
		broker:    broker,
		metrics:   metrics,
		validate:  validator.New(),
		logger:    logger,
	}
}

// EmitEvent validates and stores the event, then creates one pending delivery
// per matching active subscription and launches each first attempt as an
// independent goroutine. It returns as soon as the event and its deliveries
// are recorded; a slow subscriber never delays the caller or its peers.
// Delivery failures are never surfaced here: they are delivery state,
// discoverable via GetDeliveries and GetDeliveryStats.
func (b *Bus) EmitEvent(ctx context.Context, input EmitInput) (*models.Event, error) {
	if err := b.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	version := input.Version
	if version == "" {
		version = models.DefaultSchemaVersion
	}
	event := &models.Event{
		ID:        uuid.New(),
		Type:      input.Type,
		Data:      input.Data,
		Source:    input.Source,
		Version:   version,
		Metadata:  input.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := b.store.Events().Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	b.broker.Publish(notify.KindEvent, event)

	subs, err := b.registry.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	created := 0
	for _, sub := range subs {
		if !sub.Matches(event.Type) {
			continue
		}
		delivery, err := b.ledger.Create(ctx, sub, event)
		if err != nil {
			b.logger.Error("Failed to create delivery",
				zap.String("event_id", event.ID.String()),
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			continue
		}
		created++
		go b.scheduler.Attempt(context.Background(), delivery.ID)
	}

	b.metrics.RecordEmit(ctx, created)
	b.logger.Info("Event emitted",
		zap.String("event_id", event.ID.String()),
		zap.String("type", event.Type),
		zap.String("source", event.Source),
		zap.Int("deliveries", created),
	)
	return event, nil
}

// GetEvent returns one stored event.
func (b *Bus) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return b.store.Events().Get(ctx, id)
}

// GetEvents returns events matching the filter, newest-first.
func (b *Bus) GetEvents(ctx context.Context, filter *models.EventFilter) ([]*models.Event, error) {
	return b.store.Events().Query(ctx, filter)
}

// CreateSubscription registers a new subscription.
func (b *Bus) CreateSubscription(ctx context.Context, input registry.CreateInput) (*models.Subscription, error) {
	return b.registry.Create(ctx, input)
}

// GetSubscription returns one subscription.
func (b *Bus) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return b.registry.Get(ctx, id)
}

// UpdateSubscription applies a partial patch.
func (b *Bus) UpdateSubscription(ctx context.Context, id uuid.UUID, input registry.UpdateInput) (*models.Subscription, error) {
	return b.registry.Update(ctx, id, input)
}

// DeleteSubscription removes the subscription and cancels any outstanding
// retry timers for its deliveries, so no dangling retry references stale
// state.
func (b *Bus) DeleteSubscription(ctx context.Context, id uuid.UUID) (bool, error) {
	removed, err := b.registry.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		if cancelled := b.scheduler.CancelForSubscription(id); cancelled > 0 {
			b.logger.Info("Cancelled retry timers for deleted subscription",
				zap.String("subscription_id", id.String()),
				zap.Int("cancelled", cancelled),
			)
		}
	}
	return removed, nil
}

// GetSubscriptions returns all subscriptions.
func (b *Bus) GetSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	return b.registry.List(ctx)
}

// GetActiveSubscriptions returns subscriptions with the active flag set.
func (b *Bus) GetActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	return b.registry.ListActive(ctx)
}

// GetDelivery returns one delivery.
func (b *Bus) GetDelivery(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	return b.ledger.Get(ctx, id)
}

// GetDeliveries returns deliveries newest-first, optionally for one
// subscription.
func (b *Bus) GetDeliveries(ctx context.Context, subscriptionID *uuid.UUID) ([]*models.Delivery, error) {
	return b.ledger.List(ctx, subscriptionID)
}

// GetDeliveryStats aggregates delivery counts by status and the success rate
// over the filtered set.
func (b *Bus) GetDeliveryStats(ctx context.Context, subscriptionID *uuid.UUID) (*models.DeliveryStats, error) {
	return b.ledger.Stats(ctx, subscriptionID)
}
