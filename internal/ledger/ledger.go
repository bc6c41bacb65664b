package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// Ledger owns the delivery state machine. Deliveries start pending, end in
// delivered or failed, and pass through retrying while attempts remain.
type Ledger struct {
	deliveries store.DeliveryStore
	logger     *zap.Logger
}

// New creates a ledger over the given delivery store.
func New(deliveries store.DeliveryStore, logger *zap.Logger) *Ledger {
	return &Ledger{deliveries: deliveries, logger: logger}
}

// Create records a new pending delivery for the (event, subscription) pair.
// The target URL and max attempts are copied from the subscription so later
// subscription edits do not affect this delivery.
func (l *Ledger) Create(ctx context.Context, sub *models.Subscription, event *models.Event) (*models.Delivery, error) {
	now := time.Now().UTC()
	delivery := &models.Delivery{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		URL:            sub.URL,
		Status:         models.DeliveryPending,
		Attempts:       0,
		MaxAttempts:    sub.RetryPolicy.MaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.deliveries.Create(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}
	return delivery, nil
}

// MarkDelivered transitions the delivery to its terminal delivered state and
// stores the captured response.
func (l *Ledger) MarkDelivered(ctx context.Context, delivery *models.Delivery, response *models.DeliveryResponse) error {
	now := time.Now().UTC()
	delivery.Status = models.DeliveryDelivered
	delivery.DeliveredAt = &now
	delivery.Response = response
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = now

	if err := l.deliveries.Update(ctx, delivery); err != nil {
		return fmt.Errorf("failed to mark delivery as delivered: %w", err)
	}
	return nil
}

// RecordFailure increments the attempt counter and decides the next state:
// retrying with a computed NextRetryAt while attempts remain, terminal failed
// once they are exhausted. Re-scheduling the retry is the scheduler's job.
func (l *Ledger) RecordFailure(ctx context.Context, delivery *models.Delivery, errorMessage string, policy models.RetryPolicy, response *models.DeliveryResponse) error {
	now := time.Now().UTC()
	delivery.Attempts++
	delivery.LastError = &errorMessage
	delivery.Response = response
	delivery.UpdatedAt = now

	if delivery.Attempts < delivery.MaxAttempts {
		nextRetryAt := now.Add(policy.Delay(delivery.Attempts))
		delivery.Status = models.DeliveryRetrying
		delivery.NextRetryAt = &nextRetryAt
	} else {
		delivery.Status = models.DeliveryFailed
		delivery.FailedAt = &now
		delivery.NextRetryAt = nil
	}

	if err := l.deliveries.Update(ctx, delivery); err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

// Fail terminates a delivery that can no longer be attempted, regardless of
// attempts remaining. Used when a referenced subscription or event is gone.
func (l *Ledger) Fail(ctx context.Context, delivery *models.Delivery, errorMessage string) error {
	now := time.Now().UTC()
	delivery.Status = models.DeliveryFailed
	delivery.LastError = &errorMessage
	delivery.FailedAt = &now
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = now

	if err := l.deliveries.Update(ctx, delivery); err != nil {
		return fmt.Errorf("failed to terminate delivery: %w", err)
	}
	return nil
}

// Get returns one delivery by ID.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	return l.deliveries.Get(ctx, id)
}

// List returns deliveries newest-first, optionally for one subscription.
func (l *Ledger) List(ctx context.Context, subscriptionID *uuid.UUID) ([]*models.Delivery, error) {
	return l.deliveries.List(ctx, subscriptionID)
}

// Stats aggregates delivery counts by status over the filtered set.
func (l *Ledger) Stats(ctx context.Context, subscriptionID *uuid.UUID) (*models.DeliveryStats, error) {
	deliveries, err := l.deliveries.List(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for stats: %w", err)
	}

	stats := &models.DeliveryStats{Total: len(deliveries)}
	for _, delivery := range deliveries {
		switch delivery.Status {
		case models.DeliveryPending:
			stats.Pending++
		case models.DeliveryDelivered:
			stats.Delivered++
		case models.DeliveryFailed:
			stats.Failed++
		case models.DeliveryRetrying:
			stats.Retrying++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Delivered) / float64(stats.Total) * 100
	}
	return stats, nil
}
