package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/executor"
	"github.com/wirehooks/eventbus-svc/internal/ledger"
	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/observability"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

// Scheduler decides whether and when a failed delivery is re-attempted.
// Retries are armed as one-shot timers held in an explicit registry: inserted
// on scheduling, removed when the timer fires or is cancelled. A delivery has
// at most one outstanding timer at a time, so within one delivery's lifetime
// attempts are strictly sequential.
type Scheduler struct {
	ledger        *ledger.Ledger
	subscriptions store.SubscriptionStore
	events        store.EventStore
	executor      *executor.Executor
	metrics       *observability.Metrics
	logger        *zap.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*retryTimer
	closed bool
}

type retryTimer struct {
	timer          *time.Timer
	subscriptionID uuid.UUID
}

// New creates a scheduler. metrics may be nil.
func New(
	ledger *ledger.Ledger,
	subscriptions store.SubscriptionStore,
	events store.EventStore,
	executor *executor.Executor,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		ledger:        ledger,
		subscriptions: subscriptions,
		events:        events,
		executor:      executor,
		metrics:       metrics,
		logger:        logger,
		timers:        make(map[uuid.UUID]*retryTimer),
	}
}

// Attempt performs one delivery attempt and records its outcome. On success
// the delivery is marked delivered; on failure the ledger decides between
// retrying and terminal failed, and a retrying delivery gets a one-shot timer
// armed for the policy's backoff delay. A delivery whose subscription or
// event no longer exists is terminated as failed rather than stranded.
func (s *Scheduler) Attempt(ctx context.Context, deliveryID uuid.UUID) {
	delivery, err := s.ledger.Get(ctx, deliveryID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Failed to load delivery for attempt",
				zap.String("delivery_id", deliveryID.String()),
				zap.Error(err),
			)
		}
		return
	}
	if delivery.Status.Terminal() {
		return
	}

	sub, err := s.subscriptions.Get(ctx, delivery.SubscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.terminate(ctx, delivery, "subscription no longer exists")
			return
		}
		s.logger.Error("Failed to load subscription for attempt",
			zap.String("delivery_id", deliveryID.String()),
			zap.String("subscription_id", delivery.SubscriptionID.String()),
			zap.Error(err),
		)
		return
	}

	event, err := s.events.Get(ctx, delivery.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.terminate(ctx, delivery, "event no longer exists")
			return
		}
		s.logger.Error("Failed to load event for attempt",
			zap.String("delivery_id", deliveryID.String()),
			zap.String("event_id", delivery.EventID.String()),
			zap.Error(err),
		)
		return
	}

	outcome := s.executor.Run(ctx, delivery, sub, event)
	s.metrics.RecordAttempt(ctx, outcome.LatencyMs)

	if outcome.Success {
		if err := s.ledger.MarkDelivered(ctx, delivery, outcome.Response()); err != nil {
			s.logger.Error("Failed to mark delivery as delivered",
				zap.String("delivery_id", deliveryID.String()),
				zap.Error(err),
			)
			return
		}
		s.metrics.RecordDelivered(ctx)
		s.logger.Info("Webhook delivered",
			zap.String("delivery_id", deliveryID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.Int("http_status", *outcome.StatusCode),
			zap.Int("latency_ms", outcome.LatencyMs),
		)
		return
	}

	if err := s.ledger.RecordFailure(ctx, delivery, outcome.Error, sub.RetryPolicy, outcome.Response()); err != nil {
		s.logger.Error("Failed to record delivery failure",
			zap.String("delivery_id", deliveryID.String()),
			zap.Error(err),
		)
		return
	}

	if delivery.Status == models.DeliveryRetrying {
		delay := sub.RetryPolicy.Delay(delivery.Attempts)
		s.schedule(delivery.ID, sub.ID, delay)
		s.metrics.RecordRetried(ctx)
		s.logger.Info("Webhook delivery will be retried",
			zap.String("delivery_id", deliveryID.String()),
			zap.Int("attempts", delivery.Attempts),
			zap.Duration("delay", delay),
			zap.String("last_error", outcome.Error),
		)
		return
	}

	s.metrics.RecordFailed(ctx)
	s.logger.Warn("Webhook delivery failed permanently",
		zap.String("delivery_id", deliveryID.String()),
		zap.Int("attempts", delivery.Attempts),
		zap.String("last_error", outcome.Error),
	)
}

// terminate fails a delivery whose referenced records are gone.
func (s *Scheduler) terminate(ctx context.Context, delivery *models.Delivery, reason string) {
	if err := s.ledger.Fail(ctx, delivery, reason); err != nil {
		s.logger.Error("Failed to terminate orphaned delivery",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordFailed(ctx)
	s.logger.Warn("Orphaned delivery terminated",
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("reason", reason),
	)
}

// schedule arms a one-shot retry timer, replacing any outstanding timer for
// the same delivery.
func (s *Scheduler) schedule(deliveryID, subscriptionID uuid.UUID, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if existing, ok := s.timers[deliveryID]; ok {
		existing.timer.Stop()
	}
	s.timers[deliveryID] = &retryTimer{
		subscriptionID: subscriptionID,
		timer: time.AfterFunc(delay, func() {
			s.removeTimer(deliveryID)
			s.Attempt(context.Background(), deliveryID)
		}),
	}
}

func (s *Scheduler) removeTimer(deliveryID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, deliveryID)
}

// Cancel stops the outstanding retry timer for a delivery, if any, and
// reports whether one was cancelled.
func (s *Scheduler) Cancel(deliveryID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[deliveryID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, deliveryID)
	return true
}

// CancelForSubscription stops every outstanding retry timer bound to the
// subscription, preventing dangling retries after the subscription is
// deleted. Returns the number of timers cancelled.
func (s *Scheduler) CancelForSubscription(subscriptionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for deliveryID, entry := range s.timers {
		if entry.subscriptionID == subscriptionID {
			entry.timer.Stop()
			delete(s.timers, deliveryID)
			cancelled++
		}
	}
	return cancelled
}

// Shutdown cancels all outstanding timers and refuses new ones.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for deliveryID, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, deliveryID)
	}
}

func (s *Scheduler) outstandingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
