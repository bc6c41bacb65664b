package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/executor"
	"github.com/wirehooks/eventbus-svc/internal/ledger"
	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

type fixture struct {
	store     store.Store
	ledger    *ledger.Ledger
	scheduler *Scheduler
}

func newFixture() *fixture {
	st := store.NewMemoryStore()
	led := ledger.New(st.Deliveries(), zap.NewNop())
	sched := New(led, st.Subscriptions(), st.Events(), executor.New(zap.NewNop()), nil, zap.NewNop())
	return &fixture{store: st, ledger: led, scheduler: sched}
}

func (f *fixture) seed(t *testing.T, url string, policy models.RetryPolicy) (*models.Subscription, *models.Event, *models.Delivery) {
	t.Helper()
	ctx := context.Background()

	sub := &models.Subscription{
		ID:          uuid.New(),
		Name:        "orders",
		URL:         url,
		EventTypes:  []string{"order.created"},
		Active:      true,
		RetryPolicy: policy,
		TimeoutMs:   2000,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.Subscriptions().Create(ctx, sub))

	event := &models.Event{
		ID:        uuid.New(),
		Type:      "order.created",
		Source:    "orders-api",
		Version:   models.DefaultSchemaVersion,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.Events().Append(ctx, event))

	delivery, err := f.ledger.Create(ctx, sub, event)
	require.NoError(t, err)
	return sub, event, delivery
}

func (f *fixture) delivery(t *testing.T, d *models.Delivery) *models.Delivery {
	t.Helper()
	loaded, err := f.store.Deliveries().Get(context.Background(), d.ID)
	require.NoError(t, err)
	return loaded
}

func TestAttemptSuccessFirstTry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture()
	_, _, delivery := f.seed(t, server.URL, models.RetryPolicy{MaxRetries: 2, RetryDelayMs: 100, BackoffMultiplier: 2})

	f.scheduler.Attempt(context.Background(), delivery.ID)

	stored := f.delivery(t, delivery)
	assert.Equal(t, models.DeliveryDelivered, stored.Status)
	// The counter tracks failed tries only.
	assert.Equal(t, 0, stored.Attempts)
	require.NotNil(t, stored.Response)
	assert.Equal(t, http.StatusOK, stored.Response.StatusCode)
	assert.Equal(t, 0, f.scheduler.outstandingTimers())
}

func TestAttemptRetriesUntilExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFixture()
	_, _, delivery := f.seed(t, server.URL, models.RetryPolicy{MaxRetries: 2, RetryDelayMs: 100, BackoffMultiplier: 2})

	f.scheduler.Attempt(context.Background(), delivery.ID)

	require.Eventually(t, func() bool {
		return f.delivery(t, delivery).Status == models.DeliveryFailed
	}, 3*time.Second, 20*time.Millisecond)

	stored := f.delivery(t, delivery)
	assert.Equal(t, 2, stored.Attempts)
	assert.NotNil(t, stored.FailedAt)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "HTTP 500: Internal Server Error", *stored.LastError)
	assert.Equal(t, 0, f.scheduler.outstandingTimers())

	// No further retries after the terminal state.
	total := calls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, total, calls.Load())
	assert.EqualValues(t, 2, total)
}

func TestAttemptRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture()
	_, _, delivery := f.seed(t, server.URL, models.RetryPolicy{MaxRetries: 3, RetryDelayMs: 100, BackoffMultiplier: 2})

	f.scheduler.Attempt(context.Background(), delivery.ID)

	require.Eventually(t, func() bool {
		return f.delivery(t, delivery).Status == models.DeliveryDelivered
	}, 3*time.Second, 20*time.Millisecond)

	stored := f.delivery(t, delivery)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.DeliveredAt)
}

func TestAttemptMissingSubscriptionTerminates(t *testing.T) {
	f := newFixture()
	_, _, delivery := f.seed(t, "http://127.0.0.1:1/unreachable", models.RetryPolicy{MaxRetries: 3, RetryDelayMs: 100, BackoffMultiplier: 2})

	removed, err := f.store.Subscriptions().Delete(context.Background(), delivery.SubscriptionID)
	require.NoError(t, err)
	require.True(t, removed)

	f.scheduler.Attempt(context.Background(), delivery.ID)

	stored := f.delivery(t, delivery)
	assert.Equal(t, models.DeliveryFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "subscription no longer exists", *stored.LastError)
	assert.NotNil(t, stored.FailedAt)
}

func TestCancelForSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFixture()
	// Long base delay keeps the timer outstanding while we cancel it.
	sub, _, delivery := f.seed(t, server.URL, models.RetryPolicy{MaxRetries: 5, RetryDelayMs: 60000, BackoffMultiplier: 2})

	f.scheduler.Attempt(context.Background(), delivery.ID)

	require.Equal(t, models.DeliveryRetrying, f.delivery(t, delivery).Status)
	require.Equal(t, 1, f.scheduler.outstandingTimers())

	cancelled := f.scheduler.CancelForSubscription(sub.ID)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 0, f.scheduler.outstandingTimers())
}

func TestShutdownCancelsTimers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFixture()
	_, _, delivery := f.seed(t, server.URL, models.RetryPolicy{MaxRetries: 5, RetryDelayMs: 60000, BackoffMultiplier: 2})

	f.scheduler.Attempt(context.Background(), delivery.ID)
	require.Equal(t, 1, f.scheduler.outstandingTimers())

	f.scheduler.Shutdown()
	assert.Equal(t, 0, f.scheduler.outstandingTimers())
	assert.False(t, f.scheduler.Cancel(delivery.ID))
}
