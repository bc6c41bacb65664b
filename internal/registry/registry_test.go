package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/notify"
	"github.com/wirehooks/eventbus-svc/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, <-chan notify.Notification) {
	t.Helper()
	broker := notify.NewChannelBroker(zap.NewNop())
	t.Cleanup(broker.Close)
	notifications, cancel := broker.Subscribe(16)
	t.Cleanup(cancel)
	reg := New(store.NewMemoryStore().Subscriptions(), broker, zap.NewNop())
	return reg, notifications
}

func boolPtr(b bool) *bool { return &b }

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func TestCreateAppliesDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sub, err := reg.Create(context.Background(), CreateInput{
		Name:       "orders",
		URL:        "https://example.com/hook",
		EventTypes: []string{"order.created"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, sub.ID)
	assert.True(t, sub.Active)
	assert.Equal(t, models.DefaultRetryPolicy(), sub.RetryPolicy)
	assert.Equal(t, models.DefaultTimeoutMs, sub.TimeoutMs)
	assert.False(t, sub.CreatedAt.IsZero())
	assert.Equal(t, sub.CreatedAt, sub.UpdatedAt)
}

func TestCreateHonorsExplicitValues(t *testing.T) {
	reg, _ := newTestRegistry(t)

	policy := models.RetryPolicy{MaxRetries: 5, RetryDelayMs: 500, BackoffMultiplier: 3}
	sub, err := reg.Create(context.Background(), CreateInput{
		Name:        "audit",
		URL:         "https://example.com/audit",
		EventTypes:  []string{"*"},
		Active:      boolPtr(false),
		RetryPolicy: &policy,
		TimeoutMs:   intPtr(5000),
	})
	require.NoError(t, err)

	assert.False(t, sub.Active)
	assert.Equal(t, policy, sub.RetryPolicy)
	assert.Equal(t, 5000, sub.TimeoutMs)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	reg, _ := newTestRegistry(t)

	tests := []struct {
		name  string
		input CreateInput
	}{
		{
			name:  "missing url",
			input: CreateInput{Name: "x", EventTypes: []string{"a"}},
		},
		{
			name:  "missing event types",
			input: CreateInput{Name: "x", URL: "https://example.com"},
		},
		{
			name:  "url not absolute",
			input: CreateInput{Name: "x", URL: "not-a-url", EventTypes: []string{"a"}},
		},
		{
			name: "max retries out of range",
			input: CreateInput{
				Name:        "x",
				URL:         "https://example.com",
				EventTypes:  []string{"a"},
				RetryPolicy: &models.RetryPolicy{MaxRetries: 11, RetryDelayMs: 1000, BackoffMultiplier: 2},
			},
		},
		{
			name: "timeout too small",
			input: CreateInput{
				Name:       "x",
				URL:        "https://example.com",
				EventTypes: []string{"a"},
				TimeoutMs:  intPtr(100),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(context.Background(), tt.input)
			assert.Error(t, err)
		})
	}
}

func TestUpdateIsPartial(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sub, err := reg.Create(context.Background(), CreateInput{
		Name:       "orders",
		URL:        "https://example.com/hook",
		EventTypes: []string{"order.created"},
	})
	require.NoError(t, err)
	created := sub.CreatedAt

	time.Sleep(5 * time.Millisecond)
	updated, err := reg.Update(context.Background(), sub.ID, UpdateInput{
		Name:   strPtr("orders-v2"),
		Active: boolPtr(false),
	})
	require.NoError(t, err)

	assert.Equal(t, "orders-v2", updated.Name)
	assert.False(t, updated.Active)
	// Untouched fields survive the patch.
	assert.Equal(t, "https://example.com/hook", updated.URL)
	assert.Equal(t, []string{"order.created"}, updated.EventTypes)
	assert.Equal(t, sub.ID, updated.ID)
	assert.Equal(t, created, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created))
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sub, err := reg.Create(context.Background(), CreateInput{
		Name:       "orders",
		URL:        "https://example.com/hook",
		EventTypes: []string{"order.created"},
	})
	require.NoError(t, err)

	_, err = reg.Update(context.Background(), sub.ID, UpdateInput{URL: strPtr("nope")})
	assert.Error(t, err)

	// Original record is untouched.
	got, err := reg.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", got.URL)
}

func TestUpdateMissingSubscription(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Update(context.Background(), uuid.New(), UpdateInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sub, err := reg.Create(context.Background(), CreateInput{
		Name:       "orders",
		URL:        "https://example.com/hook",
		EventTypes: []string{"order.created"},
	})
	require.NoError(t, err)

	removed, err := reg.Delete(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = reg.Get(context.Background(), sub.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	removed, err = reg.Delete(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMutationsPublishNotifications(t *testing.T) {
	reg, notifications := newTestRegistry(t)

	sub, err := reg.Create(context.Background(), CreateInput{
		Name:       "orders",
		URL:        "https://example.com/hook",
		EventTypes: []string{"order.created"},
	})
	require.NoError(t, err)

	_, err = reg.Update(context.Background(), sub.ID, UpdateInput{Name: strPtr("orders-v2")})
	require.NoError(t, err)

	removed, err := reg.Delete(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, removed)

	wantKinds := []string{
		notify.KindSubscriptionCreated,
		notify.KindSubscriptionUpdated,
		notify.KindSubscriptionDeleted,
	}
	for _, kind := range wantKinds {
		select {
		case n := <-notifications:
			assert.Equal(t, kind, n.Kind)
			if kind == notify.KindSubscriptionDeleted {
				assert.Equal(t, sub.ID.String(), n.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s notification", kind)
		}
	}

	// A delete of a missing subscription publishes nothing.
	_, err = reg.Delete(context.Background(), uuid.New())
	require.NoError(t, err)
	select {
	case n := <-notifications:
		t.Fatalf("unexpected notification %s", n.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListActive(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create(context.Background(), CreateInput{
		Name:       "on",
		URL:        "https://example.com/on",
		EventTypes: []string{"a"},
	})
	require.NoError(t, err)
	_, err = reg.Create(context.Background(), CreateInput{
		Name:       "off",
		URL:        "https://example.com/off",
		EventTypes: []string{"a"},
		Active:     boolPtr(false),
	})
	require.NoError(t, err)

	all, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := reg.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "on", active[0].Name)
}
