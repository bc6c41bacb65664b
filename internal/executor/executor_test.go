package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/signer"
)

func testEvent() *models.Event {
	return &models.Event{
		ID:        uuid.New(),
		Type:      "order.created",
		Data:      map[string]interface{}{"order_id": "o-1"},
		Source:    "orders-api",
		Version:   models.DefaultSchemaVersion,
		Metadata:  map[string]string{"trace": "t-1"},
		CreatedAt: time.Now().UTC(),
	}
}

func testSubscription(url string) *models.Subscription {
	return &models.Subscription{
		ID:         uuid.New(),
		Name:       "orders",
		URL:        url,
		EventTypes: []string{"order.created"},
		TimeoutMs:  2000,
	}
}

func testDelivery(sub *models.Subscription, event *models.Event) *models.Delivery {
	return &models.Delivery{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		URL:            sub.URL,
		Status:         models.DeliveryPending,
	}
}

func TestRunSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	event := testEvent()
	sub := testSubscription(server.URL)
	sub.Secret = "topsecret"
	sub.Headers = map[string]string{"X-Custom": "yes"}

	outcome := New(zap.NewNop()).Run(context.Background(), testDelivery(sub, event), sub, event)

	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.Error)
	require.NotNil(t, outcome.StatusCode)
	assert.Equal(t, http.StatusOK, *outcome.StatusCode)
	assert.Equal(t, `{"received":true}`, outcome.Body)
	assert.Equal(t, "req-1", outcome.Headers["X-Request-Id"])

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, UserAgent, gotHeader.Get("User-Agent"))
	assert.Equal(t, "order.created", gotHeader.Get("X-Webhook-Event"))
	assert.Equal(t, "orders-api", gotHeader.Get("X-Webhook-Source"))
	assert.Equal(t, "yes", gotHeader.Get("X-Custom"))

	// The signature covers the exact bytes sent on the wire.
	wantSignature, err := signer.Sign(gotBody, "topsecret")
	require.NoError(t, err)
	assert.Equal(t, wantSignature, gotHeader.Get("X-Webhook-Signature"))

	var payload Payload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, event.ID.String(), payload.ID)
	assert.Equal(t, "order.created", payload.Type)
	assert.Equal(t, event.CreatedAt.UTC().Format(time.RFC3339), payload.Timestamp)
	assert.Equal(t, models.DefaultSchemaVersion, payload.Version)
}

func TestRunNoSignatureWithoutSecret(t *testing.T) {
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	event := testEvent()
	sub := testSubscription(server.URL)

	outcome := New(zap.NewNop()).Run(context.Background(), testDelivery(sub, event), sub, event)

	assert.True(t, outcome.Success)
	assert.Empty(t, gotHeader.Get("X-Webhook-Signature"))
}

func TestRunCustomHeadersOverrideFixed(t *testing.T) {
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	event := testEvent()
	sub := testSubscription(server.URL)
	sub.Headers = map[string]string{"User-Agent": "custom-agent/2.0"}

	New(zap.NewNop()).Run(context.Background(), testDelivery(sub, event), sub, event)

	assert.Equal(t, "custom-agent/2.0", gotHeader.Get("User-Agent"))
}

func TestRunStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	event := testEvent()
	sub := testSubscription(server.URL)

	outcome := New(zap.NewNop()).Run(context.Background(), testDelivery(sub, event), sub, event)

	assert.False(t, outcome.Success)
	assert.Equal(t, "HTTP 500: Internal Server Error", outcome.Error)
	require.NotNil(t, outcome.StatusCode)
	assert.Equal(t, http.StatusInternalServerError, *outcome.StatusCode)
	assert.Equal(t, "boom", outcome.Body)

	response := outcome.Response()
	require.NotNil(t, response)
	assert.Equal(t, http.StatusInternalServerError, response.StatusCode)
}

func TestRunTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	event := testEvent()
	sub := testSubscription(server.URL)
	sub.TimeoutMs = 50

	outcome := New(zap.NewNop()).Run(context.Background(), testDelivery(sub, event), sub, event)

	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Error)
	assert.Nil(t, outcome.StatusCode)
	assert.Nil(t, outcome.Response())
}

func TestRunNetworkFailure(t *testing.T) {
	event := testEvent()
	sub := testSubscription("http://127.0.0.1:1/unreachable")

	outcome := New(zap.NewNop()).Run(context.Background(), testDelivery(sub, event), sub, event)

	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.Error)
	assert.Nil(t, outcome.StatusCode)
}
