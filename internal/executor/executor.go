package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/models"
	"github.com/wirehooks/eventbus-svc/internal/signer"
)

// UserAgent identifies the engine on every outbound request.
const UserAgent = "Wirehooks-Webhooks/1.0"

// maxResponseBodySize caps how much of the endpoint's response body is
// captured on the delivery record.
const maxResponseBodySize = 64 * 1024

// Payload is the wire format POSTed to subscription endpoints. Field order
// matters: the signature is computed over these exact serialized bytes.
type Payload struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Outcome is the classified result of a single delivery attempt.
type Outcome struct {
	Success    bool
	StatusCode *int
	Headers    map[string]string
	Body       string
	Error      string
	LatencyMs  int
}

// Response converts a captured HTTP answer into the ledger's response shape.
// Returns nil when the attempt never produced an HTTP response.
func (o *Outcome) Response() *models.DeliveryResponse {
	if o.StatusCode == nil {
		return nil
	}
	return &models.DeliveryResponse{
		StatusCode: *o.StatusCode,
		Headers:    o.Headers,
		Body:       o.Body,
	}
}

// Executor performs exactly one HTTP attempt per Run call and reports the
// result. Retry logic lives elsewhere.
type Executor struct {
	logger *zap.Logger
}

// New creates an executor.
func New(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Run builds the wire payload and headers for the event, POSTs it to the
// subscription's URL bounded by the subscription's timeout, and classifies
// the response. Success is any 2xx status; any other status, transport error,
// or timeout is a failure outcome, never an error return.
func (e *Executor) Run(ctx context.Context, delivery *models.Delivery, sub *models.Subscription, event *models.Event) *Outcome {
	outcome := &Outcome{}

	payload := Payload{
		ID:        event.ID.String(),
		Type:      event.Type,
		Data:      event.Data,
		Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
		Source:    event.Source,
		Version:   event.Version,
		Metadata:  event.Metadata,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to marshal payload: %v", err)
		return outcome
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to create HTTP request: %v", err)
		return outcome
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Webhook-Event", event.Type)
	req.Header.Set("X-Webhook-Source", event.Source)

	// Custom headers may override any of the fixed ones.
	for key, value := range sub.Headers {
		req.Header.Set(key, value)
	}

	if sub.Secret != "" {
		signature, err := signer.Sign(payloadBytes, sub.Secret)
		if err != nil {
			outcome.Error = fmt.Sprintf("failed to sign payload: %v", err)
			return outcome
		}
		req.Header.Set("X-Webhook-Signature", signature)
	}

	client := &http.Client{Timeout: sub.Timeout()}

	startTime := time.Now()
	resp, err := client.Do(req)
	outcome.LatencyMs = int(time.Since(startTime).Milliseconds())
	if err != nil {
		// Network failure or timeout. Not a distinct error class.
		outcome.Error = fmt.Sprintf("request failed: %v", err)
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = &resp.StatusCode
	outcome.Headers = flattenHeaders(resp.Header)

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if readErr != nil {
		e.logger.Warn("Failed to read response body",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("url", delivery.URL),
			zap.Error(readErr),
		)
	}
	outcome.Body = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Success = true
		return outcome
	}

	outcome.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return outcome
}

func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key := range header {
		flat[key] = header.Get(key)
	}
	return flat
}
