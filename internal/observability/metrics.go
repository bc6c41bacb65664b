package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the engine's delivery metrics. A nil *Metrics is a valid
// no-op receiver so the core can run without an exporter wired in.
type Metrics struct {
	meter metric.Meter

	EventsEmitted     metric.Int64Counter
	DeliveriesCreated metric.Int64Counter
	AttemptsTotal     metric.Int64Counter
	Delivered         metric.Int64Counter
	Failed            metric.Int64Counter
	Retried           metric.Int64Counter
	AttemptDuration   metric.Float64Histogram
}

// NewMetrics creates the metric instruments and a Prometheus exposition
// handler to mount on /metrics.
func NewMetrics() (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("eventbus-svc")

	m := &Metrics{meter: meter}

	if m.EventsEmitted, err = meter.Int64Counter("eventbus_events_emitted_total",
		metric.WithDescription("Events accepted by the bus")); err != nil {
		return nil, nil, err
	}
	if m.DeliveriesCreated, err = meter.Int64Counter("eventbus_deliveries_created_total",
		metric.WithDescription("Deliveries created by subscription fan-out")); err != nil {
		return nil, nil, err
	}
	if m.AttemptsTotal, err = meter.Int64Counter("eventbus_delivery_attempts_total",
		metric.WithDescription("Delivery attempts performed")); err != nil {
		return nil, nil, err
	}
	if m.Delivered, err = meter.Int64Counter("eventbus_deliveries_delivered_total",
		metric.WithDescription("Deliveries that reached their endpoint")); err != nil {
		return nil, nil, err
	}
	if m.Failed, err = meter.Int64Counter("eventbus_deliveries_failed_total",
		metric.WithDescription("Deliveries that exhausted their retries")); err != nil {
		return nil, nil, err
	}
	if m.Retried, err = meter.Int64Counter("eventbus_deliveries_retried_total",
		metric.WithDescription("Attempts that were re-scheduled")); err != nil {
		return nil, nil, err
	}
	if m.AttemptDuration, err = meter.Float64Histogram("eventbus_attempt_duration_ms",
		metric.WithDescription("Latency of delivery attempts in milliseconds")); err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordEmit counts an accepted event and its fan-out size.
func (m *Metrics) RecordEmit(ctx context.Context, deliveries int) {
	if m == nil {
		return
	}
	m.EventsEmitted.Add(ctx, 1)
	m.DeliveriesCreated.Add(ctx, int64(deliveries))
}

// RecordAttempt counts one attempt and its latency.
func (m *Metrics) RecordAttempt(ctx context.Context, latencyMs int) {
	if m == nil {
		return
	}
	m.AttemptsTotal.Add(ctx, 1)
	m.AttemptDuration.Record(ctx, float64(latencyMs))
}

// RecordDelivered counts a delivery reaching its terminal delivered state.
func (m *Metrics) RecordDelivered(ctx context.Context) {
	if m == nil {
		return
	}
	m.Delivered.Add(ctx, 1)
}

// RecordFailed counts a delivery reaching its terminal failed state.
func (m *Metrics) RecordFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.Failed.Add(ctx, 1)
}

// RecordRetried counts an attempt that armed a retry timer.
func (m *Metrics) RecordRetried(ctx context.Context) {
	if m == nil {
		return
	}
	m.Retried.Add(ctx, 1)
}
