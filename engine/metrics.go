package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds operational metrics using OTEL semantic conventions
type Metrics struct {
	actionsCreated   metric.Int64Counter
	decisions        metric.Int64Counter
	dispatches       metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	actionsExpired   metric.Int64Counter
}

// NewMetrics creates engine metrics
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("arbiter.engine")

	actionsCreated, err := meter.Int64Counter(
		"arbiter.actions.created",
		metric.WithDescription("Number of actions created, by initial status"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"arbiter.actions.decisions",
		metric.WithDescription("Number of human decisions on pending actions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter(
		"arbiter.actions.dispatched",
		metric.WithDescription("Number of dispatch attempts reaching a terminal status"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"arbiter.dispatch.duration",
		metric.WithDescription("Duration of effector dispatch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	actionsExpired, err := meter.Int64Counter(
		"arbiter.actions.expired",
		metric.WithDescription("Number of pending actions expired by the sweeper"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		actionsCreated:   actionsCreated,
		decisions:        decisions,
		dispatches:       dispatches,
		dispatchDuration: dispatchDuration,
		actionsExpired:   actionsExpired,
	}, nil
}

// RecordCreated records an action creation with its initial status
func (m *Metrics) RecordCreated(ctx context.Context, status string) {
	m.actionsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordDecision records a human approve/reject
func (m *Metrics) RecordDecision(ctx context.Context, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordDispatch records a dispatch outcome and its duration
func (m *Metrics) RecordDispatch(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordExpired records a sweeper expiry
func (m *Metrics) RecordExpired(ctx context.Context) {
	m.actionsExpired.Add(ctx, 1)
}
