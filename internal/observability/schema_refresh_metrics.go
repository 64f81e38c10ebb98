package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Refresh outcomes.
const (
	RefreshFailed    = "failed"
	RefreshUnchanged = "unchanged"
	RefreshSwapped   = "swapped"
)

// SchemaRefreshMetrics tracks upstream introspection and the state of the active snapshot.
type SchemaRefreshMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram

	lastSwapUnix atomic.Int64
	listFields   atomic.Int64
	degraded     atomic.Bool
}

// InitSchemaRefreshMetrics registers the refresh instruments and the snapshot gauges.
func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	meter := otel.Meter(meterName)
	m := &SchemaRefreshMetrics{}
	m.degraded.Store(true)

	var err error
	if m.attempts, err = meter.Int64Counter(
		"schema.refresh.attempts.total",
		metric.WithDescription("Upstream introspection attempts by trigger and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram(
		"schema.refresh.duration",
		metric.WithDescription("Duration of upstream introspection in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh duration histogram: %w", err)
	}

	lastSwap, err := meter.Int64ObservableGauge(
		"schema.snapshot.last_swap_unix",
		metric.WithDescription("Unix time the active schema snapshot was installed"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot swap gauge: %w", err)
	}
	listFields, err := meter.Int64ObservableGauge(
		"schema.snapshot.list_fields",
		metric.WithDescription("List fields exposed by the active schema snapshot"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot list field gauge: %w", err)
	}
	degraded, err := meter.Int64ObservableGauge(
		"schema.snapshot.degraded",
		metric.WithDescription("1 while no usable schema has been introspected"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot degraded gauge: %w", err)
	}

	if _, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if ts := m.lastSwapUnix.Load(); ts > 0 {
			o.ObserveInt64(lastSwap, ts)
		}
		o.ObserveInt64(listFields, m.listFields.Load())
		var flag int64
		if m.degraded.Load() {
			flag = 1
		}
		o.ObserveInt64(degraded, flag)
		return nil
	}, lastSwap, listFields, degraded); err != nil {
		return nil, fmt.Errorf("failed to register snapshot gauge callback: %w", err)
	}

	logger.Info("schema refresh metrics initialized")
	return m, nil
}

// RecordRefresh records one introspection attempt. outcome is one of the Refresh* constants.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, trigger, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordSnapshot publishes the state of the snapshot that is now active.
func (m *SchemaRefreshMetrics) RecordSnapshot(listFields int, degraded bool) {
	if m == nil {
		return
	}
	m.listFields.Store(int64(listFields))
	m.degraded.Store(degraded)
	if !degraded {
		m.lastSwapUnix.Store(time.Now().Unix())
	}
}
