package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "graphql-admin"

// ListFetchMetrics holds custom metrics for list view fetches.
// A nil *ListFetchMetrics records nothing.
type ListFetchMetrics struct {
	fetchDuration metric.Float64Histogram
	fetchCounter  metric.Int64Counter
	errorCounter  metric.Int64Counter
	staleCounter  metric.Int64Counter
	activeFetches metric.Int64UpDownCounter
	rowsCount     metric.Int64Histogram
	queryDepth    metric.Int64Histogram
	activeViews   metric.Int64UpDownCounter
}

// InitListFetchMetrics initializes list fetch metrics
func InitListFetchMetrics() (*ListFetchMetrics, error) {
	meter := otel.Meter(meterName)

	fetchDuration, err := meter.Float64Histogram(
		"listview.fetch.duration",
		metric.WithDescription("Duration of upstream list fetches in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch duration histogram: %w", err)
	}

	fetchCounter, err := meter.Int64Counter(
		"listview.fetches.total",
		metric.WithDescription("Total number of upstream list fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"listview.fetch.errors.total",
		metric.WithDescription("Total number of failed list fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch error counter: %w", err)
	}

	staleCounter, err := meter.Int64Counter(
		"listview.fetch.stale.total",
		metric.WithDescription("Total number of fetch results discarded because a newer fetch was issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stale fetch counter: %w", err)
	}

	activeFetches, err := meter.Int64UpDownCounter(
		"listview.fetches.active",
		metric.WithDescription("Number of list fetches in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active fetches counter: %w", err)
	}

	rowsCount, err := meter.Int64Histogram(
		"listview.fetch.rows",
		metric.WithDescription("Number of rows returned by list fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows histogram: %w", err)
	}

	queryDepth, err := meter.Int64Histogram(
		"listview.query.depth",
		metric.WithDescription("Selection depth of compiled list queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}

	activeViews, err := meter.Int64UpDownCounter(
		"listview.views.active",
		metric.WithDescription("Number of open list views"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active views counter: %w", err)
	}

	return &ListFetchMetrics{
		fetchDuration: fetchDuration,
		fetchCounter:  fetchCounter,
		errorCounter:  errorCounter,
		staleCounter:  staleCounter,
		activeFetches: activeFetches,
		rowsCount:     rowsCount,
		queryDepth:    queryDepth,
		activeViews:   activeViews,
	}, nil
}

// FetchStarted marks a fetch as in flight.
func (m *ListFetchMetrics) FetchStarted(ctx context.Context, listField string, depth int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("list_field", listField))
	m.activeFetches.Add(ctx, 1, attrs)
	if depth > 0 {
		m.queryDepth.Record(ctx, int64(depth), attrs)
	}
}

// FetchFinished records the outcome of a fetch. Stale results are counted separately
// and do not contribute rows.
func (m *ListFetchMetrics) FetchFinished(ctx context.Context, listField string, duration time.Duration, rows int, err error, stale bool) {
	if m == nil {
		return
	}
	fieldAttr := attribute.String("list_field", listField)
	m.activeFetches.Add(ctx, -1, metric.WithAttributes(fieldAttr))

	attrs := []attribute.KeyValue{
		fieldAttr,
		attribute.Bool("error", err != nil),
		attribute.Bool("stale", stale),
	}
	m.fetchCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	switch {
	case stale:
		m.staleCounter.Add(ctx, 1, metric.WithAttributes(fieldAttr))
	case err != nil:
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(fieldAttr))
	default:
		m.rowsCount.Record(ctx, int64(rows), metric.WithAttributes(fieldAttr))
	}
}

// ViewOpened increments the open view gauge.
func (m *ListFetchMetrics) ViewOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeViews.Add(ctx, 1)
}

// ViewClosed decrements the open view gauge.
func (m *ListFetchMetrics) ViewClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeViews.Add(ctx, -1)
}
