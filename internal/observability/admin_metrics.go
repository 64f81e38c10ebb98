package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AdminMetrics counts access to administrative endpoints.
// A nil *AdminMetrics records nothing.
type AdminMetrics struct {
	adminEndpointAccess  metric.Int64Counter
	unauthorizedAttempts metric.Int64Counter
}

// InitAdminMetrics initializes admin endpoint metrics.
func InitAdminMetrics() (*AdminMetrics, error) {
	meter := otel.Meter(meterName)

	adminEndpointAccess, err := meter.Int64Counter(
		"security.admin.access.total",
		metric.WithDescription("Total number of admin endpoint access attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin endpoint access counter: %w", err)
	}

	unauthorizedAttempts, err := meter.Int64Counter(
		"security.unauthorized.attempts.total",
		metric.WithDescription("Total number of rejected admin requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create unauthorized attempts counter: %w", err)
	}

	return &AdminMetrics{
		adminEndpointAccess:  adminEndpointAccess,
		unauthorizedAttempts: unauthorizedAttempts,
	}, nil
}

// RecordAdminEndpointAccess records one request to an admin endpoint.
func (m *AdminMetrics) RecordAdminEndpointAccess(ctx context.Context, path string, authenticated bool) {
	if m == nil {
		return
	}
	m.adminEndpointAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.Bool("authenticated", authenticated),
	))
}

// RecordUnauthorizedAttempt records a rejected admin request.
func (m *AdminMetrics) RecordUnauthorizedAttempt(ctx context.Context, path, reason string) {
	if m == nil {
		return
	}
	m.unauthorizedAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("reason", reason),
	))
}
