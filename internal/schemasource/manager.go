// Package schemasource introspects the upstream GraphQL API and keeps the current
// schema model fresh. While the upstream is unreachable it serves an empty model,
// which callers render in degraded mode.
package schemasource

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"graphql-admin/internal/gqldoc"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/observability"
	"graphql-admin/internal/schemafilter"
	"graphql-admin/internal/schemamodel"
	"graphql-admin/internal/transport"
)

// Introspector posts the introspection query upstream.
type Introspector interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Snapshot is an immutable view of the introspected schema.
type Snapshot struct {
	Model       *schemamodel.Model
	Fingerprint string
	BuiltAt     time.Time
	// Degraded is set while no introspection has succeeded.
	Degraded bool
}

// Config controls introspection and refresh behavior.
type Config struct {
	Client      Introspector
	Logger      *logging.Logger
	Metrics     *observability.SchemaRefreshMetrics
	MinInterval time.Duration
	MaxInterval time.Duration
	// Filter hides list fields and columns before the snapshot is fingerprinted.
	Filter schemafilter.Config
	// OnChange is called after a snapshot with a new fingerprint becomes active.
	OnChange func(*Snapshot)
}

// Manager maintains and refreshes schema snapshots.
type Manager struct {
	client      Introspector
	logger      *logging.Logger
	metrics     *observability.SchemaRefreshMetrics
	minInterval time.Duration
	maxInterval time.Duration
	filter      schemafilter.Config
	onChange    func(*Snapshot)
	active      atomic.Pointer[Snapshot]
	refreshMu   sync.Mutex
	wg          sync.WaitGroup
}

// NewManager introspects once and returns a manager. A failed startup introspection
// is logged and leaves a degraded snapshot in place; it is not an error.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("schema source requires an upstream client")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	m := &Manager{
		client:      cfg.Client,
		logger:      cfg.Logger.WithFields(slog.String("component", "schema_source")),
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
		filter:      cfg.Filter,
		onChange:    cfg.OnChange,
	}
	m.active.Store(degradedSnapshot())

	if _, err := m.refresh(ctx, "startup"); err != nil {
		m.logger.Warn("upstream schema unavailable, serving degraded metadata",
			slog.String("error", err.Error()),
		)
	}
	return m, nil
}

func degradedSnapshot() *Snapshot {
	return &Snapshot{Model: schemamodel.Empty(), BuiltAt: time.Now(), Degraded: true}
}

// Current returns the active snapshot. It is never nil.
func (m *Manager) Current() *Snapshot {
	return m.active.Load()
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// RefreshNow introspects immediately and swaps the snapshot when the schema changed.
func (m *Manager) RefreshNow(ctx context.Context) error {
	_, err := m.refresh(ctx, "manual")
	return err
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			changed, err := m.refresh(ctx, "poll")
			switch {
			case err != nil:
				m.logger.Warn("schema refresh failed", slog.String("error", err.Error()))
				interval = m.minInterval
			case changed:
				interval = m.minInterval
			default:
				interval = nextInterval(interval, m.minInterval, m.maxInterval)
			}
			timer.Reset(interval)
		}
	}
}

// refresh introspects and activates the result if its fingerprint differs from the
// active one. A failure keeps the active snapshot.
func (m *Manager) refresh(ctx context.Context, trigger string) (bool, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	snapshot, err := m.introspect(ctx)
	if err != nil {
		m.metrics.RecordRefresh(context.Background(), trigger, observability.RefreshFailed, time.Since(start))
		return false, err
	}

	current := m.Current()
	if current != nil && !current.Degraded && current.Fingerprint == snapshot.Fingerprint {
		m.metrics.RecordRefresh(context.Background(), trigger, observability.RefreshUnchanged, time.Since(start))
		return false, nil
	}

	m.active.Store(snapshot)
	m.metrics.RecordRefresh(context.Background(), trigger, observability.RefreshSwapped, time.Since(start))
	m.metrics.RecordSnapshot(len(snapshot.Model.ListFieldNames()), false)
	m.logger.Info("schema snapshot activated",
		slog.String("trigger", trigger),
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.Int("list_fields", len(snapshot.Model.ListFieldNames())),
		slog.Duration("duration", time.Since(start)),
	)
	if m.onChange != nil {
		m.onChange(snapshot)
	}
	return true, nil
}

func (m *Manager) introspect(ctx context.Context) (*Snapshot, error) {
	tracer := otel.Tracer("graphql-admin/schemasource")
	ctx, span := tracer.Start(ctx, "schemasource.introspect")
	defer span.End()

	resp, err := m.client.Do(ctx, transport.Request{
		Query:         schemamodel.IntrospectionQuery,
		OperationName: "IntrospectionQuery",
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("introspection failed: %w", err)
	}

	model := schemamodel.Parse(resp.Body)
	if model.Empty() {
		err := fmt.Errorf("introspection returned no usable schema")
		span.RecordError(err)
		return nil, err
	}

	model = schemafilter.Apply(model, m.filter)
	fingerprint := Fingerprint(model)
	span.SetAttributes(
		attribute.String("schema.fingerprint", fingerprint),
		attribute.Int("schema.types", len(model.TypeNames())),
	)
	return &Snapshot{Model: model, Fingerprint: fingerprint, BuiltAt: time.Now()}, nil
}

// Fingerprint hashes the parts of a model that affect list metadata: the query root
// and every type's kind and field signatures. Types are taken in name order since
// servers do not agree on the order of __schema.types; field order is kept.
func Fingerprint(model *schemamodel.Model) string {
	names := model.TypeNames()
	slices.Sort(names)
	parts := []string{"query=" + model.QueryType}
	for _, name := range names {
		typ, ok := model.Type(name)
		if !ok {
			continue
		}
		var b strings.Builder
		b.WriteString(string(typ.Kind))
		b.WriteString(" ")
		b.WriteString(typ.Name)
		for _, field := range typ.Fields {
			b.WriteString(" ")
			b.WriteString(field.Name)
			b.WriteString(":")
			writeTypeRef(&b, field.Type)
		}
		parts = append(parts, b.String())
	}
	return gqldoc.Fingerprint(parts...)
}

func writeTypeRef(b *strings.Builder, ref schemamodel.TypeRef) {
	switch ref.Kind {
	case schemamodel.KindNonNull:
		if ref.OfType != nil {
			writeTypeRef(b, *ref.OfType)
		}
		b.WriteString("!")
	case schemamodel.KindList:
		b.WriteString("[")
		if ref.OfType != nil {
			writeTypeRef(b, *ref.OfType)
		}
		b.WriteString("]")
	default:
		b.WriteString(ref.Name)
	}
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}
