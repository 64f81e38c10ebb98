// Package listview drives one list view: it turns UI actions into compiled list
// queries, runs them through an Executor and reconciles results into render-ready state.
package listview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"graphql-admin/internal/entitymeta"
	"graphql-admin/internal/filter"
	"graphql-admin/internal/gqldoc"
	"graphql-admin/internal/labels"
	"graphql-admin/internal/listquery"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/naming"
	"graphql-admin/internal/observability"
	"graphql-admin/internal/renderers"
	"graphql-admin/internal/transport"
)

// Status is the fetch state of a view.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 10

// PageSizeOptions are the page sizes a view accepts.
var PageSizeOptions = []int{5, 10, 25, 50}

// ErrClosed is returned by actions on a closed view.
var ErrClosed = errors.New("list view is closed")

// ErrUnknownColumn is returned when a filter names a column the entity does not have.
var ErrUnknownColumn = errors.New("unknown column")

// Executor runs a compiled list query.
type Executor interface {
	Execute(ctx context.Context, q listquery.Query) (transport.Result, error)
}

// Config configures a Controller.
type Config struct {
	ListField string
	Metadata  *entitymeta.Metadata
	Executor  Executor
	Labels    *labels.Resolver
	Renderers *renderers.Registry
	Namer     *naming.Namer
	Metrics   *observability.ListFetchMetrics
	Logger    *logging.Logger
	PageSize  int
	// HumanizeLabels makes headers without a label fall back to a humanized column
	// name instead of the raw column name.
	HumanizeLabels bool
}

// Controller holds the state of one list view. All methods are safe for concurrent use.
type Controller struct {
	listField      string
	executor       Executor
	labels         *labels.Resolver
	renderers      *renderers.Registry
	namer          *naming.Namer
	metrics        *observability.ListFetchMetrics
	logger         *logging.Logger
	humanizeLabels bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	meta       *entitymeta.Metadata
	params     listquery.Params
	staged     filter.State
	rows       []map[string]any
	total      *int
	status     Status
	errMessage string
	generation uint64
	queryHash  string
	settled    chan struct{}
	closed     bool
}

// New creates an idle view. Call Refresh to issue the first fetch.
func New(cfg Config) (*Controller, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("list view requires an executor")
	}
	if cfg.ListField == "" {
		return nil, fmt.Errorf("list view requires a list field")
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if !slices.Contains(PageSizeOptions, pageSize) {
		return nil, fmt.Errorf("page size %d is not one of %v", pageSize, PageSizeOptions)
	}

	meta := cfg.Metadata
	if meta == nil {
		meta = entitymeta.Degraded("")
	}
	if cfg.Labels == nil {
		cfg.Labels = labels.NewResolver(labels.ResolverConfig{Logger: cfg.Logger})
	}
	if cfg.Renderers == nil {
		cfg.Renderers = renderers.Default
	}
	if cfg.Namer == nil {
		cfg.Namer = naming.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		listField:      cfg.ListField,
		executor:       cfg.Executor,
		labels:         cfg.Labels,
		renderers:      cfg.Renderers,
		namer:          cfg.Namer,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.WithFields(slog.String("component", "listview"), slog.String("list_field", cfg.ListField)),
		humanizeLabels: cfg.HumanizeLabels,
		ctx:            ctx,
		cancel:         cancel,
		meta:           meta,
		params:         listquery.Params{PageSize: pageSize, Filters: filter.State{}},
		staged:         filter.State{},
		rows:           []map[string]any{},
		status:         StatusIdle,
	}
	c.metrics.ViewOpened(ctx)
	return c, nil
}

// ListField returns the query root field this view lists.
func (c *Controller) ListField() string {
	return c.listField
}

// Refresh re-fetches the current page. It doubles as the retry action after a failure.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchLocked()
}

// SetPage moves to a 0-based page.
func (c *Controller) SetPage(page int) error {
	if page < 0 {
		return fmt.Errorf("page must not be negative, got %d", page)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Page = page
	return c.fetchLocked()
}

// SetPageSize changes the page size and returns to the first page.
func (c *Controller) SetPageSize(size int) error {
	if !slices.Contains(PageSizeOptions, size) {
		return fmt.Errorf("page size %d is not one of %v", size, PageSizeOptions)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.PageSize = size
	c.params.Page = 0
	return c.fetchLocked()
}

// SetSort replaces the sort terms, primary sort first.
func (c *Controller) SetSort(terms []listquery.SortTerm) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Sort = slices.Clone(terms)
	return c.fetchLocked()
}

// StageFilter edits the staged filter entries of a column without fetching.
// Empty entries remove the column from the staged state.
func (c *Controller) StageFilter(column string, entries []filter.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if len(entries) == 0 {
		delete(c.staged, column)
		return nil
	}
	if !c.meta.HasColumn(column) {
		return fmt.Errorf("%w %q", ErrUnknownColumn, column)
	}
	c.staged[column] = slices.Clone(entries)
	return nil
}

// ApplyFilters commits the staged filters and returns to the first page.
func (c *Controller) ApplyFilters() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Filters = c.staged.Clone()
	c.params.Page = 0
	return c.fetchLocked()
}

// ClearFilters drops both staged and applied filters.
func (c *Controller) ClearFilters() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = filter.State{}
	c.params.Filters = filter.State{}
	c.params.Page = 0
	return c.fetchLocked()
}

// SetMetadata swaps the entity metadata, typically after a schema refresh, and re-fetches.
func (c *Controller) SetMetadata(meta *entitymeta.Metadata) error {
	if meta == nil {
		meta = entitymeta.Degraded("")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = meta
	return c.fetchLocked()
}

// SetLocale switches the label locale. Rows are not re-fetched.
func (c *Controller) SetLocale(ctx context.Context, locale string) {
	c.labels.SetLocale(ctx, locale)
}

// WaitIdle blocks until the latest fetch has settled or ctx is done.
func (c *Controller) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	settled := c.settled
	loading := c.status == StatusLoading
	c.mu.Unlock()
	if !loading || settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight fetches and waits for them to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.metrics.ViewClosed(context.Background())
}

// fetchLocked starts a fetch for the current params under a new generation.
// The caller holds c.mu.
func (c *Controller) fetchLocked() error {
	if c.closed {
		return ErrClosed
	}

	c.generation++
	generation := c.generation
	query := listquery.Build(c.meta, c.listField, c.params)

	depth := 0
	if analysis, err := gqldoc.Analyze(query.Text); err == nil {
		c.queryHash = analysis.OperationHash
		depth = analysis.SelectionDepth
	} else {
		c.queryHash = ""
		c.logger.Warn("compiled list query does not parse", slog.String("error", err.Error()))
	}

	if c.status != StatusLoading || c.settled == nil {
		c.settled = make(chan struct{})
	}
	c.status = StatusLoading
	c.errMessage = ""

	c.wg.Add(1)
	go c.run(generation, query, depth)
	return nil
}

func (c *Controller) run(generation uint64, query listquery.Query, depth int) {
	defer c.wg.Done()

	c.metrics.FetchStarted(c.ctx, c.listField, depth)
	start := time.Now()
	result, err := c.executor.Execute(c.ctx, query)
	elapsed := time.Since(start)

	c.mu.Lock()
	stale := generation != c.generation
	if !stale {
		if err != nil {
			c.status = StatusError
			c.errMessage = err.Error()
		} else {
			c.status = StatusReady
			c.errMessage = ""
			c.rows = result.Rows
			if c.rows == nil {
				c.rows = []map[string]any{}
			}
			c.total = result.TotalCount
		}
		if c.settled != nil {
			close(c.settled)
			c.settled = nil
		}
	}
	latest := c.generation
	c.mu.Unlock()

	c.metrics.FetchFinished(context.Background(), c.listField, elapsed, len(result.Rows), err, stale)

	switch {
	case stale:
		c.logger.Debug("discarded stale list result",
			slog.Uint64("generation", generation),
			slog.Uint64("latest_generation", latest),
		)
	case err != nil:
		c.logger.Warn("list fetch failed",
			slog.Uint64("generation", generation),
			slog.String("error", err.Error()),
		)
	default:
		c.logger.Debug("list fetch completed",
			slog.Uint64("generation", generation),
			slog.Int("rows", len(result.Rows)),
			slog.Duration("duration", elapsed),
		)
	}
}
