// Package webapi exposes list views to a front end over HTTP/JSON: navigation,
// entity metadata, view state and actions, and XLSX export.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"graphql-admin/internal/entitymeta"
	"graphql-admin/internal/labels"
	"graphql-admin/internal/listview"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/naming"
	"graphql-admin/internal/observability"
	"graphql-admin/internal/renderers"
	"graphql-admin/internal/schemasource"
)

// SchemaSource supplies the current schema snapshot.
type SchemaSource interface {
	Current() *schemasource.Snapshot
}

// Config wires an API.
type Config struct {
	Schema          SchemaSource
	Executor        listview.Executor
	LabelStore      labels.Store
	LabelRegistry   *labels.Registry
	Renderers       *renderers.Registry
	Namer           *naming.Namer
	MetadataCache   *entitymeta.Cache
	Metrics         *observability.ListFetchMetrics
	Logger          *logging.Logger
	DefaultLocale   string
	DefaultPageSize int
	MaxViews        int
	// ActionTimeout bounds how long a request waits for the resulting fetch.
	ActionTimeout  time.Duration
	HumanizeLabels bool
}

// Navigation and metadata requests share one resolver per locale.
const localeResolverCacheSize = 32

// API serves the shell HTTP endpoints.
type API struct {
	cfg       Config
	views     *Views
	resolvers *lru.Cache[string, *labels.Resolver]
	logger    *logging.Logger
}

// New validates the configuration and creates an API.
func New(cfg Config) (*API, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("web API requires a schema source")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("web API requires an executor")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	if cfg.LabelRegistry == nil {
		cfg.LabelRegistry = labels.Default
	}
	if cfg.Renderers == nil {
		cfg.Renderers = renderers.Default
	}
	if cfg.Namer == nil {
		cfg.Namer = naming.Default()
	}
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = listview.DefaultPageSize
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	cfg.DefaultLocale = labels.NormalizeLocale(cfg.DefaultLocale, "en")

	views, err := NewViews(cfg.MaxViews)
	if err != nil {
		return nil, err
	}
	resolvers, err := lru.New[string, *labels.Resolver](localeResolverCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create label cache: %w", err)
	}
	return &API{
		cfg:       cfg,
		views:     views,
		resolvers: resolvers,
		logger:    cfg.Logger.WithFields(slog.String("component", "webapi")),
	}, nil
}

// Handler returns the routes of the API.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/locales", a.handleLocales)
	mux.HandleFunc("GET /api/entities", a.handleEntities)
	mux.HandleFunc("GET /api/entities/{listField}/metadata", a.handleMetadata)
	mux.HandleFunc("POST /api/views", a.handleCreateView)
	mux.HandleFunc("GET /api/views/{id}", a.handleGetView)
	mux.HandleFunc("DELETE /api/views/{id}", a.handleDeleteView)
	mux.HandleFunc("POST /api/views/{id}/actions", a.handleAction)
	mux.HandleFunc("GET /api/views/{id}/export.xlsx", a.handleExport)
	return mux
}

// Views returns the open view registry.
func (a *API) Views() *Views {
	return a.views
}

// Close closes every open view.
func (a *API) Close() {
	a.views.Purge()
}

// SchemaChanged points every open view at metadata built from the new snapshot.
// Cached label tables are dropped so the next request re-reads them.
func (a *API) SchemaChanged(snap *schemasource.Snapshot) {
	a.resolvers.Purge()
	a.views.Each(func(id string, ctrl *listview.Controller) {
		meta := a.metadataFor(snap, ctrl.ListField())
		if err := ctrl.SetMetadata(meta); err != nil && !errors.Is(err, listview.ErrClosed) {
			a.logger.Warn("failed to refresh view metadata",
				slog.String("view_id", id),
				slog.String("error", err.Error()),
			)
		}
	})
	a.logger.Info("open views moved to new schema",
		slog.String("fingerprint", snap.Fingerprint),
		slog.Int("views", a.views.Len()),
	)
}

func (a *API) metadataFor(snap *schemasource.Snapshot, listField string) *entitymeta.Metadata {
	if snap == nil {
		return entitymeta.Degraded("")
	}
	if a.cfg.MetadataCache != nil {
		return a.cfg.MetadataCache.ForListField(snap.Fingerprint, snap.Model, listField)
	}
	return entitymeta.ForListField(snap.Model, listField)
}

// resolver returns the shared resolver for locale, loading its static table on first
// use. A table that failed to load is not cached, so the next request retries.
func (a *API) resolver(ctx context.Context, locale string) *labels.Resolver {
	locale = labels.NormalizeLocale(locale, a.cfg.DefaultLocale)
	if res, ok := a.resolvers.Get(locale); ok {
		return res
	}
	res := a.newResolver()
	if err := res.SetLocale(ctx, locale); err == nil {
		a.resolvers.Add(locale, res)
	}
	return res
}

// newResolver builds an unloaded resolver. Views get their own because they switch
// locale independently.
func (a *API) newResolver() *labels.Resolver {
	return labels.NewResolver(labels.ResolverConfig{
		Store:         a.cfg.LabelStore,
		Registry:      a.cfg.LabelRegistry,
		Logger:        a.logger,
		DefaultLocale: a.cfg.DefaultLocale,
	})
}

func (a *API) newView(ctx context.Context, listField, locale string, pageSize int) (*listview.Controller, error) {
	if pageSize == 0 {
		pageSize = a.cfg.DefaultPageSize
	}
	res := a.newResolver()
	_ = res.SetLocale(ctx, locale)
	return listview.New(listview.Config{
		ListField:      listField,
		Metadata:       a.metadataFor(a.cfg.Schema.Current(), listField),
		Executor:       a.cfg.Executor,
		Labels:         res,
		Renderers:      a.cfg.Renderers,
		Namer:          a.cfg.Namer,
		Metrics:        a.cfg.Metrics,
		Logger:         a.logger,
		PageSize:       pageSize,
		HumanizeLabels: a.cfg.HumanizeLabels,
	})
}

// settle waits for the view's latest fetch. A fetch still running when the wait
// times out is reported as loading.
func (a *API) settle(ctx context.Context, ctrl *listview.Controller) {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ActionTimeout)
	defer cancel()
	if err := ctrl.WaitIdle(waitCtx); err != nil {
		logging.FromContext(ctx).Debug("view still loading", slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
