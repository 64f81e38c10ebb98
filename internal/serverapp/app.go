// Package serverapp assembles graphql-admin: it owns the upstream client, the schema
// source, the label store, the web API and the HTTP server, and releases them in
// reverse order on shutdown.
package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"graphql-admin/internal/config"
	"graphql-admin/internal/labels"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/observability"
	"graphql-admin/internal/schemasource"
	"graphql-admin/internal/transport"
	"graphql-admin/internal/webapi"
)

// App owns runtime resources for the graphql-admin server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider        *observability.MeterProvider
	listMetrics          *observability.ListFetchMetrics
	schemaRefreshMetrics *observability.SchemaRefreshMetrics
	adminMetrics         *observability.AdminMetrics
	tracerProvider       *observability.TracerProvider

	upstream *transport.Client

	labelDB    *sql.DB
	dbStatsReg interface{ Unregister() error }
	labelStore labels.Store

	manager      *schemasource.Manager
	schemaCancel context.CancelFunc

	api          *webapi.API
	adminHandler http.Handler
	mux          *http.ServeMux
	handler      http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
