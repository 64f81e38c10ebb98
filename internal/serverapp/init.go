package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meters, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meters.provider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meters.provider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	upstream, err := buildUpstreamClient(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to configure upstream client: %w", err)
	}

	labelStore, labelDB, dbStatsReg, err := openLabelStore(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open label store: %w", err)
	}
	if labelDB != nil {
		cleanup.push("label database", func(_ context.Context) error {
			if dbStatsReg != nil {
				if err := dbStatsReg.Unregister(); err != nil {
					a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return labelDB.Close()
		})
	}

	// The schema source reports changes to the API, which does not exist until the
	// startup introspection has produced its first snapshot.
	var changed schemaChangeRelay
	manager, err := newSchemaSource(ctx, a.cfg, a.logger, upstream, meters.schemaRefresh, changed.notify)
	if err != nil {
		return fmt.Errorf("failed to initialize schema source: %w", err)
	}

	api, err := buildAPI(a.cfg, a.logger, manager, upstream, labelStore, meters.listFetch)
	if err != nil {
		return fmt.Errorf("failed to initialize web API: %w", err)
	}
	cleanup.push("list views", func(_ context.Context) error {
		api.Close()
		return nil
	})
	changed.attach(api.SchemaChanged)

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)
	cleanup.push("schema source", func(shutdownCtx context.Context) error {
		schemaCancel()
		return manager.Wait(shutdownCtx)
	})

	adminHandler, err := buildAdminHandler(a.cfg, a.logger, manager, meters.admin)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, manager, api, adminHandler, meters.provider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, err := buildServer(a.cfg, a.logger, handler, serverAddr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meters.provider
	a.listMetrics = meters.listFetch
	a.schemaRefreshMetrics = meters.schemaRefresh
	a.adminMetrics = meters.admin
	a.tracerProvider = tracerProvider
	a.upstream = upstream
	a.labelDB = labelDB
	a.dbStatsReg = dbStatsReg
	a.labelStore = labelStore
	a.manager = manager
	a.schemaCancel = schemaCancel
	a.api = api
	a.adminHandler = adminHandler
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
