package serverapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"graphql-admin/internal/config"
	"graphql-admin/internal/entitymeta"
	"graphql-admin/internal/labels"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/middleware"
	"graphql-admin/internal/naming"
	"graphql-admin/internal/observability"
	"graphql-admin/internal/schemasource"
	"graphql-admin/internal/tlscert"
	"graphql-admin/internal/transport"
	"graphql-admin/internal/webapi"
)

const labelDBPingTimeout = 10 * time.Second

func otlpExporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

// InitLogger builds the process logger and, when log export is enabled, the OTLP
// logger provider it bridges into.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:     cfg.Observability.Logging.Level,
		Format:    cfg.Observability.Logging.Format,
		ScopeName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized successfully")

	return logger, loggerProvider, nil
}

// meterSet groups the instruments created at startup. All fields are nil when
// metrics are disabled; the instruments treat nil receivers as no-ops.
type meterSet struct {
	provider      *observability.MeterProvider
	listFetch     *observability.ListFetchMetrics
	schemaRefresh *observability.SchemaRefreshMetrics
	admin         *observability.AdminMetrics
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (meterSet, error) {
	if !cfg.Observability.MetricsEnabled {
		return meterSet{}, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)

	provider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return meterSet{}, err
	}
	set := meterSet{provider: provider}

	if set.listFetch, err = observability.InitListFetchMetrics(); err != nil {
		return meterSet{}, err
	}
	if set.schemaRefresh, err = observability.InitSchemaRefreshMetrics(logger.Logger); err != nil {
		return meterSet{}, err
	}
	if set.admin, err = observability.InitAdminMetrics(); err != nil {
		return meterSet{}, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return set, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       otlpExporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func buildUpstreamClient(cfg *config.Config, logger *logging.Logger) (*transport.Client, error) {
	up := cfg.Upstream
	clientCfg := transport.Config{
		Endpoint:         up.Endpoint,
		Timeout:          up.Timeout,
		Headers:          up.Headers,
		BearerToken:      up.BearerToken,
		MaxResponseBytes: up.MaxResponseBytes,
	}
	auth := "none"
	switch {
	case up.OAuth2.Enabled:
		clientCfg.OAuth2 = &transport.OAuth2Config{
			TokenURL:     up.OAuth2.TokenURL,
			ClientID:     up.OAuth2.ClientID,
			ClientSecret: up.OAuth2.ClientSecret,
			Scopes:       up.OAuth2.Scopes,
		}
		auth = "oauth2_client_credentials"
	case up.BearerToken != "":
		auth = "bearer"
	}

	client, err := transport.New(clientCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("upstream client configured",
		slog.String("endpoint", up.Endpoint),
		slog.String("auth", auth),
		slog.Int("headers", len(up.Headers)),
		slog.Duration("timeout", up.Timeout),
	)
	return client, nil
}

// openLabelStore picks the static label source. A SQL table wins over a directory;
// with neither, every header falls back to its column name.
func openLabelStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (labels.Store, *sql.DB, interface{ Unregister() error }, error) {
	switch {
	case cfg.Labels.DSN != "":
		db, reg, err := connectLabelDB(cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, labelDBPingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			// Lookups retry on every locale switch; until then headers use fallbacks.
			logger.Warn("label database unreachable", slog.String("error", err.Error()))
		}
		logger.Info("static labels from database", slog.String("table", cfg.Labels.Table))
		return labels.NewSQLStore(db, cfg.Labels.Table), db, reg, nil
	case cfg.Labels.Dir != "":
		if info, err := os.Stat(cfg.Labels.Dir); err != nil || !info.IsDir() {
			logger.Warn("label directory is not readable", slog.String("dir", cfg.Labels.Dir))
		}
		logger.Info("static labels from directory", slog.String("dir", cfg.Labels.Dir))
		return labels.NewFileStore(os.DirFS(cfg.Labels.Dir)), nil, nil, nil
	default:
		logger.Info("no static label source configured")
		return nil, nil, nil, nil
	}
}

func connectLabelDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", cfg.Labels.DSN)
		return db, nil, err
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open("mysql", cfg.Labels.DSN, opts...)
	if err != nil {
		return nil, nil, err
	}

	var reg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		reg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}
	logger.Info("label database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, reg, nil
}

// schemaChangeRelay forwards schema changes to a handler attached after the
// schema source was created. Changes before attach are dropped.
type schemaChangeRelay struct {
	mu      sync.Mutex
	handler func(*schemasource.Snapshot)
}

func (r *schemaChangeRelay) attach(fn func(*schemasource.Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = fn
}

func (r *schemaChangeRelay) notify(snap *schemasource.Snapshot) {
	r.mu.Lock()
	fn := r.handler
	r.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func newSchemaSource(ctx context.Context, cfg *config.Config, logger *logging.Logger, client schemasource.Introspector, metrics *observability.SchemaRefreshMetrics, onChange func(*schemasource.Snapshot)) (*schemasource.Manager, error) {
	return schemasource.NewManager(ctx, schemasource.Config{
		Client:      client,
		Logger:      logger,
		Metrics:     metrics,
		MinInterval: cfg.Schema.RefreshMinInterval,
		MaxInterval: cfg.Schema.RefreshMaxInterval,
		Filter:      cfg.Schema.Filter,
		OnChange:    onChange,
	})
}

func buildAPI(cfg *config.Config, logger *logging.Logger, manager *schemasource.Manager, upstream *transport.Client, store labels.Store, metrics *observability.ListFetchMetrics) (*webapi.API, error) {
	cache, err := entitymeta.NewCache(cfg.Listing.MetadataCacheSize)
	if err != nil {
		return nil, err
	}
	return webapi.New(webapi.Config{
		Schema:          manager,
		Executor:        upstream,
		LabelStore:      store,
		Namer:           naming.New(cfg.Naming),
		MetadataCache:   cache,
		Metrics:         metrics,
		Logger:          logger,
		DefaultLocale:   cfg.Labels.DefaultLocale,
		DefaultPageSize: cfg.Listing.DefaultPageSize,
		MaxViews:        cfg.Listing.MaxViews,
		ActionTimeout:   cfg.Listing.ActionTimeout,
		HumanizeLabels:  cfg.Labels.Humanize,
	})
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager schemaRefresher, metrics *observability.AdminMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.SchemaReloadEnabled {
		return nil, nil
	}
	auth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
		Token:   cfg.Server.Admin.AuthToken,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("schema reload endpoint enabled", slog.String("path", "/admin/reload-schema"))
	return auth(schemaReloadHandler(manager, cfg.Upstream.Timeout)), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, schema webapi.SchemaSource, api *webapi.API, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/", api.Handler())
	mux.HandleFunc("GET /health", healthHandler(schema))

	if adminHandler != nil {
		mux.Handle("POST /admin/reload-schema", adminHandler)
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("GET /metrics", meterProvider.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.LoggingMiddleware(logger, middleware.LoggingOptions{
		QuietPaths: []string{"/health", "/metrics"},
	})(handler)

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:     cfg.Server.RateLimitEnabled,
			RPS:         cfg.Server.RateLimitRPS,
			Burst:       cfg.Server.RateLimitBurst,
			PerClient:   cfg.Server.RateLimitPerClient,
			ExemptPaths: []string{"/health", "/metrics"},
		})(handler)
		logger.Info("rate limiting enabled",
			slog.Float64("rps", cfg.Server.RateLimitRPS),
			slog.Int("burst", cfg.Server.RateLimitBurst),
			slog.Bool("per_client", cfg.Server.RateLimitPerClient),
		)
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute collapses view IDs and entity names so span names stay
// low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/health", "/metrics", "/admin/reload-schema", "/api/entities", "/api/views":
		return rawPath
	}

	segments := strings.Split(strings.Trim(rawPath, "/"), "/")
	switch {
	case len(segments) == 4 && segments[0] == "api" && segments[1] == "entities" && segments[3] == "metadata":
		return "/api/entities/{listField}/metadata"
	case len(segments) == 3 && segments[0] == "api" && segments[1] == "views":
		return "/api/views/{id}"
	case len(segments) == 4 && segments[0] == "api" && segments[1] == "views" &&
		(segments[3] == "actions" || segments[3] == "export.xlsx"):
		return "/api/views/{id}/" + segments[3]
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Server.TLSEnabled() {
		source, err := tlscert.Load(tlscert.Config{
			Mode:          tlscert.Mode(cfg.Server.EffectiveTLSMode()),
			CertFile:      cfg.Server.TLSCertFile,
			KeyFile:       cfg.Server.TLSKeyFile,
			SelfSignedDir: cfg.Server.TLSSelfSignedDir,
			Hosts:         cfg.Server.TLSSelfSignedHosts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up TLS: %w", err)
		}
		srv.TLSConfig = source.TLSConfig()
		logger.Info("TLS enabled", slog.String("certificate", source.Description()))
	}

	return srv, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	tlsEnabled := cfg.Server.TLSEnabled()
	go func() {
		protocol := "http"
		if tlsEnabled {
			protocol = "https"
		}

		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("api_endpoint", "/api/"),
			slog.String("health_endpoint", "/health"),
			slog.String("upstream", cfg.Upstream.Endpoint),
			slog.Int("default_page_size", cfg.Listing.DefaultPageSize),
			slog.String("default_locale", cfg.Labels.DefaultLocale),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", logAttrs...)

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler reports the schema snapshot state. A degraded schema is still
// servable, so it answers 200 with status "degraded".
func healthHandler(schema webapi.SchemaSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		snap := schema.Current()
		if snap == nil || snap.Degraded {
			reqLogger.Debug("health check: schema degraded")
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprint(w, `{"status":"degraded","schema":"unavailable"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"healthy","schema":"ok","fingerprint":%q}`, snap.Fingerprint)
	}
}

// schemaRefresher is the part of the schema source the reload endpoint needs.
type schemaRefresher interface {
	RefreshNow(ctx context.Context) error
	Current() *schemasource.Snapshot
}

func schemaReloadHandler(manager schemaRefresher, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := manager.RefreshNow(refreshCtx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema reload failed"}`)
			return
		}

		fingerprint := manager.Current().Fingerprint
		reqLogger.Info("schema reloaded successfully", slog.String("fingerprint", fingerprint))
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","fingerprint":%q}`, fingerprint)
	}
}
