package config

import (
	"time"

	"graphql-admin/internal/naming"
	"graphql-admin/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
	Labels        LabelsConfig        `mapstructure:"labels"`
	Listing       ListingConfig       `mapstructure:"listing"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// UpstreamConfig describes the GraphQL API that list queries are sent to.
type UpstreamConfig struct {
	Endpoint string            `mapstructure:"endpoint"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
	// BearerToken is sent as "Authorization: Bearer <token>".
	BearerToken string `mapstructure:"bearer_token"`
	// BearerTokenFile is read when BearerToken is empty. Supports "@-" for stdin.
	BearerTokenFile   string `mapstructure:"bearer_token_file"`
	BearerTokenPrompt bool   `mapstructure:"bearer_token_prompt"`
	// MaxResponseBytes caps the size of a decoded response body.
	MaxResponseBytes int64        `mapstructure:"max_response_bytes"`
	OAuth2           OAuth2Config `mapstructure:"oauth2"`
}

// OAuth2Config enables the client-credentials grant against the upstream.
type OAuth2Config struct {
	Enabled          bool     `mapstructure:"enabled"`
	TokenURL         string   `mapstructure:"token_url"`
	ClientID         string   `mapstructure:"client_id"`
	ClientSecret     string   `mapstructure:"client_secret"`
	ClientSecretFile string   `mapstructure:"client_secret_file"`
	Scopes           []string `mapstructure:"scopes"`
}

// LabelsConfig selects where static label tables come from.
type LabelsConfig struct {
	// Dir holds one <locale>.json file per locale.
	Dir string `mapstructure:"dir"`
	// DSN switches the static tables to a MySQL/TiDB table. It wins over Dir.
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn_file"`
	Table   string `mapstructure:"table"`
	// DefaultLocale is used when a request names no locale. The region suffix is dropped.
	DefaultLocale string `mapstructure:"default_locale"`
	// Humanize makes unlabelled headers fall back to humanized names.
	Humanize bool `mapstructure:"humanize"`
}

// ListingConfig bounds list views.
type ListingConfig struct {
	DefaultPageSize   int           `mapstructure:"default_page_size"`
	MaxViews          int           `mapstructure:"max_views"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`
	MetadataCacheSize int           `mapstructure:"metadata_cache_size"`
}

// SchemaConfig controls how often the upstream schema is re-introspected.
type SchemaConfig struct {
	RefreshMinInterval time.Duration `mapstructure:"refresh_min_interval"`
	RefreshMaxInterval time.Duration `mapstructure:"refresh_max_interval"`
	// Filter hides list fields and columns from the admin UI.
	Filter schemafilter.Config `mapstructure:"filter"`
}

// AdminConfig controls administrative endpoint exposure and authentication.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	Admin                AdminConfig   `mapstructure:"admin"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	RateLimitPerClient   bool          `mapstructure:"rate_limit_per_client"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`

	// TLSMode is "off", "file" or "selfsigned". Empty means "file" when both
	// files are set and "off" otherwise.
	TLSMode            string   `mapstructure:"tls_mode"`
	TLSCertFile        string   `mapstructure:"tls_cert_file"`
	TLSKeyFile         string   `mapstructure:"tls_key_file"`
	TLSSelfSignedDir   string   `mapstructure:"tls_self_signed_dir"`
	TLSSelfSignedHosts []string `mapstructure:"tls_self_signed_hosts"`
}

// EffectiveTLSMode resolves an empty TLSMode.
func (s ServerConfig) EffectiveTLSMode() string {
	if s.TLSMode != "" {
		return s.TLSMode
	}
	if s.TLSCertFile != "" && s.TLSKeyFile != "" {
		return "file"
	}
	return "off"
}

// TLSEnabled reports whether the server listens with TLS.
func (s ServerConfig) TLSEnabled() bool {
	return s.EffectiveTLSMode() != "off"
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs lays signal-specific values over the global ones.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	// A present override block always decides Insecure.
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}
	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return result
}
