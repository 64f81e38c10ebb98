package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"graphql-admin/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Upstream.validate(result)
	c.Labels.validate(result)
	c.Listing.validate(result)
	c.Schema.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	return result
}

// Page sizes a list view accepts.
var pageSizeOptions = []int{5, 10, 25, 50}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

var headerNamePattern = regexp.MustCompile("^[!#$%&'*+.^_`|~0-9A-Za-z-]+$")

func (u *UpstreamConfig) validate(result *ValidationResult) {
	endpoint := strings.TrimSpace(u.Endpoint)
	if endpoint == "" {
		result.fail("upstream.endpoint", "upstream endpoint is required", "set upstream.endpoint or GQLADMIN_UPSTREAM_ENDPOINT")
	} else if parsed, err := url.Parse(endpoint); err != nil || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		result.fail("upstream.endpoint", fmt.Sprintf("invalid upstream endpoint %q", u.Endpoint), "use an absolute http:// or https:// URL")
	} else if parsed.Scheme == "http" && (u.BearerToken != "" || u.OAuth2.Enabled) {
		result.warn("upstream.endpoint", "credentials are sent to the upstream over plain HTTP", "use an https:// endpoint")
	}

	if u.Timeout < 0 {
		result.fail("upstream.timeout", "timeout cannot be negative", "")
	}
	if u.MaxResponseBytes < 0 {
		result.fail("upstream.max_response_bytes", "max_response_bytes cannot be negative", "")
	}
	for name := range u.Headers {
		if !headerNamePattern.MatchString(name) {
			result.fail("upstream.headers", fmt.Sprintf("invalid header name %q", name), "")
		}
	}

	if u.OAuth2.Enabled {
		if u.BearerToken != "" {
			result.warn("upstream.bearer_token", "bearer token is ignored when oauth2 is enabled", "remove one of the two")
		}
		if u.OAuth2.TokenURL == "" {
			result.fail("upstream.oauth2.token_url", "token URL is required when oauth2 is enabled", "")
		}
		if u.OAuth2.ClientID == "" {
			result.fail("upstream.oauth2.client_id", "client ID is required when oauth2 is enabled", "")
		}
		if u.OAuth2.ClientSecret == "" {
			result.fail("upstream.oauth2.client_secret", "client secret is required when oauth2 is enabled",
				"set client_secret or client_secret_file")
		}
	}
}

func (l *LabelsConfig) validate(result *ValidationResult) {
	if l.DSN != "" && l.Dir != "" {
		result.warn("labels.dir", "labels.dir is ignored because labels.dsn is set", "")
	}
	if l.DSN != "" && !tableNamePattern.MatchString(l.Table) {
		result.fail("labels.table", fmt.Sprintf("invalid label table name %q", l.Table), "use table or schema.table")
	}
	if l.DSN == "" && l.Dir == "" {
		result.warn("labels", "no static label source configured", "set labels.dir or labels.dsn; headers fall back to column names")
	}
	if strings.TrimSpace(l.DefaultLocale) == "" {
		result.fail("labels.default_locale", "default locale cannot be empty", "")
	}
}

func (l *ListingConfig) validate(result *ValidationResult) {
	if !slices.Contains(pageSizeOptions, l.DefaultPageSize) {
		result.fail("listing.default_page_size",
			fmt.Sprintf("page size %d is not supported", l.DefaultPageSize),
			"valid values are: 5, 10, 25, 50")
	}
	if l.MaxViews <= 0 {
		result.fail("listing.max_views", "max_views must be greater than 0", "")
	}
	if l.MetadataCacheSize <= 0 {
		result.fail("listing.metadata_cache_size", "metadata_cache_size must be greater than 0", "")
	}
	if l.ActionTimeout <= 0 {
		result.fail("listing.action_timeout", "action_timeout must be greater than 0", "")
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	if s.RefreshMinInterval <= 0 {
		result.fail("schema.refresh_min_interval", "refresh_min_interval must be greater than 0", "")
	}
	if s.RefreshMaxInterval < s.RefreshMinInterval {
		result.fail("schema.refresh_max_interval", "refresh_max_interval cannot be smaller than refresh_min_interval", "")
	}

	patterns := append(append([]string{}, s.Filter.AllowListFields...), s.Filter.DenyListFields...)
	for _, fields := range s.Filter.DenyFields {
		patterns = append(patterns, fields...)
	}
	for _, pattern := range patterns {
		if !schemafilter.ValidPattern(pattern) {
			result.fail("schema.filter", fmt.Sprintf("invalid pattern %q", pattern), "use path.Match syntax, e.g. user_* or *_internal")
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.fail("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}
		hasWildcard := slices.ContainsFunc(s.CORSAllowedOrigins, func(origin string) bool {
			return strings.TrimSpace(origin) == "*"
		})
		if hasWildcard && s.CORSAllowCredentials {
			result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	if s.Admin.SchemaReloadEnabled && s.Admin.AuthToken == "" {
		result.fail("server.admin.auth_token", "admin token is required when schema reload is enabled",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}

	switch s.EffectiveTLSMode() {
	case "off":
		if (s.TLSCertFile == "") != (s.TLSKeyFile == "") {
			result.fail("server.tls_cert_file", "tls_cert_file and tls_key_file must be set together", "")
		}
	case "file":
		if s.TLSCertFile == "" || s.TLSKeyFile == "" {
			result.fail("server.tls_cert_file", "tls_cert_file and tls_key_file are required when tls_mode is file", "")
		}
	case "selfsigned":
		if s.TLSSelfSignedDir == "" {
			result.fail("server.tls_self_signed_dir", "tls_self_signed_dir is required when tls_mode is selfsigned", "")
		}
		result.warn("server.tls_mode", "self-signed certificates are for development only", "use tls_mode=file in production")
	default:
		result.fail("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, file, selfsigned")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
