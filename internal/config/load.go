package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. GQLADMIN_UPSTREAM_ENDPOINT.
const EnvPrefix = "GQLADMIN"

var defineFlagsOnce sync.Once

// stdin can be consumed by at most one of these.
var stdinBackedKeys = []string{
	"upstream.bearer_token_file",
	"upstream.oauth2.client_secret_file",
	"labels.dsn_file",
	"server.admin.auth_token_file",
}

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) for secrets read from files or a prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("graphql-admin")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/graphql-admin/")
		v.AddConfigPath("$HOME/.graphql-admin")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys are dot + snake_case; env vars replace dots with underscores.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v)

	if err := resolveSecrets(v, os.Stdin, promptSecret); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// resolveSecrets fills secret values from their *_file settings and, for the
// upstream token, an interactive prompt. A file setting of "@-" reads stdin.
func resolveSecrets(v *viper.Viper, stdin io.Reader, prompt func(label string) (string, error)) error {
	if err := validateSingleStdinFileSource(v); err != nil {
		return err
	}

	fromFile := []struct {
		key, fileKey, what string
		required           bool
	}{
		{"upstream.bearer_token", "upstream.bearer_token_file", "upstream bearer token", true},
		{"upstream.oauth2.client_secret", "upstream.oauth2.client_secret_file", "oauth2 client secret", true},
		{"labels.dsn", "labels.dsn_file", "label store DSN", false},
		{"server.admin.auth_token", "server.admin.auth_token_file", "admin auth token", true},
	}
	for _, s := range fromFile {
		path := strings.TrimSpace(v.GetString(s.fileKey))
		if v.GetString(s.key) != "" || path == "" {
			continue
		}
		secret, err := readSecretFile(path, stdin)
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", s.what, err)
		}
		if secret == "" && s.required {
			return fmt.Errorf("%s file %q is empty", s.what, path)
		}
		v.Set(s.key, secret)
	}

	if v.GetString("upstream.bearer_token") == "" && v.GetBool("upstream.bearer_token_prompt") {
		token, err := prompt("Enter upstream bearer token: ")
		if err != nil {
			return fmt.Errorf("failed to read bearer token: %w", err)
		}
		v.Set("upstream.bearer_token", token)
	}
	return nil
}

// unmarshal decodes strictly so unknown keys are reported instead of ignored.
func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" || f.Name == "check-config" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "int64":
			val, _ := pflag.CommandLine.GetInt64(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := pflag.CommandLine.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := pflag.CommandLine.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		// Upstream flags
		pflag.String("upstream.endpoint", "", "GraphQL endpoint list queries are sent to")
		pflag.Duration("upstream.timeout", 0, "Upstream request timeout")
		pflag.String("upstream.bearer_token", "", "Bearer token for the upstream API")
		pflag.String("upstream.bearer_token_file", "", "Path to file containing the upstream bearer token (use @- for stdin)")
		pflag.Bool("upstream.bearer_token_prompt", false, "Prompt for the upstream bearer token")
		pflag.Int64("upstream.max_response_bytes", 0, "Maximum upstream response size in bytes")
		pflag.Bool("upstream.oauth2.enabled", false, "Use the OAuth2 client-credentials grant for upstream requests")
		pflag.String("upstream.oauth2.token_url", "", "OAuth2 token endpoint")
		pflag.String("upstream.oauth2.client_id", "", "OAuth2 client ID")
		pflag.String("upstream.oauth2.client_secret", "", "OAuth2 client secret")
		pflag.String("upstream.oauth2.client_secret_file", "", "Path to file containing the OAuth2 client secret (use @- for stdin)")
		pflag.StringSlice("upstream.oauth2.scopes", nil, "OAuth2 scopes (comma-separated or repeated)")

		// Label flags
		pflag.String("labels.dir", "", "Directory of <locale>.json label tables")
		pflag.String("labels.dsn", "", "MySQL DSN of the label table (overrides labels.dir)")
		pflag.String("labels.dsn_file", "", "Path to file containing the label DSN (use @- for stdin)")
		pflag.String("labels.table", "", "Label table name")
		pflag.String("labels.default_locale", "", "Locale used when a request names none")
		pflag.Bool("labels.humanize", false, "Humanize headers that have no label")

		// Listing flags
		pflag.Int("listing.default_page_size", 0, "Page size of new list views (5, 10, 25 or 50)")
		pflag.Int("listing.max_views", 0, "Maximum open list views before the least recently used is closed")
		pflag.Duration("listing.action_timeout", 0, "How long an action waits for its fetch before returning")
		pflag.Int("listing.metadata_cache_size", 0, "Entity metadata entries kept per schema")

		// Schema flags
		pflag.Duration("schema.refresh_min_interval", 0, "Minimum interval between schema refresh checks")
		pflag.Duration("schema.refresh_max_interval", 0, "Maximum interval between schema refresh checks")

		// Server flags
		pflag.Int("server.port", 0, "HTTP server port")
		pflag.Bool("server.admin.schema_reload_enabled", false, "Enable /admin/reload-schema endpoint")
		pflag.String("server.admin.auth_token", "", "Shared secret required in X-Admin-Token header by the admin endpoint")
		pflag.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")
		pflag.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
		pflag.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
		pflag.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
		pflag.Bool("server.rate_limit_per_client", false, "Apply the rate limit per client IP instead of globally")
		pflag.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
		pflag.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
		pflag.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
		pflag.Duration("server.read_timeout", 0, "HTTP server read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP server write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
		pflag.Duration("server.health_check_timeout", 0, "Health check timeout")
		pflag.String("server.tls_mode", "", "TLS mode: off, file, selfsigned")
		pflag.String("server.tls_cert_file", "", "Path to TLS certificate file")
		pflag.String("server.tls_key_file", "", "Path to TLS private key file")
		pflag.String("server.tls_self_signed_dir", "", "Directory for the generated self-signed certificate")

		// Observability flags
		pflag.String("observability.service_name", "", "Service name for observability")
		pflag.String("observability.service_version", "", "Service version for observability")
		pflag.String("observability.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("observability.metrics_enabled", false, "Enable metrics collection")
		pflag.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
		pflag.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")
		pflag.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
		pflag.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
		pflag.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
		pflag.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
		pflag.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
		pflag.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")

		pflag.StringP("config", "c", "", "Config file path")
	})
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.endpoint", "")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.headers", map[string]string{})
	v.SetDefault("upstream.bearer_token", "")
	v.SetDefault("upstream.bearer_token_file", "")
	v.SetDefault("upstream.bearer_token_prompt", false)
	v.SetDefault("upstream.max_response_bytes", int64(32<<20))
	v.SetDefault("upstream.oauth2.enabled", false)
	v.SetDefault("upstream.oauth2.token_url", "")
	v.SetDefault("upstream.oauth2.client_id", "")
	v.SetDefault("upstream.oauth2.client_secret", "")
	v.SetDefault("upstream.oauth2.client_secret_file", "")
	v.SetDefault("upstream.oauth2.scopes", []string{})

	v.SetDefault("labels.dir", "")
	v.SetDefault("labels.dsn", "")
	v.SetDefault("labels.dsn_file", "")
	v.SetDefault("labels.table", "ui_labels")
	v.SetDefault("labels.default_locale", defaultLocaleFromEnv())
	v.SetDefault("labels.humanize", false)

	v.SetDefault("listing.default_page_size", 10)
	v.SetDefault("listing.max_views", 256)
	v.SetDefault("listing.action_timeout", 10*time.Second)
	v.SetDefault("listing.metadata_cache_size", 128)

	v.SetDefault("schema.refresh_min_interval", 30*time.Second)
	v.SetDefault("schema.refresh_max_interval", 5*time.Minute)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.rate_limit_per_client", false)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_expose_headers", []string{"Content-Disposition", "X-Request-ID"})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.tls_mode", "")
	v.SetDefault("server.tls_self_signed_dir", ".certs")
	v.SetDefault("server.tls_self_signed_hosts", []string{})

	v.SetDefault("observability.service_name", "graphql-admin")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

// defaultLocaleFromEnv reads the POSIX locale variables, e.g. "es_ES.UTF-8" -> "es".
func defaultLocaleFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}
		if idx := strings.IndexAny(value, "_-."); idx >= 0 {
			value = value[:idx]
		}
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return "en"
}

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(label string) (string, error) {
	fmt.Print(label)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

func readSecretFile(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		if stdin == nil {
			return "", fmt.Errorf("stdin is not available")
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
