package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORSConfig configures Cross-Origin Resource Sharing (CORS) policies.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// CORSMiddleware answers preflight requests and decorates responses for allowed origins.
// A wildcard origin never echoes credentials.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	origins := trimAll(cfg.AllowedOrigins)
	wildcard := false
	for _, origin := range origins {
		if origin == "*" {
			wildcard = true
			break
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:       origins,
		AllowedMethods:       trimAll(cfg.AllowedMethods),
		AllowedHeaders:       trimAll(cfg.AllowedHeaders),
		ExposedHeaders:       trimAll(cfg.ExposeHeaders),
		AllowCredentials:     cfg.AllowCredentials && !wildcard,
		MaxAge:               cfg.MaxAge,
		OptionsSuccessStatus: http.StatusNoContent,
	})
	return c.Handler
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
