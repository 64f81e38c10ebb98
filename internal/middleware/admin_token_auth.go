package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"graphql-admin/internal/logging"
	"graphql-admin/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig controls shared-token authentication for admin endpoints.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	// Metrics is optional.
	Metrics *observability.AdminMetrics
}

// AdminTokenAuthMiddleware validates a shared admin token taken from the configured
// header or, failing that, from an "Authorization: Bearer" header.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = defaultAdminTokenHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := providedAdminToken(r, headerName)
			if !constantTimeTokenMatch(provided, token) {
				reason := "invalid_token"
				if provided == "" {
					reason = "missing_token"
				}
				cfg.Metrics.RecordAdminEndpointAccess(r.Context(), r.URL.Path, false)
				cfg.Metrics.RecordUnauthorizedAttempt(r.Context(), r.URL.Path, reason)
				logging.FromContext(r.Context()).Warn("rejected admin request",
					slog.String("path", r.URL.Path),
					slog.Bool("token_present", provided != ""),
				)
				writeAdminUnauthorized(w)
				return
			}
			cfg.Metrics.RecordAdminEndpointAccess(r.Context(), r.URL.Path, true)
			next.ServeHTTP(w, r)
		})
	}, nil
}

func providedAdminToken(r *http.Request, headerName string) string {
	if token := strings.TrimSpace(r.Header.Get(headerName)); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// constantTimeTokenMatch compares digests so the comparison time does not depend on token length.
func constantTimeTokenMatch(provided string, expected string) bool {
	providedDigest := sha256.Sum256([]byte(provided))
	expectedDigest := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(providedDigest[:], expectedDigest[:]) == 1
}

func writeAdminUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprint(w, `{"error":"unauthorized"}`)
}
