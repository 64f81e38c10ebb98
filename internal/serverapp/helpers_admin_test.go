package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-admin/internal/config"
	"graphql-admin/internal/listquery"
	"graphql-admin/internal/schemamodel"
	"graphql-admin/internal/schemasource"
	"graphql-admin/internal/transport"
	"graphql-admin/internal/webapi"
)

type staticSchema struct {
	snap *schemasource.Snapshot
}

func (s staticSchema) Current() *schemasource.Snapshot { return s.snap }

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, listquery.Query) (transport.Result, error) {
	return transport.Result{}, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshNow(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeRefresher) Current() *schemasource.Snapshot {
	return &schemasource.Snapshot{Model: schemamodel.Empty(), Fingerprint: "abc123"}
}

func testAPI(t *testing.T, schema webapi.SchemaSource) *webapi.API {
	t.Helper()
	api, err := webapi.New(webapi.Config{Schema: schema, Executor: noopExecutor{}, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(api.Close)
	return api
}

func TestBuildRouter_AdminRouteDisabledReturnsNotFound(t *testing.T) {
	schema := staticSchema{snap: &schemasource.Snapshot{Model: schemamodel.Empty(), Degraded: true}}
	mux := buildRouter(&config.Config{}, testLogger(), schema, testAPI(t, schema), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBuildRouter_AdminRouteEnabledInvokesHandler(t *testing.T) {
	schema := staticSchema{snap: &schemasource.Snapshot{Model: schemamodel.Empty(), Degraded: true}}
	adminHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux := buildRouter(&config.Config{}, testLogger(), schema, testAPI(t, schema), adminHandler, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reload-schema", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBuildRouter_ServesAPIRoutes(t *testing.T) {
	schema := staticSchema{snap: &schemasource.Snapshot{Model: schemamodel.Empty(), Fingerprint: "f1"}}
	mux := buildRouter(&config.Config{}, testLogger(), schema, testAPI(t, schema), nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","schema":"ok","fingerprint":"f1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildAdminHandler_Disabled(t *testing.T) {
	handler, err := buildAdminHandler(&config.Config{}, testLogger(), &fakeRefresher{}, nil)
	require.NoError(t, err)
	assert.Nil(t, handler)
}

func TestBuildAdminHandler_RequiresToken(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Admin: config.AdminConfig{SchemaReloadEnabled: true}}}
	_, err := buildAdminHandler(cfg, testLogger(), &fakeRefresher{}, nil)
	assert.ErrorContains(t, err, "admin auth token is required")
}

func TestBuildAdminHandler_TokenModeMissingHeaderUnauthorized(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Admin: config.AdminConfig{
				SchemaReloadEnabled: true,
				AuthToken:           "secret-token",
			},
		},
	}
	refresher := &fakeRefresher{}

	adminHandler, err := buildAdminHandler(cfg, testLogger(), refresher, nil)
	if err != nil {
		t.Fatalf("unexpected buildAdminHandler error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	assert.Zero(t, refresher.calls)
}

func TestBuildAdminHandler_TokenModeValidHeaderRefreshes(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{Timeout: time.Second},
		Server: config.ServerConfig{
			Admin: config.AdminConfig{
				SchemaReloadEnabled: true,
				AuthToken:           "secret-token",
			},
		},
	}
	refresher := &fakeRefresher{}

	adminHandler, err := buildAdminHandler(cfg, testLogger(), refresher, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil)
	req.Header.Set("X-Admin-Token", "secret-token")
	rec := httptest.NewRecorder()
	adminHandler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","fingerprint":"abc123"}`, rec.Body.String())
	assert.Equal(t, 1, refresher.calls)
}

func TestSchemaReloadHandler_FailureHidesDetails(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("dial tcp 10.0.0.5:443: connection refused")}
	handler := schemaReloadHandler(refresher, 0)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload-schema", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestHealthHandler_Degraded(t *testing.T) {
	handler := healthHandler(staticSchema{snap: &schemasource.Snapshot{Model: schemamodel.Empty(), Degraded: true}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","schema":"unavailable"}`, rec.Body.String())
}
