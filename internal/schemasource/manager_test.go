package schemasource

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-admin/internal/logging"
	"graphql-admin/internal/schemafilter"
	"graphql-admin/internal/schemamodel"
	"graphql-admin/internal/transport"
)

func testLogger() *logging.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &logging.Logger{Logger: slog.New(handler)}
}

func upstreamSchema(t *testing.T, withSeasons bool) http.Handler {
	t.Helper()
	season := graphql.NewObject(graphql.ObjectConfig{
		Name: "Season",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"number": &graphql.Field{Type: graphql.Int},
		},
	})
	episode := graphql.NewObject(graphql.ObjectConfig{
		Name: "Episode",
		Fields: graphql.Fields{
			"id":     &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"name":   &graphql.Field{Type: graphql.String},
			"season": &graphql.Field{Type: season},
		},
	})
	fields := graphql.Fields{
		"episodes": &graphql.Field{
			Type:    graphql.NewList(episode),
			Resolve: func(graphql.ResolveParams) (any, error) { return []any{}, nil },
		},
	}
	if withSeasons {
		fields["seasons"] = &graphql.Field{
			Type:    graphql.NewList(season),
			Resolve: func(graphql.ResolveParams) (any, error) { return []any{}, nil },
		}
	}
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: fields}),
	})
	require.NoError(t, err)
	return handler.New(&handler.Config{Schema: &schema})
}

// switchableUpstream serves whichever handler was stored last.
type switchableUpstream struct {
	current atomic.Pointer[http.Handler]
}

func (s *switchableUpstream) set(h http.Handler) {
	s.current.Store(&h)
}

func (s *switchableUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.current.Load()).ServeHTTP(w, r)
}

func unavailable() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
}

func newClient(t *testing.T, url string) *transport.Client {
	t.Helper()
	client, err := transport.New(transport.Config{Endpoint: url, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewManager_IntrospectsUpstream(t *testing.T) {
	server := httptest.NewServer(upstreamSchema(t, false))
	defer server.Close()

	m, err := NewManager(t.Context(), Config{Client: newClient(t, server.URL), Logger: testLogger()})
	require.NoError(t, err)

	snap := m.Current()
	assert.False(t, snap.Degraded)
	assert.NotEmpty(t, snap.Fingerprint)
	assert.Equal(t, []string{"episodes"}, snap.Model.ListFieldNames())

	elementType, ok := snap.Model.ElementTypeOf("episodes")
	require.True(t, ok)
	assert.Equal(t, "Episode", elementType)
}

func TestNewManager_AppliesFilter(t *testing.T) {
	server := httptest.NewServer(upstreamSchema(t, true))
	defer server.Close()

	m, err := NewManager(t.Context(), Config{
		Client: newClient(t, server.URL),
		Logger: testLogger(),
		Filter: schemafilter.Config{
			DenyListFields: []string{"season*"},
			DenyFields:     map[string][]string{"episode": {"name"}},
		},
	})
	require.NoError(t, err)

	snap := m.Current()
	require.False(t, snap.Degraded)
	assert.Equal(t, []string{"episodes"}, snap.Model.ListFieldNames())

	episode, ok := snap.Model.Type("Episode")
	require.True(t, ok)
	_, ok = episode.Field("name")
	assert.False(t, ok)
	_, ok = episode.Field("season")
	assert.True(t, ok)
}

func TestNewManager_DegradesWhenUpstreamUnavailable(t *testing.T) {
	upstream := &switchableUpstream{}
	upstream.set(unavailable())
	server := httptest.NewServer(upstream)
	defer server.Close()

	var changes atomic.Int32
	m, err := NewManager(t.Context(), Config{
		Client:   newClient(t, server.URL),
		Logger:   testLogger(),
		OnChange: func(*Snapshot) { changes.Add(1) },
	})
	require.NoError(t, err)

	snap := m.Current()
	assert.True(t, snap.Degraded)
	assert.True(t, snap.Model.Empty())
	assert.Empty(t, snap.Model.ListFieldNames())
	assert.Error(t, m.RefreshNow(t.Context()))
	assert.Equal(t, int32(0), changes.Load())

	upstream.set(upstreamSchema(t, false))
	require.NoError(t, m.RefreshNow(t.Context()))
	assert.False(t, m.Current().Degraded)
	assert.Equal(t, int32(1), changes.Load())
}

func TestRefreshNow_SwapsOnlyOnChange(t *testing.T) {
	upstream := &switchableUpstream{}
	upstream.set(upstreamSchema(t, false))
	server := httptest.NewServer(upstream)
	defer server.Close()

	var changes atomic.Int32
	m, err := NewManager(t.Context(), Config{
		Client:   newClient(t, server.URL),
		Logger:   testLogger(),
		OnChange: func(*Snapshot) { changes.Add(1) },
	})
	require.NoError(t, err)
	first := m.Current()
	assert.Equal(t, int32(1), changes.Load())

	require.NoError(t, m.RefreshNow(t.Context()))
	assert.Same(t, first, m.Current())
	assert.Equal(t, int32(1), changes.Load())

	upstream.set(upstreamSchema(t, true))
	require.NoError(t, m.RefreshNow(t.Context()))
	assert.NotEqual(t, first.Fingerprint, m.Current().Fingerprint)
	assert.ElementsMatch(t, []string{"episodes", "seasons"}, m.Current().Model.ListFieldNames())
	assert.Equal(t, int32(2), changes.Load())

	upstream.set(unavailable())
	assert.Error(t, m.RefreshNow(t.Context()))
	assert.False(t, m.Current().Degraded, "a failed refresh keeps the last good snapshot")
}

func TestRefreshLoop_PicksUpChanges(t *testing.T) {
	upstream := &switchableUpstream{}
	upstream.set(upstreamSchema(t, false))
	server := httptest.NewServer(upstream)
	defer server.Close()

	m, err := NewManager(t.Context(), Config{
		Client:      newClient(t, server.URL),
		Logger:      testLogger(),
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	m.Start(ctx)

	upstream.set(upstreamSchema(t, true))
	require.Eventually(t, func() bool {
		return len(m.Current().Model.ListFieldNames()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, m.Wait(waitCtx))
}

func TestNewManager_RequiresClient(t *testing.T) {
	_, err := NewManager(t.Context(), Config{})
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	payload := []byte(`{"__schema": {"queryType": {"name": "Query"}, "types": [
		{"kind": "OBJECT", "name": "Query", "fields": [
			{"name": "items", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Item"}}}
		]},
		{"kind": "OBJECT", "name": "Item", "fields": [
			{"name": "id", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "ID"}}}
		]}
	]}}`)
	nullable := []byte(`{"__schema": {"queryType": {"name": "Query"}, "types": [
		{"kind": "OBJECT", "name": "Query", "fields": [
			{"name": "items", "type": {"kind": "LIST", "ofType": {"kind": "OBJECT", "name": "Item"}}}
		]},
		{"kind": "OBJECT", "name": "Item", "fields": [
			{"name": "id", "type": {"kind": "SCALAR", "name": "ID"}}
		]}
	]}}`)

	a := Fingerprint(schemamodel.Parse(payload))
	assert.Equal(t, a, Fingerprint(schemamodel.Parse(payload)))
	assert.NotEqual(t, a, Fingerprint(schemamodel.Parse(nullable)))
	assert.Len(t, a, 64)
}

func TestNextInterval(t *testing.T) {
	minInterval := 10 * time.Second
	maxInterval := 30 * time.Second

	assert.Equal(t, minInterval, nextInterval(0, minInterval, maxInterval))
	assert.Equal(t, 15*time.Second, nextInterval(minInterval, minInterval, maxInterval))
	assert.Equal(t, maxInterval, nextInterval(25*time.Second, minInterval, maxInterval))
}
