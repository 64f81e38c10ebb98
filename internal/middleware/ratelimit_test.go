package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: false})(okHandler())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_BurstExceeded(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled:     true,
		RPS:         0.001,
		Burst:       2,
		ExemptPaths: []string{"/health"},
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1000", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	clock := time.Unix(0, 0)
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled:    true,
		RPS:        1,
		Burst:      1,
		PerClient:  true,
		MaxClients: 1,
		now:        func() time.Time { return clock },
	})(okHandler())

	serve := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, serve("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, serve("10.0.0.2:5000"))

	// Only one client fits, so 10.0.0.1 was forgotten and starts with a full bucket.
	assert.Equal(t, http.StatusOK, serve("10.0.0.1:5002"))
}

func TestTokenBucket_Refills(t *testing.T) {
	clock := time.Unix(0, 0)
	bucket := newTokenBucket(2, 1, func() time.Time { return clock })

	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())

	clock = clock.Add(250 * time.Millisecond)
	assert.False(t, bucket.Allow())

	clock = clock.Add(250 * time.Millisecond)
	assert.True(t, bucket.Allow())

	clock = clock.Add(time.Hour)
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())
}

func TestTokenBucket_ZeroRateAdmitsAll(t *testing.T) {
	bucket := newTokenBucket(0, 0, time.Now)
	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow())
	}
}
