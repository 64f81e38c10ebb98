package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultRateLimitClients bounds how many per-client buckets are remembered.
const defaultRateLimitClients = 4096

// RateLimitConfig configures token bucket limiting, either one bucket for the whole
// server or one per client address.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	// PerClient keys buckets by the remote IP. The least recently seen clients are
	// forgotten once MaxClients is reached.
	PerClient  bool
	MaxClients int
	// ExemptPaths bypass the limiter, e.g. health probes.
	ExemptPaths []string

	now func() time.Time
}

// RateLimitMiddleware rejects requests with 429 once their bucket is empty.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	buckets := newBucketSet(cfg)
	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = true
	}
	retryAfter := "1"
	if cfg.RPS > 0 && cfg.RPS < 1 {
		retryAfter = strconv.Itoa(int(1/cfg.RPS + 0.5))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !exempt[r.URL.Path] && !buckets.forRequest(r).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprint(w, `{"error":"rate limit exceeded"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucketSet struct {
	cfg     RateLimitConfig
	global  *tokenBucket
	mu      sync.Mutex
	clients *lru.Cache[string, *tokenBucket]
}

func newBucketSet(cfg RateLimitConfig) *bucketSet {
	set := &bucketSet{cfg: cfg}
	if !cfg.PerClient {
		set.global = newTokenBucket(cfg.RPS, cfg.Burst, cfg.now)
		return set
	}
	size := cfg.MaxClients
	if size <= 0 {
		size = defaultRateLimitClients
	}
	// lru.New only fails for a non-positive size.
	set.clients, _ = lru.New[string, *tokenBucket](size)
	return set
}

func (s *bucketSet) forRequest(r *http.Request) *tokenBucket {
	if s.global != nil {
		return s.global
	}
	key := clientAddr(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.clients.Get(key); ok {
		return bucket
	}
	bucket := newTokenBucket(s.cfg.RPS, s.cfg.Burst, s.cfg.now)
	s.clients.Add(key, bucket)
	return bucket
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type tokenBucket struct {
	mu     sync.Mutex
	now    func() time.Time
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rps float64, burst int, now func() time.Time) *tokenBucket {
	b := &tokenBucket{now: now, last: now()}
	if rps > 0 && burst > 0 {
		b.rate = rps
		b.burst = float64(burst)
		b.tokens = float64(burst)
	}
	return b
}

// Allow refills the bucket for the time since the last call and takes one token.
// A bucket without rate or burst admits everything.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 || b.burst <= 0 {
		return true
	}

	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.burst, b.tokens+elapsed*b.rate)
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
