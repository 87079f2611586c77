package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate per client.
	RequestsPerSecond float64

	// Burst is the bucket capacity.
	Burst int

	// ClientTTL drops idle client buckets from memory.
	ClientTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		ClientTTL:         10 * time.Minute,
	}
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimitConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimitConfig().Burst
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = DefaultRateLimitConfig().ClientTTL
	}
	rl := &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Close stops the background cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.ClientTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	cutoff := rl.now().Add(-rl.cfg.ClientTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// allow takes one token for the client, reporting the remaining budget
// and how long until a token frees up when denied.
func (rl *RateLimiter) allow(client string) (bool, int, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{tokens: float64(rl.cfg.Burst)}
		rl.buckets[client] = b
	} else {
		elapsed := now.Sub(b.lastSeen).Seconds()
		b.tokens += elapsed * rl.cfg.RequestsPerSecond
		if b.tokens > float64(rl.cfg.Burst) {
			b.tokens = float64(rl.cfg.Burst)
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / rl.cfg.RequestsPerSecond * float64(time.Second))
		return false, 0, wait
	}
	b.tokens--
	return true, int(b.tokens), 0
}

// Middleware enforces the limit, answering 429 with Retry-After when a
// client exhausts its budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(rl.cfg.Burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, wait := rl.allow(clientKey(r))
		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			retry := int(wait.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
