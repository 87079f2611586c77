package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 3})
	defer rl.Close()
	h := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(h, "10.0.0.1:5000")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, "3", doRequest(h, "10.0.0.1:5000").Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	defer rl.Close()
	h := rl.Middleware(okHandler())

	require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:5000").Code)
	require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:5000").Code)

	rec := doRequest(h, "10.0.0.1:5000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	defer rl.Close()
	h := rl.Middleware(okHandler())

	require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:5000").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:5001").Code)

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:5000").Code)
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	defer rl.Close()
	current := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }
	h := rl.Middleware(okHandler())

	require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:5000").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:5000").Code)

	current = current.Add(2 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:5000").Code)
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, ClientTTL: time.Minute})
	defer rl.Close()
	current := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }
	h := rl.Middleware(okHandler())

	doRequest(h, "10.0.0.1:5000")
	require.Len(t, rl.buckets, 1)

	current = current.Add(2 * time.Minute)
	rl.evictIdle()
	assert.Empty(t, rl.buckets)
}

func TestClientKey_StripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:61234"
	assert.Equal(t, "192.168.1.7", clientKey(req))

	req.RemoteAddr = "bare-host"
	assert.Equal(t, "bare-host", clientKey(req))
}
