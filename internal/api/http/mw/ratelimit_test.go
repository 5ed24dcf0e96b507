package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, client
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/pool", nil)
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_AllowsUnderBurst(t *testing.T) {
	_, rdb := setupTestRedis(t)
	defer rdb.Close()

	m := NewRateLimit(rdb, RateLimitConfig{
		ByIP: RateBucket{RefillPerSec: 1, Burst: 5, TTL: time.Minute},
	})
	handler := m.Handler(okHandler())

	for i := 0; i < 5; i++ {
		rec := doRequest(handler, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst must pass", i)
	}
}

func TestRateLimit_BlocksWhenExhausted(t *testing.T) {
	_, rdb := setupTestRedis(t)
	defer rdb.Close()

	m := NewRateLimit(rdb, RateLimitConfig{
		ByIP: RateBucket{RefillPerSec: 1, Burst: 2, TTL: time.Minute},
	})
	handler := m.Handler(okHandler())

	require.Equal(t, http.StatusOK, doRequest(handler, "10.0.0.2").Code)
	require.Equal(t, http.StatusOK, doRequest(handler, "10.0.0.2").Code)

	rec := doRequest(handler, "10.0.0.2")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimit_BucketsAreIndependentPerIP(t *testing.T) {
	_, rdb := setupTestRedis(t)
	defer rdb.Close()

	m := NewRateLimit(rdb, RateLimitConfig{
		ByIP: RateBucket{RefillPerSec: 1, Burst: 1, TTL: time.Minute},
	})
	handler := m.Handler(okHandler())

	require.Equal(t, http.StatusOK, doRequest(handler, "10.0.0.3").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(handler, "10.0.0.3").Code)

	assert.Equal(t, http.StatusOK, doRequest(handler, "10.0.0.4").Code,
		"a different ip must have its own bucket")
}

func TestParseBucketReply(t *testing.T) {
	tests := []struct {
		name        string
		res         any
		wantAllowed bool
		wantTokens  float64
	}{
		{"allowed with integer tokens", []any{int64(1), int64(3)}, true, 3},
		{"denied", []any{int64(0), int64(0)}, false, 0},
		{"float tokens", []any{int64(1), float64(2.5)}, true, 2.5},
		{"not an array fails open", "OK", true, 0},
		{"short array fails open", []any{int64(0)}, true, 0},
		{"wrong element type fails open", []any{"1", "3"}, true, 0},
		{"nil fails open", nil, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, tokens := parseBucketReply(tt.res)
			assert.Equal(t, tt.wantAllowed, allowed)
			assert.Equal(t, tt.wantTokens, tokens)
		})
	}
}

func TestRateLimit_FailsOpenWhenRedisDown(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	defer rdb.Close()

	m := NewRateLimit(rdb, RateLimitConfig{
		ByIP: RateBucket{RefillPerSec: 1, Burst: 1, TTL: time.Minute},
	})
	handler := m.Handler(okHandler())

	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, "10.0.0.5").Code,
			"limiter outage must not take the API down")
	}
}
