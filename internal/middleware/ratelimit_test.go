package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLocalLimiter(capacity int, perSec float64) (*RateLimiter, *fakeClock) {
	logger, _ := test.NewNullLogger()
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	l := NewRateLimiter(config.RateLimitConfig{Capacity: capacity, RefillPerSec: perSec}, nil, logger)
	l.now = clock.Now
	return l, clock
}

func TestRateLimiter_LocalBucket(t *testing.T) {
	l, clock := newLocalLimiter(3, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Allow(ctx, "k")
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, int64(2-i), d.Remaining)
	}

	d := l.Allow(ctx, "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)

	assert.True(t, l.Allow(ctx, "other").Allowed, "buckets are per key")

	clock.Advance(1500 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "k").Allowed)
	assert.False(t, l.Allow(ctx, "k").Allowed)

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "k").Allowed, "refill caps at capacity")
	}
	assert.False(t, l.Allow(ctx, "k").Allowed)
}

func TestRateLimiter_NoRefill(t *testing.T) {
	l, clock := newLocalLimiter(1, 0)

	assert.True(t, l.Allow(context.Background(), "k").Allowed)
	clock.Advance(time.Hour)
	d := l.Allow(context.Background(), "k")
	assert.False(t, d.Allowed)
	assert.Zero(t, d.RetryAfter)
}

func TestRateLimiter_FallsBackWhenRedisFails(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	l := NewRateLimiter(config.RateLimitConfig{Capacity: 1, RefillPerSec: 0}, rdb, logger)

	assert.True(t, l.Allow(context.Background(), "k").Allowed)
	assert.False(t, l.Allow(context.Background(), "k").Allowed)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "falling back")
}

func TestRateLimiter_Middleware(t *testing.T) {
	l, _ := newLocalLimiter(2, 0)
	handler := l.Limit("verify")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/verify", nil)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, call("198.51.100.1:1000").Code)
	rr := call("198.51.100.1:2000")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = call("198.51.100.1:3000")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("Retry-After"))
	assert.Equal(t, models.CodeRateLimited, decodeError(t, rr).Code)

	assert.Equal(t, http.StatusOK, call("198.51.100.2:1000").Code, "other clients keep their own bucket")
}

func TestRateKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	assert.Equal(t, "museum:ratelimit:webhook:ip:198.51.100.7", rateKey("webhook", req))

	req = req.WithContext(WithPrincipal(req.Context(), &models.Principal{UserID: "user-1"}))
	assert.Equal(t, "museum:ratelimit:verify:ip:198.51.100.7:user:user-1", rateKey("verify", req))
}
