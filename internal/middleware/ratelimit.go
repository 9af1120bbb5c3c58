package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
	"museum-ticketing-platform/internal/models"
)

const rateKeyPrefix = "museum:ratelimit"

// tokenBucketScript refills fractional tokens by elapsed time and takes one.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local per_ms = tonumber(ARGV[3])
	local ttl_seconds = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'updated_ms')
	local tokens = tonumber(state[1])
	local updated = tonumber(state[2])
	if tokens == nil or updated == nil then
		tokens = capacity
		updated = now_ms
	end

	local elapsed = math.max(0, now_ms - updated)
	tokens = math.min(capacity, tokens + elapsed * per_ms)

	local allowed = 0
	local retry_ms = 0
	if tokens >= 1 then
		allowed = 1
		tokens = tokens - 1
	elseif per_ms > 0 then
		retry_ms = math.ceil((1 - tokens) / per_ms)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'updated_ms', now_ms)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, math.floor(tokens), retry_ms }
`)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter is a token bucket keyed per client. Buckets live in Redis when
// a client is configured; when Redis is unset or failing an in-process bucket
// is used instead.
type RateLimiter struct {
	rdb      *redis.Client
	capacity int
	perSec   float64
	now      func() time.Time
	logger   *logrus.Logger

	mu    sync.Mutex
	local map[string]*bucket
}

type bucket struct {
	tokens  float64
	updated time.Time
}

// NewRateLimiter creates a limiter; rdb may be nil
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, logger *logrus.Logger) *RateLimiter {
	capacity := cfg.Capacity
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		rdb:      rdb,
		capacity: capacity,
		perSec:   cfg.RefillPerSec,
		now:      time.Now,
		logger:   logger,
		local:    make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket
func (l *RateLimiter) Allow(ctx context.Context, key string) Decision {
	if l.rdb != nil {
		d, err := l.allowRedis(ctx, key)
		if err == nil {
			return d
		}
		l.logger.WithError(err).WithField("key", key).Warn("Rate limiter falling back to local bucket")
	}
	return l.allowLocal(key)
}

func (l *RateLimiter) allowRedis(ctx context.Context, key string) (Decision, error) {
	ttl := int64(60)
	if l.perSec > 0 {
		ttl = max(ttl, int64(math.Ceil(float64(l.capacity)/l.perSec))+1)
	}

	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
		l.now().UnixMilli(),
		l.capacity,
		l.perSec/1000,
		ttl,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, redis.Nil
	}

	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

func (l *RateLimiter) allowLocal(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.local[key]
	if !ok {
		b = &bucket{tokens: float64(l.capacity), updated: now}
		l.local[key] = b
	}

	if elapsed := now.Sub(b.updated).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(l.capacity), b.tokens+elapsed*l.perSec)
	}
	b.updated = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int64(b.tokens)}
	}

	var retry time.Duration
	if l.perSec > 0 {
		retry = time.Duration(math.Ceil((1-b.tokens)/l.perSec*1000)) * time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}
}

// Limit rate limits a route group. Buckets are per scope and client IP, plus
// user when authenticated.
func (l *RateLimiter) Limit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateKey(scope, r)
			d := l.Allow(r.Context(), key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				l.logger.WithFields(logrus.Fields{
					"key":         key,
					"retry_after": secs,
				}).Info("Rate limit exceeded")
				writeError(w, http.StatusTooManyRequests, models.CodeRateLimited, "Too many requests, please retry later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(scope string, r *http.Request) string {
	parts := []string{rateKeyPrefix, scope, "ip", clientIP(r)}
	if p := PrincipalFrom(r.Context()); p != nil {
		parts = append(parts, "user", p.UserID)
	}
	return strings.Join(parts, ":")
}

// clientIP strips the port from RemoteAddr; chi's RealIP runs first
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
