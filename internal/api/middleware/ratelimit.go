package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter counts hits on a key within a fixed window
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps window counters in Redis
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a counter on client
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr increments key and makes it expire with the window
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter implements fixed window rate limiting
type RateLimiter struct {
	counter Counter
	logger  *zap.Logger
	now     func() time.Time
}

// RateLimitConfig defines rate limit rules
type RateLimitConfig struct {
	Name     string                     // Distinguishes limits sharing a key
	Requests int                        // Number of requests allowed
	Window   time.Duration              // Time window
	KeyFunc  func(*http.Request) string // Function to generate rate limit key
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(counter Counter, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		logger:  logger,
		now:     time.Now,
	}
}

// Limit returns a middleware that enforces config. Counter errors let the request through.
func (rl *RateLimiter) Limit(config RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := config.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, resetTime, err := rl.checkLimit(r.Context(), key, config)
			if err != nil {
				rl.logger.Error("Rate limit check failed", zap.String("limit", config.Name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				retry := int64(resetTime.Sub(rl.now()).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)

				rl.logger.Warn("Rate limit exceeded",
					zap.String("limit", config.Name),
					zap.String("key", key),
					zap.String("path", r.URL.Path),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) checkLimit(ctx context.Context, key string, config RateLimitConfig) (bool, int, time.Time, error) {
	now := rl.now()
	windowSeconds := int64(config.Window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	slot := now.Unix() / windowSeconds

	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", config.Name, key, slot)
	count, err := rl.counter.Incr(ctx, redisKey, config.Window)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	remaining := config.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetTime := time.Unix((slot+1)*windowSeconds, 0)

	return int(count) <= config.Requests, remaining, resetTime, nil
}

// GetRealIP extracts the client IP, preferring proxy headers
func GetRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// KeyByIP keys the limit on the client IP
func KeyByIP(r *http.Request) string {
	return "ip:" + GetRealIP(r)
}

// KeyBySession keys the limit on the session, falling back to the IP
func KeyBySession(r *http.Request) string {
	if id := SessionID(r.Context()); id != "" {
		return "session:" + id
	}
	return KeyByIP(r)
}

// GlobalRateLimit applies to every request from an IP
func GlobalRateLimit(perMinute int) RateLimitConfig {
	return RateLimitConfig{
		Name:     "global",
		Requests: perMinute,
		Window:   time.Minute,
		KeyFunc:  KeyByIP,
	}
}

// UploadRateLimit applies to file uploads (per session)
var UploadRateLimit = RateLimitConfig{
	Name:     "upload",
	Requests: 20,
	Window:   time.Hour,
	KeyFunc:  KeyBySession,
}

// JobCreationRateLimit applies to job submission (per session)
var JobCreationRateLimit = RateLimitConfig{
	Name:     "jobs",
	Requests: 20,
	Window:   time.Minute,
	KeyFunc:  KeyBySession,
}
