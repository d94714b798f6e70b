package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// RateLimitStrategy selects how requests are grouped into buckets.
type RateLimitStrategy string

const (
	// StrategyIP keys requests by client IP.
	StrategyIP RateLimitStrategy = "ip"
	// StrategyCustom keys requests with RateLimitConfig.KeyExtractor.
	StrategyCustom RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Routes sharing a BucketName share the same limit.
	BucketName string

	// Maximum number of requests allowed in Window.
	Limit int
	Window time.Duration

	Strategy     RateLimitStrategy
	KeyExtractor func(*common.Context) (string, error)

	// ExceededHandler produces the result for rejected requests. When nil the
	// payload is {status: 429, error: "rate_limited"}.
	ExceededHandler common.Handler
}

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	// Allow reports whether the request is allowed, how many requests remain in the
	// window and how long until the window resets.
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

// FixedWindowLimiter counts requests per key in fixed windows.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewFixedWindowLimiter creates an empty limiter.
func NewFixedWindowLimiter() *FixedWindowLimiter {
	return &FixedWindowLimiter{windows: make(map[string]*window), now: time.Now}
}

// Allow implements RateLimiter. A non-positive window counts as one second and a
// non-positive limit as one request.
func (l *FixedWindowLimiter) Allow(key string, limit int, length time.Duration) (bool, int, time.Duration) {
	if length <= 0 {
		length = time.Second
	}
	if limit <= 0 {
		limit = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= length {
		w = &window{start: now}
		l.windows[key] = w
	}
	reset := length - now.Sub(w.start)

	if w.count >= limit {
		return false, 0, reset
	}
	w.count++
	return true, limit - w.count, reset
}

// RateLimit rejects requests over the configured limit with a 429 and sets the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers on every response.
func RateLimit(config RateLimitConfig, limiter RateLimiter, logger *zap.Logger) Middleware {
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		key := GetClientIP(c)
		if key == "" {
			key = extractClientIP(c.Request(), DefaultIPConfig())
		}
		if config.Strategy == StrategyCustom && config.KeyExtractor != nil {
			var err error
			key, err = config.KeyExtractor(c)
			if err != nil {
				logger.Error("Failed to extract rate limit key",
					zap.Error(err),
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
				)
				return common.Fail(err)
			}
		}

		allowed, remaining, reset := limiter.Allow(config.BucketName+":"+key, config.Limit, config.Window)

		h := c.ResponseWriter().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if allowed {
			return next()
		}

		h.Set("Retry-After", strconv.FormatInt(int64(reset.Round(time.Second)/time.Second), 10))
		logger.Warn("Rate limit exceeded",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("key", key),
			zap.Int("limit", config.Limit),
		)
		if config.ExceededHandler != nil {
			return config.ExceededHandler(c)
		}
		return common.Error(http.StatusTooManyRequests, "rate_limited")
	})
}

// Pace smooths traffic to at most rps requests per second by delaying requests
// instead of rejecting them. Requests wait for their slot before the rest of the chain runs.
func Pace(rps int, opts ...ratelimit.Option) Middleware {
	limiter := ratelimit.New(rps, opts...)
	return common.Wrap(func(c *common.Context, next common.Next) common.Result {
		limiter.Take()
		return next()
	})
}
