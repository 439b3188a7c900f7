package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"vitrine/internal/utils"
	"vitrine/internal/utils/logger"
)

var rateLog = logger.New("RATELIMIT")

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Counter stores the hits. Nil means an in-process counter.
	Counter Counter

	DefaultLimit EndpointLimit

	// Keyed by "METHOD:/route/pattern".
	EndpointLimits map[string]EndpointLimit
}

// EndpointLimit allows Limit requests per second, averaged over Window,
// with Burst requests at once.
type EndpointLimit struct {
	Limit  rate.Limit
	Burst  int
	Window time.Duration
}

// PerWindow builds a limit of n requests per window.
func PerWindow(n int, window time.Duration) EndpointLimit {
	return EndpointLimit{
		Limit:  rate.Limit(float64(n) / window.Seconds()),
		Burst:  n,
		Window: window,
	}
}

// Max is the number of requests allowed in one window.
func (l EndpointLimit) Max() int {
	return int(math.Round(float64(l.Limit) * l.Window.Seconds()))
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Counter records a hit for key and decides whether it is allowed.
type Counter interface {
	Hit(ctx context.Context, key string, limit EndpointLimit) (Decision, error)
}

// DefaultEndpointLimits returns the built-in limits for routes mounted
// under prefix.
func DefaultEndpointLimits(prefix string) map[string]EndpointLimit {
	return map[string]EndpointLimit{
		// Authentication endpoints - stricter limits
		"POST:" + prefix + "/auth/login":    PerWindow(5, time.Minute),
		"POST:" + prefix + "/auth/register": PerWindow(3, time.Hour),

		// File upload - stricter limits
		"POST:" + prefix + "/upload": PerWindow(20, time.Minute),
	}
}

// CreateDefaultRateLimitConfig creates a default rate limit configuration
func CreateDefaultRateLimitConfig(counter Counter, prefix string) RateLimitConfig {
	return RateLimitConfig{
		Counter:        counter,
		DefaultLimit:   PerWindow(100, time.Minute),
		EndpointLimits: DefaultEndpointLimits(prefix),
	}
}

// RateLimiter creates a new rate limiting middleware
func RateLimiter(config RateLimitConfig) echo.MiddlewareFunc {
	if config.Counter == nil {
		config.Counter = NewMemoryCounter()
	}
	if config.DefaultLimit.Window == 0 {
		config.DefaultLimit = PerWindow(100, time.Minute)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			endpointKey := getEndpointKey(c)
			limit := getLimitConfig(endpointKey, config)
			key := utils.RateLimitKey(getClientID(c), endpointKey)

			d, err := config.Counter.Hit(c.Request().Context(), key, limit)
			if err != nil {
				// Fail open.
				rateLog.Warn("Rate limit check failed for %s: %v", key, err)
				return next(c)
			}

			setRateLimitHeaders(c, limit, d)

			if !d.Allowed {
				retryAfter := int(math.Ceil(time.Until(d.Reset).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded. Try again later.",
					"retry_after": retryAfter,
				})
			}

			return next(c)
		}
	}
}

// getClientID returns a unique identifier for the client
func getClientID(c echo.Context) string {
	if userID := GetUserID(c); userID != "" {
		return fmt.Sprintf("user:%s", userID)
	}
	// Forwarding headers count only through the server's IPExtractor.
	return fmt.Sprintf("ip:%s", c.RealIP())
}

// getEndpointKey uses the matched route pattern so /delete-service/:id
// shares one counter across ids.
func getEndpointKey(c echo.Context) string {
	path := c.Path()
	if path == "" {
		path = c.Request().URL.Path
	}
	return fmt.Sprintf("%s:%s", c.Request().Method, path)
}

func getLimitConfig(endpointKey string, config RateLimitConfig) EndpointLimit {
	if limit, exists := config.EndpointLimits[endpointKey]; exists {
		return limit
	}
	return config.DefaultLimit
}

func setRateLimitHeaders(c echo.Context, limit EndpointLimit, d Decision) {
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Max()))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}

// RedisCounter keeps fixed-window counters in Redis, shared by every
// instance of the server.
type RedisCounter struct {
	client *utils.RedisClient
}

func NewRedisCounter(client *utils.RedisClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, limit EndpointLimit) (Decision, error) {
	count, ttl, err := r.client.IncrementRateLimit(ctx, key, limit.Window)
	if err != nil {
		return Decision{}, err
	}
	max := limit.Max()
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= max,
		Remaining: remaining,
		Reset:     time.Now().Add(ttl),
	}, nil
}

// MemoryCounter keeps one token bucket per key in process memory. Buckets
// idle for longer than their window are dropped.
type MemoryCounter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *MemoryCounter) Hit(_ context.Context, key string, limit EndpointLimit) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(limit.Limit, limit.Burst), window: limit.Window}
		m.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	reset := now
	if tokens < 1 && limit.Limit > 0 {
		wait := time.Duration((1 - tokens) / float64(limit.Limit) * float64(time.Second))
		reset = now.Add(wait)
	}

	return Decision{Allowed: allowed, Remaining: remaining, Reset: reset}, nil
}

func (m *MemoryCounter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for key, b := range m.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(m.buckets, key)
		}
	}
}
