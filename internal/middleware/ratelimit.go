// ratelimit.go provides Gin middleware that enforces per-client token-bucket rate limits,
// returning 429 responses when the configured requests-per-minute threshold is exceeded.
//
// Two limiters are available: an in-process limiter (one x/time/rate bucket per client,
// held in an expiring go-cache) and a Redis-backed GCRA limiter shared by every replica.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/telemetry"
)

// Rate limit scopes used as metric labels.
const (
	ScopePublic = "public"
	ScopeAuth   = "auth"
)

// idleTTL is how long an untouched in-process bucket is kept.
const idleTTL = 10 * time.Minute

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often expired buckets are purged
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for login, refresh, and registration
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10, // 10 login attempts per minute
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Limit() int
}

// RateLimiter is the in-process token bucket limiter.
type RateLimiter struct {
	config  RateLimitConfig
	buckets *gocache.Cache
	mu      sync.Mutex
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: gocache.New(idleTTL, config.CleanupInterval),
		now:     time.Now,
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		// Touch to push the idle expiry forward.
		rl.buckets.SetDefault(key, lim)
		return lim
	}
	perSecond := rate.Limit(float64(rl.config.RequestsPerMinute) / 60.0)
	lim := rate.NewLimiter(perSecond, rl.config.BurstSize)
	rl.buckets.SetDefault(key, lim)
	return lim
}

// Allow checks if a request from the given key should be allowed.
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	lim := rl.bucket(key)
	now := rl.now()

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: remaining(lim.TokensAt(now))}, nil
}

// Limit returns the configured requests per minute.
func (rl *RateLimiter) Limit() int {
	return rl.config.RequestsPerMinute
}

// RemainingTokens returns how many tokens are left for a key
func (rl *RateLimiter) RemainingTokens(key string) int {
	if v, ok := rl.buckets.Get(key); ok {
		return remaining(v.(*rate.Limiter).TokensAt(rl.now()))
	}
	return rl.config.BurstSize
}

func remaining(tokens float64) int {
	if tokens < 0 {
		return 0
	}
	return int(math.Floor(tokens))
}

// RedisRateLimiter shares limits across replicas through Redis. When Redis is unreachable
// it falls back to an in-process limiter rather than rejecting traffic.
type RedisRateLimiter struct {
	limiter  *redis_rate.Limiter
	limit    redis_rate.Limit
	prefix   string
	fallback *RateLimiter
}

// NewRedisRateLimiter creates a Redis-backed limiter. prefix namespaces keys so several
// limiters can share one Redis database.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		prefix:   "ratelimit:" + prefix + ":",
		fallback: NewRateLimiter(config),
	}
}

// Allow checks if a request from the given key should be allowed.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		slog.Warn("redis rate limiter unavailable, using in-process limiter", "error", err)
		return rl.fallback.Allow(ctx, key)
	}
	if res.Allowed == 0 {
		return Decision{Remaining: res.Remaining, RetryAfter: res.RetryAfter}, nil
	}
	return Decision{Allowed: true, Remaining: res.Remaining}, nil
}

// Limit returns the configured requests per minute.
func (rl *RedisRateLimiter) Limit() int {
	return rl.limit.Rate
}

// NewLimiter returns a Redis-backed limiter when client is non-nil and an in-process one
// otherwise.
func NewLimiter(client redis.UniversalClient, prefix string, config RateLimitConfig) Limiter {
	if client == nil {
		return NewRateLimiter(config)
	}
	return NewRedisRateLimiter(client, prefix, config)
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests. scope labels
// rejections in the rate_limit_rejections_total metric.
func RateLimitMiddleware(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// Never block traffic on a limiter fault.
			slog.Warn("rate limiter error", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			telemetry.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
			retry := d.RetryAfter
			if retry < time.Second {
				retry = time.Second
			}
			response.Abort(c, apperr.RateLimited("rate limit exceeded", retry))
			return
		}

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: user_id > IP address
func getRateLimitKey(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
