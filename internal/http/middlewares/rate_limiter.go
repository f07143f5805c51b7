package middlewares

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// LimitStore counts hits per key in fixed windows.
type LimitStore interface {
	// Hit records one request for key and returns the count in the current
	// window plus the time left in it.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

type RateLimiter struct {
	store     LimitStore
	limit     int
	window    time.Duration
	log       *slog.Logger
	onLimited func(route string)
}

func NewRateLimiter(store LimitStore, limit int, window time.Duration, log *slog.Logger, onLimited func(route string)) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{store: store, limit: limit, window: window, log: log, onLimited: onLimited}
}

// RateLimiterMiddleware enforces the limit for a derived key. A store outage
// lets the request through.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		count, ttl, err := rl.store.Hit(c.Request.Context(), key, rl.window)
		if err != nil {
			rl.log.WarnContext(c.Request.Context(), "rate limit store unavailable", "err", err)
			c.Next()
			return
		}

		if count > int64(rl.limit) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			if retryAfter < 0 {
				retryAfter = 0
			}

			if rl.onLimited != nil {
				rl.onLimited(c.FullPath())
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.")
			return
		}

		c.Next()
	}
}

// for unauthenticated endpoints: rate limit by IP and route
func KeyByIPAndRoute(c *gin.Context) string {
	return "rl:" + c.FullPath() + ":" + clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}

// MemoryLimitStore keeps windows in process. Counts are per instance.
type MemoryLimitStore struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	count     int64
	windowEnd time.Time
}

func NewMemoryLimitStore() *MemoryLimitStore {
	return &MemoryLimitStore{
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (s *MemoryLimitStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.clients[key]
	if !ok || !now.Before(b.windowEnd) {
		// drop expired buckets lazily so the map stays bounded by active keys
		if !ok && len(s.clients) > 10000 {
			s.sweep(now)
		}
		b = &clientBucket{windowEnd: now.Add(window)}
		s.clients[key] = b
	}

	b.count++
	return b.count, b.windowEnd.Sub(now), nil
}

func (s *MemoryLimitStore) sweep(now time.Time) {
	for k, b := range s.clients {
		if !now.Before(b.windowEnd) {
			delete(s.clients, k)
		}
	}
}

// RedisLimitStore shares windows across instances with INCR + EXPIRE NX (Redis 7+).
type RedisLimitStore struct {
	rdb redis.Cmdable
}

func NewRedisLimitStore(rdb redis.Cmdable) *RedisLimitStore {
	return &RedisLimitStore{rdb: rdb}
}

func (s *RedisLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		// NX keeps the first hit's expiry; later hits do not extend the window
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit hit: %w", err)
	}

	return incr.Val(), ttl.Val(), nil
}
