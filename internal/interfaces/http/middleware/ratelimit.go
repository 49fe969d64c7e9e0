package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/cardvault/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per key.
// Idle buckets expire from the cache after two windows.
type RateLimiter struct {
	limit    int
	interval time.Duration // time to refill one token
	buckets  *gocache.Cache
}

// NewRateLimiter allows limit requests per window for each key
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		interval: window / time.Duration(max(limit, 1)),
		buckets:  gocache.New(2*window, window),
	}
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Every(rl.interval), rl.limit)
	if err := rl.buckets.Add(key, l, gocache.DefaultExpiration); err != nil {
		// Lost the race; use the bucket that won
		if v, ok := rl.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// Allow reports whether a request for key may proceed and consumes a token if so
func (rl *RateLimiter) Allow(key string) bool {
	l := rl.bucket(key)
	rl.buckets.SetDefault(key, l)
	return l.Allow()
}

// Remaining returns the whole tokens left for key
func (rl *RateLimiter) Remaining(key string) int {
	v, ok := rl.buckets.Get(key)
	if !ok {
		return rl.limit
	}
	return int(math.Max(0, math.Floor(v.(*rate.Limiter).Tokens())))
}

// RateLimitByKey limits requests per key; an empty key is not limited
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		allowed := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(limiter.interval.Seconds())))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many sync requests, please retry later",
				requestID(c),
			))
			return
		}
		c.Next()
	}
}

// RateLimit limits requests per client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// ByStore keys a limiter on the store_id path parameter
func ByStore(c *gin.Context) string {
	return c.Param("store_id")
}
