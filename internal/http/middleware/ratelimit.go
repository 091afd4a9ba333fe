// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-client token bucket that guards model quota.
// Buckets live in process memory; idle ones are swept at most once per idle
// TTL. Idempotent replays and, optionally, reads are let through for free.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const defaultBucketIdleTTL = 10 * time.Minute

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByClientOrIP keys buckets by the JWT subject, falling back to the
// client IP ("client:" and "ip:" prefixes). X-Client-ID is caller supplied
// and therefore ignored.
func KeyByClientOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := c.GetString(ctxKeyClientID); s != "" {
			return "client:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

// SkipReads exempts GET, HEAD and OPTIONS. Reads never reach a model, and
// event streams reconnect often.
func SkipReads(c *gin.Context) bool {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RateOption customizes a RateLimiter.
type RateOption func(*RateLimiter)

// WithSkip exempts requests for which fn returns true.
func WithSkip(fn func(*gin.Context) bool) RateOption {
	return func(rl *RateLimiter) { rl.skip = fn }
}

// WithIdleTTL sets how long an unused bucket is kept.
func WithIdleTTL(d time.Duration) RateOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.idleTTL = d
		}
	}
}

type bucket struct {
	lim  *rate.Limiter
	used time.Time
}

// RateLimiter is a keyed token-bucket limiter, safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc
	skip  func(*gin.Context) bool

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter refills rps tokens per second up to burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc, opts ...RateOption) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: defaultBucketIdleTTL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	rl.lastSweep = rl.now()
	return rl
}

// limiterFor returns key's limiter, creating it on first use.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.used) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.used = now
	return b.lim
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator marked this request as
// a replay.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler enforces the limit. Rejections are 429 too_many_requests with
// Retry-After set to the wait for the next token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || (rl.skip != nil && rl.skip(c)) {
			c.Next()
			return
		}

		lim := rl.limiterFor(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		rateLimited.Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter returns the whole seconds until lim yields a token, at least 1.
func retryAfter(lim *rate.Limiter) int {
	if lim.Limit() <= 0 {
		return 1
	}
	r := lim.Reserve()
	defer r.Cancel()
	return max(int(math.Ceil(r.Delay().Seconds())), 1)
}
