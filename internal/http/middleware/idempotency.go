// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the verification POSTs. It
// validates an Idempotency-Key request header, optionally asks a lookup
// whether a verdict is already recorded for (client, route, key), and
// annotates the request context so downstream handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - skip rate limiting when a replay is served (IsRateBypass)
//
// The middleware never writes the replayed body itself; the handler reads the
// stored verdict and answers with it.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header that carries the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := c.GetString(ctxKeyIdemKey)
	return k, k != ""
}

// IsReplay reports whether a verdict is already recorded for this request.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// RouteKey is the route component of an idempotency record: the registered
// route pattern, or the raw path when no route matched.
func RouteKey(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 uses 200
	Pattern *regexp.Regexp // nil uses ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup answers whether an unexpired verdict is recorded for
// (clientID, route, key) at now.
type IdempotencyLookup func(ctx context.Context, clientID, route, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator accepts an Idempotency-Key on POST requests only; a
// verification is the one non-idempotent operation, and the header is
// ignored elsewhere. An invalid key is rejected with 400
// bad_idempotency_key. When lookup reports a recorded verdict the request is
// flagged as a replay and exempted from rate limiting. Lookup errors count
// as misses so a storage hiccup never blocks a verification.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			hit, err := lookup(c.Request.Context(), ClientID(c), RouteKey(c), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if hit && err == nil {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
