// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the structured access logger. It
// scrubs secrets and obvious PII from request metadata before anything is
// written, and attaches a request-scoped zerolog.Logger for handlers
// (see LoggerFrom).
//
// Scrubbing:
//   - Credential headers are fully masked: Authorization, Cookie, Set-Cookie,
//     x-goog-api-key, X-Veritas-Key, plus RedactOptions.MaskHeaders.
//   - Cloud API keys (AIza...), bearer JWTs and email addresses are replaced
//     in query strings and the remaining header values.
//   - Bodies are never logged: they carry claims and uploaded images.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra headers whose values are replaced with
// "[REDACTED]". Matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	apiKeyRE = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`)
	jwtRE    = regexp.MustCompile(`eyJ[0-9A-Za-z_\-]+\.[0-9A-Za-z_\-]+\.[0-9A-Za-z_\-]*`)
	emailRE  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// Redact replaces API keys, JWTs and email addresses in s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	// Keys first: an API key never contains '@' but a JWT segment may look
	// like part of an address.
	s = apiKeyRE.ReplaceAllString(s, "[REDACTED:key]")
	s = jwtRE.ReplaceAllString(s, "[REDACTED:token]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return s
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed. Level follows the outcome: error for 5xx or
// collected gin errors, warn for 4xx, info otherwise.
//
// Place it after RequestID() so logs carry the correlation ID.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":  {},
		"cookie":         {},
		"set-cookie":     {},
		"x-goog-api-key": {},
		"x-veritas-key":  {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(Redact(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		ev := l.Info()
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", Redact(c.Errors.String()))
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		}

		ev.
			Str("client_id", ClientID(c)).
			Str("remote_ip", c.ClientIP()).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Int64("bytes_in", c.Request.ContentLength).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
