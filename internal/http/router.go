// Package httpapi wires the HTTP transport (Gin) to the verification
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, compression, CORS, security headers, authentication,
// idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/veritas-backend/internal/config"
	"github.com/tbourn/veritas-backend/internal/http/handlers"
	"github.com/tbourn/veritas-backend/internal/http/middleware"
	"github.com/tbourn/veritas-backend/internal/repo"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		"X-Client-ID", "X-Confirm", middleware.HeaderIdempotencyKey,
	}
	corsExpose = []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads carry base64 images)
//  6. Metrics
//  7. Gzip (SSE and /metrics excluded)
//  8. CORS and Security headers
//
// and on the API group:
//  1. JWT (only when a secret is configured)
//  2. Idempotency validator (before rate limiting to allow bypass on replay)
//  3. Rate limiter (per client/IP on writes, bypass on replay)
func RegisterRoutes(r *gin.Engine, deps handlers.Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.Verify.MaxUploadBodySize
	if maxBody <= 0 {
		maxBody = 12 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; streams must flush event by event
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(apiBase, "/events"), "/metrics"}),
	))

	// 8) CORS posture (allow all if none configured) and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStore:         true,
		RevalidatePaths: []string{joinPath(apiBase, "/history")},
		EnablePolicy:    true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = cfg.IdempotencyTTL
	}
	h := handlers.New(deps)

	api := groupWithPrefix(r, apiBase)
	if cfg.JWTSecret != "" {
		api.Use(middleware.JWT([]byte(cfg.JWTSecret)))
	}
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(deps),
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP(),
		middleware.WithSkip(middleware.SkipReads))
	api.Use(rl.Handler())
	{
		// Verification
		api.POST("/verify/text", h.VerifyText)
		api.POST("/verify/image", h.VerifyImage)
		api.POST("/verify/upload", h.VerifyUpload)
		api.POST("/verify/url", h.VerifyURL)

		// Surface state
		api.GET("/verdicts/last", h.LastVerdict)
		api.GET("/events/:surface", h.Events)

		// History
		api.GET("/history", h.ListHistory)
		api.DELETE("/history", h.ClearHistory)

		// Settings
		api.GET("/credential", h.GetCredential)
		api.PUT("/credential", h.PutCredential)
		api.DELETE("/credential", h.DeleteCredential)
		api.POST("/credential/test", h.TestCredential)
		api.GET("/onboarding", h.GetOnboarding)
		api.PUT("/onboarding", h.PutOnboarding)
	}
}

// idempotencyLookup reports recorded verdicts from the idempotency table;
// nil disables replay detection. Storage errors are passed up for logging.
func idempotencyLookup(deps handlers.Deps) middleware.IdempotencyLookup {
	if deps.DB == nil {
		return nil
	}
	db := deps.DB
	return func(ctx context.Context, clientID, route, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, clientID, route, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return rec != nil, err
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     corsMethods,
				AllowHeaders:     corsHeaders,
				ExposeHeaders:    corsExpose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:           origins,
			AllowBrowserExtensions: true,
			AllowMethods:           corsMethods,
			AllowHeaders:           corsHeaders,
			ExposeHeaders:          corsExpose,
			AllowCredentials:       false,
			MaxAge:                 12 * time.Hour,
		}),
	}
}

// limitBody caps the request body size using http.MaxBytesReader. Reads
// past the cap fail, which JSON binding reports as a 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
