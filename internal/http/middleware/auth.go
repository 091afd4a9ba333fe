// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements optional bearer authentication. When a JWT secret is
// configured, every API request must carry "Authorization: Bearer <token>"
// signed with HS256; the token subject becomes the client identity used for
// idempotency records and rate-limit buckets.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ctxKeyClientID is the Gin context key holding the authenticated client.
const ctxKeyClientID = "clientID"

// headerClientID lets unauthenticated deployments (and tests) name a client.
const headerClientID = "X-Client-ID"

// anonymousClient is the identity used when nothing else is available.
const anonymousClient = "anonymous"

// ClientID returns the caller identity: the JWT subject when authenticated,
// else the X-Client-ID header, else "anonymous".
func ClientID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyClientID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(headerClientID)); h != "" {
			return h
		}
	}
	return anonymousClient
}

// JWT validates an HS256 bearer token and stores its subject as the client
// identity. Invalid or missing tokens get a 401 envelope.
func JWT(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}
		token, err := parser.Parse(strings.TrimSpace(bearer[len("Bearer "):]), func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "invalid token")
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			unauthorized(c, "token has no subject")
			return
		}
		c.Set(ctxKeyClientID, sub)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
