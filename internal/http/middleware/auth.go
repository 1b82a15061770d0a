// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token session authentication. The middleware is
// deliberately decoupled from the auth service: it takes a verifier callback,
// so the HTTP layer owns only token extraction and the 401 response shape.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thaltrack/journal-backend/internal/domain"
)

// ctxKeyUserID is the Gin context key under which the authenticated user id
// is stored. Downstream middleware (logging, rate limiting) and handlers read
// the same key.
const ctxKeyUserID = "userID"

// SessionVerifier resolves an opaque bearer token to its user. It must
// return an error for unknown or expired tokens.
type SessionVerifier func(ctx context.Context, token string) (*domain.User, error)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header; the empty string means no usable credential was presented.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SessionAuth returns a Gin middleware that authenticates requests with the
// given verifier and stores the resolved user id under the "userID" context
// key. Requests without a valid session are rejected with a 401 envelope:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "<uuid>",
//	  "code":       "unauthorized",
//	  "message":    "invalid or expired session"
//	}
func SessionAuth(verify SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		user, err := verify(c.Request.Context(), token)
		if err != nil || user == nil || user.ID == "" {
			abortUnauthorized(c, "invalid or expired session")
			return
		}
		c.Set(ctxKeyUserID, user.ID)
		c.Set("username", user.Username)
		c.Next()
	}
}

// UserIDFrom returns the authenticated user id stored by SessionAuth, or ""
// when the request is unauthenticated.
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
