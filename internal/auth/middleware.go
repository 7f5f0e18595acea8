package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/session"
	"classattend/internal/users"
)

// Context keys.
const (
	claimsKey  = "claims"
	sessionKey = "session"
)

// SessionCookie is the cookie a browser session token may travel in.
const SessionCookie = "session_token"

// SessionValidator resolves a session token.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (session.Session, error)
}

func bearer(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

// DeviceAuth enforces bearer access JWTs signed with HS256.
func DeviceAuth(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := signer.Parse(tokenStr, KindAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// SessionAuth requires a valid staff session token, from the bearer header
// or the session cookie.
func SessionAuth(v SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			token, _ = c.Cookie(SessionCookie)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		sess, err := v.Validate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrInvalid) || apperr.Is(err, apperr.KindNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session invalid or expired"})
			return
		default:
			c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the session's role carries p.
// It must run after SessionAuth.
func RequirePermission(p users.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		if !users.Role(sess.User.Role).Can(p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied", "permission": p.String()})
			return
		}
		c.Next()
	}
}

// CurrentSession returns the session set by SessionAuth.
func CurrentSession(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return session.Session{}, false
	}
	sess, ok := v.(session.Session)
	return sess, ok
}

// CurrentDevice returns the claims set by DeviceAuth.
func CurrentDevice(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
