// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → RateLimit → Auth → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth resolves the caller's Identity; authorization reads from that context.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
)

// Session cookie names.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const identityKey = "identity"

// IdentityResolver turns an access token into the caller's Identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Identity, error)
}

// AccessToken extracts the access token from the access_token cookie, falling back to an
// "Authorization: Bearer" header.
func AccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	token, err := auth.ExtractAuthToken(c.GetHeader("Authorization"), "Bearer")
	if err != nil {
		return ""
	}
	return token
}

// AuthMiddleware requires a valid access token and stores the caller's Identity.
func AuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := AccessToken(c)
		if token == "" {
			response.AbortDetail(c, http.StatusUnauthorized, "not authenticated")
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				response.Abort(c, err)
				return
			}
			// One message for every credential failure.
			response.AbortDetail(c, http.StatusUnauthorized, "not authenticated")
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

// OptionalAuthMiddleware stores the caller's Identity when a valid token is present and
// continues anonymously otherwise.
func OptionalAuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := AccessToken(c); token != "" {
			if id, err := resolver.Resolve(c.Request.Context(), token); err == nil {
				SetIdentity(c, id)
			}
		}
		c.Next()
	}
}

// SetIdentity stores id on the request context.
func SetIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(identityKey, id)
	if id != nil && id.User != nil {
		c.Set("user", id.User)
		c.Set("user_id", id.User.UUID)
	}
}

// GetIdentity returns the caller's Identity, or nil for anonymous requests.
func GetIdentity(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

// IsSecureRequest reports whether the request arrived over TLS, directly or via a proxy.
func IsSecureRequest(c *gin.Context) bool {
	return c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
