// setup.go provides middleware for authenticating first-run setup requests.
// Setup endpoints use a separate authentication scheme ("Authorization: SetupToken <token>")
// that is independent of the session cookie chain. The setup token is generated once at
// first boot and invalidated after setup completes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/db/models"
)

// SetupTokenContextKey is the context key set when a request is authenticated via setup token.
const SetupTokenContextKey = "is_setup_request"

// SetupTokenScheme is the Authorization scheme for setup requests.
const SetupTokenScheme = "SetupToken"

// setupAttemptsPerMinute bounds setup token guesses per IP.
const setupAttemptsPerMinute = 5

// SettingsReader loads the system settings row.
type SettingsReader interface {
	Get(ctx context.Context) (*models.SystemSettings, error)
}

// SetupTokenMiddleware validates setup token authentication. It checks that:
//  1. Setup has not already been completed (403 if it has).
//  2. The IP is not rate-limited (5 attempts per minute).
//  3. The Authorization header contains a "SetupToken <token>" value.
//  4. The token matches the bcrypt hash stored in system_settings.
//
// On success, sets SetupTokenContextKey=true in the gin context and calls c.Next().
func SetupTokenMiddleware(settings SettingsReader) gin.HandlerFunc {
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: setupAttemptsPerMinute,
		BurstSize:         setupAttemptsPerMinute,
		CleanupInterval:   5 * time.Minute,
	})

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		s, err := settings.Get(ctx)
		if err != nil {
			slog.Error("setup middleware: failed to check setup status", "error", err)
			response.AbortDetail(c, http.StatusInternalServerError, "failed to check setup status")
			return
		}
		if s.SetupCompleted {
			response.AbortDetail(c, http.StatusForbidden,
				"setup has already been completed; these endpoints are permanently disabled")
			return
		}

		// Rate limit before doing any bcrypt work.
		clientIP := c.ClientIP()
		if d, _ := limiter.Allow(ctx, clientIP); !d.Allowed {
			slog.Warn("setup middleware: rate limit exceeded", "ip", clientIP)
			response.AbortDetail(c, http.StatusTooManyRequests, "too many setup token attempts; try again in one minute")
			return
		}

		rawToken, err := auth.ExtractAuthToken(c.GetHeader("Authorization"), SetupTokenScheme)
		if err != nil {
			response.AbortDetail(c, http.StatusUnauthorized, "use: Authorization: SetupToken <token>")
			return
		}

		if s.SetupTokenHash == nil || *s.SetupTokenHash == "" {
			response.AbortDetail(c, http.StatusForbidden,
				"no setup token has been generated; restart the server to generate one")
			return
		}

		if !auth.CheckPassword(*s.SetupTokenHash, rawToken) {
			slog.Warn("setup middleware: invalid setup token", "ip", clientIP)
			response.AbortDetail(c, http.StatusUnauthorized, "invalid setup token")
			return
		}

		c.Set(SetupTokenContextKey, true)
		c.Next()
	}
}
