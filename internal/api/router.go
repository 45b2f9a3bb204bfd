// Package api wires together all HTTP routes for the event registry backend.
//
// Route grouping:
//   - /api/v1/public and /api/v1/email-verification serve anonymous registrants. They are
//     rate limited, and a session, when present, links the submission to its user.
//   - /api/v1/login, /register and friends issue sessions under a stricter limit.
//   - /api/v1/admin requires a session. Every handler authorizes against the policy
//     itself because the owning organizer is usually only known after a lookup.
//   - /api/v1/setup is gated by the one-time setup token and closes for good once the
//     first super admin exists.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/event-registry/event-registry/internal/api/admin"
	"github.com/event-registry/event-registry/internal/api/public"
	"github.com/event-registry/event-registry/internal/api/setup"
	"github.com/event-registry/event-registry/internal/audit"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/auth/oidc"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/jobs"
	"github.com/event-registry/event-registry/internal/mail"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/submission"
	"github.com/event-registry/event-registry/internal/verification"
)

const version = "0.1.0"

// BackgroundServices holds the background jobs owned by the router. The caller
// (cmd/server) runs Start alongside the HTTP server and calls Shutdown after the server
// has drained.
type BackgroundServices struct {
	mailer *jobs.VerificationMailer
	audit  *audit.Recorder
}

// Start runs the verification mailer until ctx is cancelled.
func (bg *BackgroundServices) Start(ctx context.Context) {
	slog.Info("starting background services")
	bg.mailer.Start(ctx)
}

// Shutdown stops all background goroutines.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	bg.mailer.Stop()
	if err := bg.audit.Close(); err != nil {
		slog.Warn("failed to close audit sinks", "error", err)
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb may be nil, in which case rate
// limits are kept in process.
func NewRouter(cfg *config.Config, db *sql.DB, rdb redis.UniversalClient) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Domain services
	verifier := verification.NewService(db, cfg.Verification)
	submissions := submission.NewService(db, verifier)
	mailer := jobs.NewVerificationMailer(db, mail.NewSender(&cfg.Notifications), &cfg.Notifications)

	sinks, err := audit.NewSinks(cfg.Audit.Sinks)
	if err != nil {
		slog.Error("failed to initialize audit sinks, entries are stored in the database only", "error", err)
	}
	auditRecorder := audit.NewRecorder(repositories.NewAuditRepository(db), sinks...)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware("/health", "/ready"))
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, rdb))
	router.GET("/version", versionHandler())

	// Handlers
	authHandlers := admin.NewAuthHandlers(cfg, db)
	if cfg.Auth.OIDC.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		provider, err := oidc.NewOIDCProvider(ctx, &cfg.Auth.OIDC)
		cancel()
		if err != nil {
			slog.Error("failed to initialize OIDC provider, single sign-on disabled",
				"error", err, "issuer", cfg.Auth.OIDC.IssuerURL)
		} else {
			authHandlers.SetOIDCProvider(provider)
			slog.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
		}
	}
	resolver := authHandlers.Resolver()

	publicHandlers := public.NewHandlers(db, submissions, verifier)
	setupHandlers := setup.NewHandlers(db)
	organizerHandlers := admin.NewOrganizerHandlers(cfg, db)
	eventHandlers := admin.NewEventHandlers(cfg, db)
	activityHandlers := admin.NewActivityHandlers(cfg, db)
	submissionHandlers := admin.NewSubmissionHandlers(cfg, db, submissions, verifier)
	fileHandlers := admin.NewFileRecordHandlers(cfg, db)
	userHandlers := admin.NewUserHandlers(cfg, db)
	auditLogHandlers := admin.NewAuditLogHandlers(cfg, db)
	statsHandlers := admin.NewStatsHandler(sqlx.NewDb(db, "postgres"))

	// Rate limiters
	authLimit := rateLimit(cfg, rdb, "evr:ratelimit:auth", middleware.ScopeAuth)
	generalLimit := rateLimit(cfg, rdb, "evr:ratelimit:public", middleware.ScopePublic)

	apiV1 := router.Group("/api/v1")
	{
		// Public, no auth required
		apiV1.GET("/setup/status", setupHandlers.GetSetupStatus)

		// Setup endpoints are only reachable with the setup token and return 403 once
		// setup is completed.
		setupGroup := apiV1.Group("/setup")
		setupGroup.Use(middleware.SetupTokenMiddleware(repositories.NewSettingsRepository(db)))
		{
			setupGroup.POST("/validate-token", setupHandlers.ValidateToken)
			setupGroup.POST("/admin", setupHandlers.ConfigureAdmin)
		}

		// Session endpoints (no auth required, strict rate limit)
		authGroup := apiV1.Group("")
		authGroup.Use(authLimit)
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.POST("/logout", authHandlers.LogoutHandler())
			authGroup.POST("/refresh", authHandlers.RefreshHandler())
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.GET("/auth/oidc/login", authHandlers.OIDCLoginHandler())
			authGroup.GET("/auth/oidc/callback", authHandlers.OIDCCallbackHandler())
		}

		// Registrant endpoints. A session is optional and links the submission to its user.
		publicGroup := apiV1.Group("/public")
		publicGroup.Use(middleware.OptionalAuthMiddleware(resolver))
		publicGroup.Use(generalLimit)
		{
			publicGroup.GET("/events/:event_uuid", publicHandlers.GetEventHandler())
			publicGroup.POST("/events/:event_uuid/submissions", publicHandlers.CreateSubmissionHandler())
			publicGroup.GET("/submissions/:tracking_code", publicHandlers.GetSubmissionStatusHandler())
		}

		verifyGroup := apiV1.Group("/email-verification")
		verifyGroup.Use(generalLimit)
		{
			verifyGroup.POST("/verify", publicHandlers.VerifyHandler())
			verifyGroup.POST("/resend", publicHandlers.ResendHandler())
		}

		// Any signed-in user may apply to become an organizer.
		apiV1.POST("/public/organizer-applications",
			middleware.AuthMiddleware(resolver),
			generalLimit,
			middleware.AuditMiddleware(auditRecorder, &cfg.Audit),
			organizerHandlers.ApplyOrganizerHandler())

		// MeHandler resolves the token itself; a subject deleted after issuance is a 404.
		apiV1.GET("/auth/me", authHandlers.MeHandler())

		// Authenticated back office
		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(middleware.AuthMiddleware(resolver))
		adminGroup.Use(generalLimit)
		adminGroup.Use(middleware.AuditMiddleware(auditRecorder, &cfg.Audit))
		{
			adminGroup.GET("/stats/dashboard", statsHandlers.GetDashboardStats)

			organizers := adminGroup.Group("/organizers")
			{
				organizers.GET("", organizerHandlers.ListOrganizersHandler())
				organizers.POST("", organizerHandlers.CreateOrganizerHandler())
				organizers.GET("/:organizer_uuid", organizerHandlers.GetOrganizerHandler())
				organizers.PATCH("/:organizer_uuid", organizerHandlers.UpdateOrganizerHandler())
				organizers.PUT("/:organizer_uuid", organizerHandlers.UpdateOrganizerHandler())
				organizers.DELETE("/:organizer_uuid", organizerHandlers.DeleteOrganizerHandler())
				organizers.POST("/:organizer_uuid/approve", organizerHandlers.ApproveOrganizerHandler())
				organizers.POST("/:organizer_uuid/reject", organizerHandlers.RejectOrganizerHandler())

				organizers.GET("/:organizer_uuid/memberships",
					middleware.RequireOrganizerPermission(auth.ResourceMembership, auth.ActionRead, "organizer_uuid"),
					organizerHandlers.ListMembershipsHandler())
				organizers.POST("/:organizer_uuid/memberships", organizerHandlers.AddMembershipHandler())
				organizers.PATCH("/:organizer_uuid/memberships/:membership_uuid", organizerHandlers.UpdateMembershipHandler())
				organizers.PUT("/:organizer_uuid/memberships/:membership_uuid", organizerHandlers.UpdateMembershipHandler())
				organizers.DELETE("/:organizer_uuid/memberships/:membership_uuid", organizerHandlers.RemoveMembershipHandler())
			}

			events := adminGroup.Group("/events")
			{
				events.GET("", eventHandlers.ListEventsHandler())
				events.POST("", eventHandlers.CreateEventHandler())
				events.POST("/from-template", eventHandlers.CreateFromTemplateHandler())
				events.GET("/:event_uuid", eventHandlers.GetEventHandler())
				events.PATCH("/:event_uuid", eventHandlers.UpdateEventHandler())
				events.PUT("/:event_uuid", eventHandlers.UpdateEventHandler())
				events.DELETE("/:event_uuid", eventHandlers.DeleteEventHandler())
				events.POST("/:event_uuid/status", eventHandlers.EventStatusHandler())

				events.GET("/:event_uuid/fields", eventHandlers.ListFieldsHandler())
				events.POST("/:event_uuid/fields", eventHandlers.CreateFieldHandler())
				events.PUT("/:event_uuid/fields/:field_uuid", eventHandlers.UpdateFieldHandler())
				events.PATCH("/:event_uuid/fields/:field_uuid", eventHandlers.UpdateFieldHandler())
				events.DELETE("/:event_uuid/fields/:field_uuid", eventHandlers.DeleteFieldHandler())
			}

			activityTypes := adminGroup.Group("/activity-types")
			{
				activityTypes.GET("", activityHandlers.ListTypesHandler())
				activityTypes.POST("", middleware.RequirePermission(auth.ResourceActivityType, auth.ActionCreate),
					activityHandlers.CreateTypeHandler())
				activityTypes.GET("/:type_uuid", activityHandlers.GetTypeHandler())
				activityTypes.PUT("/:type_uuid", activityHandlers.UpdateTypeHandler())
				activityTypes.PATCH("/:type_uuid", activityHandlers.UpdateTypeHandler())
				activityTypes.DELETE("/:type_uuid", activityHandlers.DeleteTypeHandler())
			}

			activityTemplates := adminGroup.Group("/activity-templates")
			{
				activityTemplates.GET("", activityHandlers.ListTemplatesHandler())
				activityTemplates.POST("", activityHandlers.CreateTemplateHandler())
				activityTemplates.GET("/:template_uuid", activityHandlers.GetTemplateHandler())
				activityTemplates.PUT("/:template_uuid", activityHandlers.UpdateTemplateHandler())
				activityTemplates.PATCH("/:template_uuid", activityHandlers.UpdateTemplateHandler())
				activityTemplates.DELETE("/:template_uuid", activityHandlers.DeleteTemplateHandler())
			}

			subs := adminGroup.Group("/submissions")
			{
				subs.GET("", submissionHandlers.ListSubmissionsHandler())
				subs.GET("/:submission_uuid", submissionHandlers.GetSubmissionHandler())
				subs.POST("/:submission_uuid/status", submissionHandlers.SubmissionStatusHandler())
				subs.POST("/:submission_uuid/resend-verification", submissionHandlers.ResendVerificationHandler())
				subs.DELETE("/:submission_uuid", submissionHandlers.DeleteSubmissionHandler())
			}

			files := adminGroup.Group("/file-records")
			{
				files.GET("", fileHandlers.ListFileRecordsHandler())
				files.POST("", fileHandlers.CreateFileRecordHandler())
				files.GET("/:file_uuid", fileHandlers.GetFileRecordHandler())
				files.DELETE("/:file_uuid", fileHandlers.DeleteFileRecordHandler())
			}

			users := adminGroup.Group("/users")
			{
				users.GET("", userHandlers.ListUsersHandler())
				users.POST("", userHandlers.CreateUserHandler())
				users.GET("/:user_uuid", userHandlers.GetUserHandler())
				users.PATCH("/:user_uuid", userHandlers.UpdateUserHandler())
				users.PUT("/:user_uuid", userHandlers.UpdateUserHandler())
				users.DELETE("/:user_uuid", userHandlers.DeleteUserHandler())
				// Only platform administrators manage system roles.
				platformAdmins := middleware.RequireSystemRole(models.SystemRoleSuperAdmin, models.SystemRoleSystemAdmin)
				users.PUT("/:user_uuid/system-role", platformAdmins, userHandlers.SetSystemRoleHandler())
				users.DELETE("/:user_uuid/system-role", platformAdmins, userHandlers.RevokeSystemRoleHandler())
			}

			adminGroup.GET("/audit-logs", auditLogHandlers.ListAuditLogsHandler())
			adminGroup.GET("/audit-logs/:id", auditLogHandlers.GetAuditLogHandler())
		}
	}

	return router, &BackgroundServices{mailer: mailer, audit: auditRecorder}
}

// rateLimit builds the limiter middleware for one route family. When rate limiting is
// disabled it returns a pass-through handler.
func rateLimit(cfg *config.Config, rdb redis.UniversalClient, prefix, scope string) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	lc := middleware.DefaultRateLimitConfig()
	if scope == middleware.ScopeAuth {
		lc = middleware.AuthRateLimitConfig()
		if rl.AuthRequestsPerMinute > 0 {
			lc.RequestsPerMinute = rl.AuthRequestsPerMinute
		}
	} else {
		if rl.RequestsPerMinute > 0 {
			lc.RequestsPerMinute = rl.RequestsPerMinute
		}
		if rl.Burst > 0 {
			lc.BurstSize = rl.Burst
		}
	}
	return middleware.RateLimitMiddleware(middleware.NewLimiter(rdb, prefix, lc), scope)
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks: {...}, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: string"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. Redis is only pinged
// when a client is configured; without it rate limits are kept in process.
func readinessHandler(db *sql.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current server and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// slog emits text when the global handler is a TextHandler (telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
