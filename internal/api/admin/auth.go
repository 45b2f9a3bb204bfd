// auth.go implements HTTP handlers for password login, session cookies, token refresh,
// self-service registration, and the optional OIDC login flow.
package admin

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/auth/oidc"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/validation"
)

// oidcStateTTL bounds how long a login may take at the identity provider.
const oidcStateTTL = 5 * time.Minute

// invalidCredentials is the single message for every failed login.
const invalidCredentials = "invalid email or password"

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg          *config.Config
	db           *sql.DB
	userRepo     *repositories.UserRepository
	resolver     *auth.Resolver
	oidcProvider *oidc.OIDCProvider
	// oidcStates holds pending OIDC login states until the callback consumes them.
	oidcStates *gocache.Cache
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, db *sql.DB) *AuthHandlers {
	users := repositories.NewUserRepository(db)
	return &AuthHandlers{
		cfg:      cfg,
		db:       db,
		userRepo: users,
		resolver: auth.NewResolver(users,
			repositories.NewSystemMembershipRepository(db),
			repositories.NewOrganizerMembershipRepository(db)),
		oidcStates: gocache.New(oidcStateTTL, time.Minute),
	}
}

// SetOIDCProvider enables the OIDC login routes.
func (h *AuthHandlers) SetOIDCProvider(provider *oidc.OIDCProvider) {
	h.oidcProvider = provider
}

// Resolver exposes the identity resolver shared with the auth middleware.
func (h *AuthHandlers) Resolver() *auth.Resolver {
	return h.resolver
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// sessionUser is the user summary returned by login.
type sessionUser struct {
	UUID  string `json:"uuid"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// @Summary      Log in with email and password
// @Description  Authenticates a local account and sets the access_token (15 minutes) and refresh_token (30 days) HTTP-only cookies. The error message never reveals whether the account exists.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "success: true, user: {uuid, email, role}"
// @Failure      400  {object}  map[string]interface{}  "Invalid request body"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Router       /api/v1/login [post]
// LoginHandler authenticates a local account
// POST /api/v1/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		user, err := h.userRepo.GetByEmail(ctx, strings.TrimSpace(req.Email))
		if err != nil {
			response.Error(c, apperr.Internal("failed to load user", err))
			return
		}
		if user == nil || !user.IsActive || !user.HasPassword() || !auth.CheckPassword(*user.PasswordHash, req.Password) {
			response.Detail(c, http.StatusUnauthorized, invalidCredentials)
			return
		}

		id, err := h.resolver.ResolveUser(ctx, user.UUID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				response.Error(c, err)
				return
			}
			response.Detail(c, http.StatusUnauthorized, invalidCredentials)
			return
		}

		if err := h.issueSession(c, user); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.userRepo.UpdateLastLogin(ctx, user.UUID); err != nil {
			slog.Warn("failed to record last login", "user_uuid", user.UUID, "error", err)
		}
		slog.Info("user logged in", "user_uuid", user.UUID, "auth_provider", user.AuthProvider)

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user":    sessionUser{UUID: user.UUID, Email: user.Email, Role: id.PrimaryRole()},
		})
	}
}

// @Summary      Log out
// @Description  Clears the session cookies. Always succeeds.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success: true"
// @Router       /api/v1/logout [post]
// LogoutHandler clears both session cookies
// POST /api/v1/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.clearCookie(c, middleware.AccessTokenCookie)
		h.clearCookie(c, middleware.RefreshTokenCookie)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// @Summary      Get current user
// @Description  Resolves the caller from the access_token cookie (or Bearer header) and returns the profile with the platform role and organizer memberships.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, system_role, role, memberships"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid token"
// @Failure      404  {object}  map[string]interface{}  "User no longer exists"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the caller's identity. It resolves the token itself so a user deleted
// after the token was issued is reported as 404 instead of 401.
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.resolver.Resolve(c.Request.Context(), middleware.AccessToken(c))
		if err != nil {
			response.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":        id.User,
			"system_role": id.SystemMembership,
			"role":        id.PrimaryRole(),
			"memberships": id.Memberships,
		})
	}
}

// @Summary      Refresh access token
// @Description  Exchanges the refresh_token cookie for a new access_token cookie.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success: true"
// @Failure      401  {object}  map[string]interface{}  "Refresh token missing, invalid or expired"
// @Router       /api/v1/refresh [post]
// RefreshHandler issues a new access token from a valid refresh token
// POST /api/v1/refresh
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(middleware.RefreshTokenCookie)
		if err != nil || raw == "" {
			response.Detail(c, http.StatusUnauthorized, "not authenticated")
			return
		}

		claims, err := auth.ValidateToken(raw, auth.TokenTypeRefresh)
		if err != nil {
			response.Detail(c, http.StatusUnauthorized, "not authenticated")
			return
		}

		id, err := h.resolver.ResolveUser(c.Request.Context(), claims.UserUUID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				response.Error(c, err)
				return
			}
			response.Detail(c, http.StatusUnauthorized, "not authenticated")
			return
		}

		access, err := auth.GenerateAccessToken(id.User.UUID, id.User.Email, h.cfg.Auth.AccessTokenTTL)
		if err != nil {
			response.Error(c, apperr.Internal("failed to generate access token", err))
			return
		}
		h.setCookie(c, middleware.AccessTokenCookie, access, h.accessTTL())

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// @Summary      Register an account
// @Description  Self-service creation of a local account. Disabled unless auth.allow_registration is set.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  registerRequest  true  "Account details"
// @Success      201  {object}  models.User
// @Failure      400  {object}  map[string]interface{}  "Invalid email or password too short"
// @Failure      403  {object}  map[string]interface{}  "Registration disabled"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/register [post]
// RegisterHandler creates a local account
// POST /api/v1/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.Auth.AllowRegistration {
			response.Detail(c, http.StatusForbidden, "registration is disabled")
			return
		}

		var req registerRequest
		if !bindJSON(c, &req) {
			return
		}

		user, err := CreateLocalUser(c.Request.Context(), h.userRepo, req.Email, req.Password, req.DisplayName, models.PublicActor())
		if err != nil {
			response.Error(c, err)
			return
		}

		slog.Info("user registered", "user_uuid", user.UUID)
		c.JSON(http.StatusCreated, user)
	}
}

// CreateLocalUser validates and stores a password account. Errors are apperr values.
func CreateLocalUser(ctx context.Context, users *repositories.UserRepository, email, password, displayName string, actor models.Actor) (*models.User, error) {
	email = strings.TrimSpace(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, apperr.Validation(err.Error())
		}
		return nil, apperr.Internal("failed to hash password", err)
	}
	if displayName == "" {
		displayName = email
	}

	user := &models.User{
		Email:        email,
		PasswordHash: &hash,
		AuthProvider: models.AuthProviderLocal,
		DisplayName:  displayName,
	}
	if err := users.Create(ctx, user, actor); err != nil {
		return nil, writeError(err, "create user", "user not found", "email already registered")
	}
	return user, nil
}

// @Summary      Start OIDC login
// @Description  Redirects the browser to the configured OpenID Connect provider.
// @Tags         Authentication
// @Success      302  {object}  string  "Redirect to the provider"
// @Failure      404  {object}  map[string]interface{}  "OIDC login is not configured"
// @Router       /api/v1/auth/oidc/login [get]
// OIDCLoginHandler starts the OIDC authorization code flow
// GET /api/v1/auth/oidc/login
func (h *AuthHandlers) OIDCLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidcProvider == nil {
			response.Detail(c, http.StatusNotFound, "OIDC login is not configured")
			return
		}

		state, err := generateState()
		if err != nil {
			response.Error(c, apperr.Internal("failed to generate state", err))
			return
		}
		h.oidcStates.SetDefault(state, struct{}{})

		c.Redirect(http.StatusFound, h.oidcProvider.GetAuthURL(state))
	}
}

// @Summary      OIDC callback
// @Description  Completes the OIDC flow: validates state, exchanges the code, finds or creates the OIDC account, sets the session cookies and redirects to the frontend.
// @Tags         Authentication
// @Param        code   query  string  true  "Authorization code"
// @Param        state  query  string  true  "State issued by the login redirect"
// @Success      302  {object}  string  "Redirect to the frontend"
// @Failure      400  {object}  map[string]interface{}  "Invalid or expired state"
// @Failure      401  {object}  map[string]interface{}  "Provider rejected the login"
// @Router       /api/v1/auth/oidc/callback [get]
// OIDCCallbackHandler completes an OIDC login
// GET /api/v1/auth/oidc/callback
func (h *AuthHandlers) OIDCCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.oidcProvider == nil {
			response.Detail(c, http.StatusNotFound, "OIDC login is not configured")
			return
		}

		state := c.Query("state")
		if _, ok := h.oidcStates.Get(state); !ok || state == "" {
			response.Detail(c, http.StatusBadRequest, "invalid or expired login state")
			return
		}
		// Single use.
		h.oidcStates.Delete(state)

		ctx := c.Request.Context()
		info, err := h.oidcProvider.Authenticate(ctx, c.Query("code"))
		if err != nil {
			slog.Warn("oidc login rejected", "error", err)
			response.Detail(c, http.StatusUnauthorized, "login with the identity provider failed")
			return
		}

		user, err := h.userRepo.GetOrCreateByOIDC(ctx, info.Subject, info.Email, info.Name)
		if err != nil {
			response.Error(c, apperr.Internal("failed to find or create oidc user", err))
			return
		}
		if !user.IsActive {
			response.Detail(c, http.StatusUnauthorized, "account is disabled")
			return
		}

		if err := h.issueSession(c, user); err != nil {
			response.Error(c, err)
			return
		}
		if err := h.userRepo.UpdateLastLogin(ctx, user.UUID); err != nil {
			slog.Warn("failed to record last login", "user_uuid", user.UUID, "error", err)
		}

		c.Redirect(http.StatusFound, strings.TrimRight(h.cfg.Server.GetPublicURL(), "/")+"/")
	}
}

// generateState generates a random state string for OAuth
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// issueSession signs both tokens for user and sets them as cookies.
func (h *AuthHandlers) issueSession(c *gin.Context, user *models.User) error {
	access, err := auth.GenerateAccessToken(user.UUID, user.Email, h.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return apperr.Internal("failed to generate access token", err)
	}
	refresh, err := auth.GenerateRefreshToken(user.UUID, user.Email, h.cfg.Auth.RefreshTokenTTL)
	if err != nil {
		return apperr.Internal("failed to generate refresh token", err)
	}
	h.setCookie(c, middleware.AccessTokenCookie, access, h.accessTTL())
	h.setCookie(c, middleware.RefreshTokenCookie, refresh, h.refreshTTL())
	return nil
}

func (h *AuthHandlers) accessTTL() time.Duration {
	if h.cfg.Auth.AccessTokenTTL > 0 {
		return h.cfg.Auth.AccessTokenTTL
	}
	return auth.DefaultAccessTTL
}

func (h *AuthHandlers) refreshTTL() time.Duration {
	if h.cfg.Auth.RefreshTokenTTL > 0 {
		return h.cfg.Auth.RefreshTokenTTL
	}
	return auth.DefaultRefreshTTL
}

func (h *AuthHandlers) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.Auth.Cookie.Domain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   h.cfg.Auth.Cookie.Secure || middleware.IsSecureRequest(c),
		HttpOnly: true,
		SameSite: sameSite(h.cfg.Auth.Cookie.SameSite),
	})
}

func (h *AuthHandlers) clearCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.Auth.Cookie.Domain,
		MaxAge:   -1,
		Secure:   h.cfg.Auth.Cookie.Secure || middleware.IsSecureRequest(c),
		HttpOnly: true,
		SameSite: sameSite(h.cfg.Auth.Cookie.SameSite),
	})
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
