// Package setup implements HTTP handlers for first-run setup.
// These endpoints are authenticated via setup token (not a session) and are
// permanently disabled after setup completes. They create the first super admin
// through the frontend or via curl.
package setup

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/admin"
	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
)

// Handlers holds all dependencies for setup endpoints.
type Handlers struct {
	db             *sql.DB
	settingsRepo   *repositories.SettingsRepository
	systemRoleRepo *repositories.SystemMembershipRepository
}

// NewHandlers creates a new setup Handlers instance.
func NewHandlers(sqlDB *sql.DB) *Handlers {
	return &Handlers{
		db:             sqlDB,
		settingsRepo:   repositories.NewSettingsRepository(sqlDB),
		systemRoleRepo: repositories.NewSystemMembershipRepository(sqlDB),
	}
}

// @Summary      Get setup status
// @Description  Reports whether first-run setup is complete and whether a super admin exists. No authentication required.
// @Tags         Setup
// @Produce      json
// @Success      200  {object}  models.SetupStatus
// @Failure      500  {object}  map[string]interface{}
// @Router       /api/v1/setup/status [get]
func (h *Handlers) GetSetupStatus(c *gin.Context) {
	ctx := c.Request.Context()

	s, err := h.settingsRepo.Get(ctx)
	if err != nil {
		response.Error(c, apperr.Internal("failed to get setup status", err))
		return
	}
	admins, err := h.systemRoleRepo.CountByRole(ctx, models.SystemRoleSuperAdmin)
	if err != nil {
		response.Error(c, apperr.Internal("failed to get setup status", err))
		return
	}

	c.JSON(http.StatusOK, models.SetupStatus{
		SetupCompleted: s.SetupCompleted,
		SetupRequired:  !s.SetupCompleted,
		AdminExists:    admins > 0,
	})
}

// @Summary      Validate setup token
// @Description  Returns 200 when the setup token is valid. Used by the frontend before asking for admin details.
// @Tags         Setup
// @Security     SetupToken
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "valid: true, message: string"
// @Failure      401  {object}  map[string]interface{}  "Invalid setup token"
// @Failure      403  {object}  map[string]interface{}  "Setup already completed"
// @Router       /api/v1/setup/validate-token [post]
func (h *Handlers) ValidateToken(c *gin.Context) {
	// SetupTokenMiddleware has already checked the token.
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"message": "Setup token is valid. You may create the first administrator.",
	})
}

// ConfigureAdminInput is the request body for the admin setup endpoint
type ConfigureAdminInput struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// @Summary      Create the first super admin
// @Description  Creates a local account holding the super_admin system role and completes setup. The setup token is cleared and every setup endpoint returns 403 afterwards.
// @Tags         Setup
// @Security     SetupToken
// @Accept       json
// @Produce      json
// @Param        body  body  ConfigureAdminInput  true  "Administrator account"
// @Success      201  {object}  map[string]interface{}  "message: string, user: models.User, role: string"
// @Failure      400  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      401  {object}  map[string]interface{}  "Invalid setup token"
// @Failure      403  {object}  map[string]interface{}  "Setup already completed"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/setup/admin [post]
func (h *Handlers) ConfigureAdmin(c *gin.Context) {
	var input ConfigureAdminInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Detail(c, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := c.Request.Context()
	actor := models.SystemActor()
	var user *models.User

	err := db.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		settings := repositories.NewSettingsRepository(tx)

		// Re-read under the transaction so two concurrent calls cannot both complete setup.
		s, err := settings.GetForUpdate(ctx)
		if err != nil {
			return apperr.Internal("failed to check setup status", err)
		}
		if s.SetupCompleted {
			return apperr.Forbidden("setup has already been completed")
		}

		user, err = admin.CreateLocalUser(ctx, repositories.NewUserRepository(tx),
			input.Email, input.Password, input.DisplayName, actor)
		if err != nil {
			return err
		}
		if _, err := repositories.NewSystemMembershipRepository(tx).
			Upsert(ctx, user.UUID, models.SystemRoleSuperAdmin, actor); err != nil {
			return apperr.Internal("failed to grant super admin role", err)
		}
		if err := settings.SetSetupCompleted(ctx); err != nil {
			return apperr.Internal("failed to complete setup", err)
		}
		return nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	slog.Info("setup: initial super admin created, setup completed", "user_uuid", user.UUID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Setup completed. Sign in with the new administrator account.",
		"user":    user,
		"role":    models.SystemRoleSuperAdmin,
	})
}
