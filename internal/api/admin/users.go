// users.go implements handlers for user accounts and their platform roles.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/validation"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	cfg            *config.Config
	db             *sql.DB
	userRepo       *repositories.UserRepository
	systemRoleRepo *repositories.SystemMembershipRepository
	membershipRepo *repositories.OrganizerMembershipRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(cfg *config.Config, db *sql.DB) *UserHandlers {
	return &UserHandlers{
		cfg:            cfg,
		db:             db,
		userRepo:       repositories.NewUserRepository(db),
		systemRoleRepo: repositories.NewSystemMembershipRepository(db),
		membershipRepo: repositories.NewOrganizerMembershipRepository(db),
	}
}

// UserDetail is a user with its platform role and organizer memberships
type UserDetail struct {
	*models.User
	SystemRole  string                        `json:"system_role,omitempty"`
	Memberships []*models.OrganizerMembership `json:"memberships"`
}

func userResource(userUUID string) auth.Resource {
	return auth.Resource{Type: auth.ResourceUser, OwnerUUID: userUUID}
}

// @Summary      List users
// @Description  Get a paginated list of users. Platform staff only.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        q                query  string  false  "Search email and display name"
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        include_deleted  query  bool    false  "Include soft-deleted users (history permission)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: {page, per_page, total}"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/users [get]
// ListUsersHandler lists users with pagination
// GET /api/v1/admin/users?page=1&per_page=20&q=
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		res := auth.Platform(auth.ResourceUser)
		if err := auth.Authorize(id, res, auth.ActionRead); err != nil {
			response.Error(c, err)
			return
		}
		p := parsePage(c)
		var err error
		if p.IncludeDeleted, err = includeDeleted(c, id, res); err != nil {
			response.Error(c, err)
			return
		}

		users, total, err := h.userRepo.List(c.Request.Context(), p.listOptions(), strings.TrimSpace(c.Query("q")))
		if err != nil {
			response.Error(c, apperr.Internal("failed to list users", err))
			return
		}
		c.JSON(http.StatusOK, paginated("users", users, p, total))
	}
}

func (h *UserHandlers) loadUser(c *gin.Context, action auth.Action) (*models.User, bool) {
	id := identity(c)
	userUUID, ok := uuidParam(c, "user_uuid", "user not found")
	if !ok {
		return nil, false
	}
	if err := auth.Authorize(id, userResource(userUUID), action); err != nil {
		response.Error(c, err)
		return nil, false
	}
	history := false
	if action == auth.ActionRead {
		var err error
		if history, err = includeDeleted(c, id, auth.Platform(auth.ResourceUser)); err != nil {
			response.Error(c, err)
			return nil, false
		}
	}
	u, err := h.userRepo.GetByUUID(c.Request.Context(), userUUID, history)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load user", err))
		return nil, false
	}
	if u == nil {
		response.Error(c, apperr.NotFound("user not found"))
		return nil, false
	}
	return u, true
}

// @Summary      Get user
// @Description  Returns a user with platform role and memberships. Users may read their own record.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        user_uuid  path  string  true  "User UUID"
// @Success      200  {object}  UserDetail
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/v1/admin/users/{user_uuid} [get]
// GetUserHandler retrieves a user
// GET /api/v1/admin/users/:user_uuid
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := h.loadUser(c, auth.ActionRead)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		detail := UserDetail{User: u}

		sm, err := h.systemRoleRepo.GetByUser(ctx, u.UUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load system role", err))
			return
		}
		if sm != nil {
			detail.SystemRole = sm.Role
		}
		if detail.Memberships, err = h.membershipRepo.ListByUser(ctx, u.UUID); err != nil {
			response.Error(c, apperr.Internal("failed to load memberships", err))
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// CreateUserRequest is the body for creating a local user
type CreateUserRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// @Summary      Create user
// @Description  Creates a local user with a password. Platform staff only.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User"
// @Success      201  {object}  models.User
// @Failure      400  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/admin/users [post]
// CreateUserHandler creates a local user
// POST /api/v1/admin/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := auth.Authorize(id, auth.Platform(auth.ResourceUser), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}
		var req CreateUserRequest
		if !bindJSON(c, &req) {
			return
		}
		u, err := CreateLocalUser(c.Request.Context(), h.userRepo, req.Email, req.Password, strings.TrimSpace(req.DisplayName), id.Actor())
		if err != nil {
			response.Error(c, err)
			return
		}
		slog.Info("user created", "user_uuid", u.UUID)
		c.JSON(http.StatusCreated, u)
	}
}

// UpdateUserRequest carries a partial user update. is_active may only be changed by staff.
type UpdateUserRequest struct {
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
}

// @Summary      Update user
// @Description  Partial update. Users may change their own email, display name and password.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        user_uuid  path  string             true  "User UUID"
// @Param        body       body  UpdateUserRequest  true  "Fields to change"
// @Success      200  {object}  models.User
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/admin/users/{user_uuid} [patch]
// UpdateUserHandler updates a user
// PATCH /api/v1/admin/users/:user_uuid
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := h.loadUser(c, auth.ActionUpdate)
		if !ok {
			return
		}
		id := identity(c)
		ctx := c.Request.Context()

		var req UpdateUserRequest
		if !bindJSON(c, &req) {
			return
		}

		if req.IsActive != nil {
			if err := auth.Authorize(id, auth.Platform(auth.ResourceUser), auth.ActionUpdate); err != nil {
				response.Error(c, err)
				return
			}
			if !*req.IsActive && u.UUID == id.User.UUID {
				response.Error(c, apperr.Validation("cannot deactivate your own account"))
				return
			}
			u.IsActive = *req.IsActive
		}
		if req.Email != nil {
			email := strings.TrimSpace(*req.Email)
			if err := validation.ValidateEmail(email); err != nil {
				response.Error(c, apperr.Validation(err.Error()))
				return
			}
			u.Email = email
		}
		if req.DisplayName != nil {
			if strings.TrimSpace(*req.DisplayName) == "" {
				response.Error(c, apperr.Validation("display_name cannot be empty"))
				return
			}
			u.DisplayName = strings.TrimSpace(*req.DisplayName)
		}

		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				if errors.Is(err, auth.ErrPasswordTooShort) {
					response.Error(c, apperr.Validation(err.Error()))
					return
				}
				response.Error(c, apperr.Internal("failed to hash password", err))
				return
			}
			if err := h.userRepo.UpdatePassword(ctx, u.UUID, hash, id.Actor()); err != nil {
				response.Error(c, writeError(err, "update password", "user not found", ""))
				return
			}
		}

		if err := h.userRepo.Update(ctx, u, id.Actor()); err != nil {
			response.Error(c, writeError(err, "update user", "user not found", "email already registered"))
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary      Delete user
// @Description  Soft-deletes a user. Deleting your own account or the last super admin is rejected.
// @Tags         Users
// @Security     Bearer
// @Param        user_uuid  path  string  true  "User UUID"
// @Success      204
// @Failure      400  {object}  map[string]interface{}  "Cannot delete yourself"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Last super admin"
// @Router       /api/v1/admin/users/{user_uuid} [delete]
// DeleteUserHandler soft-deletes a user
// DELETE /api/v1/admin/users/:user_uuid
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := auth.Authorize(id, auth.Platform(auth.ResourceUser), auth.ActionDelete); err != nil {
			response.Error(c, err)
			return
		}
		u, ok := h.loadUser(c, auth.ActionDelete)
		if !ok {
			return
		}
		if u.UUID == id.User.UUID {
			response.Error(c, apperr.Validation("cannot delete your own account"))
			return
		}

		ctx := c.Request.Context()
		sm, err := h.systemRoleRepo.GetByUser(ctx, u.UUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load system role", err))
			return
		}
		if sm != nil {
			if err := auth.Authorize(id, auth.Resource{Type: auth.ResourceSystemRole, TargetRole: sm.Role}, auth.ActionDelete); err != nil {
				response.Error(c, err)
				return
			}
			if err := h.ensureAnotherSuperAdmin(ctx, sm.Role); err != nil {
				response.Error(c, err)
				return
			}
		}

		if err := h.userRepo.Delete(ctx, u.UUID, id.Actor()); err != nil {
			response.Error(c, writeError(err, "delete user", "user not found", ""))
			return
		}
		slog.Info("user deleted", "user_uuid", u.UUID)
		c.Status(http.StatusNoContent)
	}
}

// ensureAnotherSuperAdmin rejects removing role when it is the last super_admin grant.
func (h *UserHandlers) ensureAnotherSuperAdmin(ctx context.Context, role string) error {
	if role != models.SystemRoleSuperAdmin {
		return nil
	}
	n, err := h.systemRoleRepo.CountByRole(ctx, models.SystemRoleSuperAdmin)
	if err != nil {
		return apperr.Internal("failed to count super admins", err)
	}
	if n <= 1 {
		return apperr.Conflict("the platform must keep at least one super admin")
	}
	return nil
}

// SystemRoleRequest names a platform role
type SystemRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// @Summary      Set system role
// @Description  Grants or changes a user's platform role. Only super admins may grant or revoke super_admin.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        user_uuid  path  string             true  "User UUID"
// @Param        body       body  SystemRoleRequest  true  "Role"
// @Success      200  {object}  models.SystemMembership
// @Failure      400  {object}  map[string]interface{}  "Invalid role"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Last super admin"
// @Router       /api/v1/admin/users/{user_uuid}/system-role [put]
// SetSystemRoleHandler assigns a platform role
// PUT /api/v1/admin/users/:user_uuid/system-role
func (h *UserHandlers) SetSystemRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		ctx := c.Request.Context()

		var req SystemRoleRequest
		if !bindJSON(c, &req) {
			return
		}
		if !models.IsValidSystemRole(req.Role) {
			response.Error(c, apperr.Validationf("invalid role %q", req.Role))
			return
		}
		if err := auth.Authorize(id, auth.Resource{Type: auth.ResourceSystemRole, TargetRole: req.Role}, auth.ActionUpdate); err != nil {
			response.Error(c, err)
			return
		}

		userUUID, ok := uuidParam(c, "user_uuid", "user not found")
		if !ok {
			return
		}
		u, err := h.userRepo.GetByUUID(ctx, userUUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load user", err))
			return
		}
		if u == nil {
			response.Error(c, apperr.NotFound("user not found"))
			return
		}

		current, err := h.systemRoleRepo.GetByUser(ctx, u.UUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load system role", err))
			return
		}
		if current != nil && current.Role != req.Role {
			if err := auth.Authorize(id, auth.Resource{Type: auth.ResourceSystemRole, TargetRole: current.Role}, auth.ActionUpdate); err != nil {
				response.Error(c, err)
				return
			}
			if err := h.ensureAnotherSuperAdmin(ctx, current.Role); err != nil {
				response.Error(c, err)
				return
			}
		}

		sm, err := h.systemRoleRepo.Upsert(ctx, u.UUID, req.Role, id.Actor())
		if err != nil {
			response.Error(c, apperr.Internal("failed to set system role", err))
			return
		}
		slog.Info("system role set", "user_uuid", u.UUID, "role", req.Role)
		c.JSON(http.StatusOK, sm)
	}
}

// @Summary      Revoke system role
// @Tags         Users
// @Security     Bearer
// @Param        user_uuid  path  string  true  "User UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "User has no system role"
// @Failure      409  {object}  map[string]interface{}  "Last super admin"
// @Router       /api/v1/admin/users/{user_uuid}/system-role [delete]
// RevokeSystemRoleHandler removes a user's platform role
// DELETE /api/v1/admin/users/:user_uuid/system-role
func (h *UserHandlers) RevokeSystemRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		ctx := c.Request.Context()
		userUUID, ok := uuidParam(c, "user_uuid", "user has no system role")
		if !ok {
			return
		}

		current, err := h.systemRoleRepo.GetByUser(ctx, userUUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load system role", err))
			return
		}
		if err := auth.Authorize(id, auth.Resource{Type: auth.ResourceSystemRole, TargetRole: roleOf(current)}, auth.ActionDelete); err != nil {
			response.Error(c, err)
			return
		}
		if current == nil {
			response.Error(c, apperr.NotFound("user has no system role"))
			return
		}
		if err := h.ensureAnotherSuperAdmin(ctx, current.Role); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.systemRoleRepo.DeleteByUser(ctx, userUUID, id.Actor()); err != nil {
			response.Error(c, writeError(err, "revoke system role", "user has no system role", ""))
			return
		}
		slog.Info("system role revoked", "user_uuid", userUUID, "role", current.Role)
		c.Status(http.StatusNoContent)
	}
}

func roleOf(sm *models.SystemMembership) string {
	if sm == nil {
		return ""
	}
	return sm.Role
}
