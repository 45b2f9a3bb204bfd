// memberships.go implements handlers for managing the members of an organizer.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/middleware"
)

func membershipResource(orgUUID, targetRole string) auth.Resource {
	return auth.Resource{Type: auth.ResourceMembership, OrganizerUUID: orgUUID, TargetRole: targetRole}
}

// @Summary      List organizer members
// @Tags         Organizers
// @Security     Bearer
// @Produce      json
// @Param        organizer_uuid   path   string  true   "Organizer UUID"
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        include_deleted  query  bool    false  "Include removed memberships (history permission)"
// @Success      200  {object}  map[string]interface{}  "memberships: []models.OrganizerMembership, pagination: {page, per_page, total}"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/organizers/{organizer_uuid}/memberships [get]
// ListMembershipsHandler lists the members of an organizer
// GET /api/v1/admin/organizers/:organizer_uuid/memberships
func (h *OrganizerHandlers) ListMembershipsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		orgUUID, ok := uuidParam(c, "organizer_uuid", "organizer not found")
		if !ok {
			return
		}
		res := membershipResource(orgUUID, "")

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

		members, total, err := h.membershipRepo.ListByOrganizer(c.Request.Context(), orgUUID, p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list memberships", err))
			return
		}
		c.JSON(http.StatusOK, paginated("memberships", members, p, total))
	}
}

// AddMembershipRequest adds a user to an organizer
type AddMembershipRequest struct {
	UserUUID string `json:"user_uuid" binding:"required,uuid"`
	Role     string `json:"role" binding:"required"`
}

// @Summary      Add organizer member
// @Description  Adds a user with a role. Adding an existing member changes their role; a removed member is restored.
// @Tags         Organizers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        organizer_uuid  path  string                true  "Organizer UUID"
// @Param        body            body  AddMembershipRequest  true  "Member"
// @Success      201  {object}  models.OrganizerMembership
// @Failure      400  {object}  map[string]interface{}  "Invalid role or unknown user"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Router       /api/v1/admin/organizers/{organizer_uuid}/memberships [post]
// AddMembershipHandler adds a member to an organizer
// POST /api/v1/admin/organizers/:organizer_uuid/memberships
func (h *OrganizerHandlers) AddMembershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		orgUUID, ok := uuidParam(c, "organizer_uuid", "organizer not found")
		if !ok {
			return
		}
		ctx := c.Request.Context()

		var req AddMembershipRequest
		if !bindJSON(c, &req) {
			return
		}
		if !models.IsValidOrganizerRole(req.Role) {
			response.Error(c, apperr.Validationf("invalid role %q", req.Role))
			return
		}
		if err := auth.Authorize(id, membershipResource(orgUUID, req.Role), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}

		o, err := h.organizerRepo.GetByUUID(ctx, orgUUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load organizer", err))
			return
		}
		if o == nil {
			response.Error(c, apperr.NotFound("organizer not found"))
			return
		}
		u, err := h.userRepo.GetByUUID(ctx, req.UserUUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load user", err))
			return
		}
		if u == nil {
			response.Error(c, apperr.Validation("user_uuid does not name an existing user"))
			return
		}

		// Re-adding the last owner with a lower role would orphan the organizer.
		existing, err := h.membershipRepo.Get(ctx, orgUUID, u.UUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load membership", err))
			return
		}
		if existing != nil {
			if err := h.authorizeRoleChange(ctx, id, existing, req.Role); err != nil {
				response.Error(c, err)
				return
			}
		}

		m := &models.OrganizerMembership{UserUUID: u.UUID, OrganizerUUID: orgUUID, Role: req.Role, UserEmail: u.Email}
		if err := h.membershipRepo.Upsert(ctx, m, id.ActorFor(orgUUID)); err != nil {
			response.Error(c, apperr.Internal("failed to add member", err))
			return
		}

		middleware.SetAuditTarget(c, orgUUID, m.UUID)
		slog.Info("organizer member added", "organizer_uuid", orgUUID, "user_uuid", u.UUID, "role", req.Role)
		c.JSON(http.StatusCreated, m)
	}
}

// UpdateMembershipRequest changes a member's role
type UpdateMembershipRequest struct {
	Role string `json:"role" binding:"required"`
}

// loadMembership loads the membership named by the path, which must belong to the
// organizer named by the path.
func (h *OrganizerHandlers) loadMembership(c *gin.Context) (*models.OrganizerMembership, bool) {
	orgUUID, ok := uuidParam(c, "organizer_uuid", "organizer not found")
	if !ok {
		return nil, false
	}
	membershipUUID, ok := uuidParam(c, "membership_uuid", "membership not found")
	if !ok {
		return nil, false
	}
	m, err := h.membershipRepo.GetByUUID(c.Request.Context(), membershipUUID)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load membership", err))
		return nil, false
	}
	if m == nil || m.OrganizerUUID != orgUUID {
		response.Error(c, apperr.NotFound("membership not found"))
		return nil, false
	}
	return m, true
}

// authorizeRoleChange checks that id may move m to role and that the organizer keeps an
// owner afterwards.
func (h *OrganizerHandlers) authorizeRoleChange(ctx context.Context, id *auth.Identity, m *models.OrganizerMembership, role string) error {
	if err := auth.Authorize(id, membershipResource(m.OrganizerUUID, m.Role), auth.ActionUpdate); err != nil {
		return err
	}
	if err := auth.Authorize(id, membershipResource(m.OrganizerUUID, role), auth.ActionUpdate); err != nil {
		return err
	}
	if m.Role == models.OrganizerRoleOwner && role != models.OrganizerRoleOwner {
		return h.ensureAnotherOwner(ctx, m.OrganizerUUID)
	}
	return nil
}

func (h *OrganizerHandlers) ensureAnotherOwner(ctx context.Context, orgUUID string) error {
	owners, err := h.membershipRepo.CountOwners(ctx, orgUUID)
	if err != nil {
		return apperr.Internal("failed to count owners", err)
	}
	if owners <= 1 {
		return apperr.Conflict("an organizer must keep at least one owner")
	}
	return nil
}

// @Summary      Change member role
// @Description  Changes a member's role. Demoting the last owner is rejected with 409. PUT is accepted as an alias.
// @Tags         Organizers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        organizer_uuid   path  string                   true  "Organizer UUID"
// @Param        membership_uuid  path  string                   true  "Membership UUID"
// @Param        body             body  UpdateMembershipRequest  true  "New role"
// @Success      200  {object}  models.OrganizerMembership
// @Failure      400  {object}  map[string]interface{}  "Invalid role"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Membership not found"
// @Failure      409  {object}  map[string]interface{}  "Last owner"
// @Router       /api/v1/admin/organizers/{organizer_uuid}/memberships/{membership_uuid} [patch]
// UpdateMembershipHandler changes a member's role
// PATCH /api/v1/admin/organizers/:organizer_uuid/memberships/:membership_uuid
func (h *OrganizerHandlers) UpdateMembershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req UpdateMembershipRequest
		if !bindJSON(c, &req) {
			return
		}
		if !models.IsValidOrganizerRole(req.Role) {
			response.Error(c, apperr.Validationf("invalid role %q", req.Role))
			return
		}

		m, ok := h.loadMembership(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if err := h.authorizeRoleChange(ctx, id, m, req.Role); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.membershipRepo.UpdateRole(ctx, m, req.Role, id.ActorFor(m.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "update membership", "membership not found", ""))
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// @Summary      Remove organizer member
// @Description  Soft-deletes the membership. Removing the last owner is rejected with 409.
// @Tags         Organizers
// @Security     Bearer
// @Param        organizer_uuid   path  string  true  "Organizer UUID"
// @Param        membership_uuid  path  string  true  "Membership UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Membership not found"
// @Failure      409  {object}  map[string]interface{}  "Last owner"
// @Router       /api/v1/admin/organizers/{organizer_uuid}/memberships/{membership_uuid} [delete]
// RemoveMembershipHandler removes a member from an organizer
// DELETE /api/v1/admin/organizers/:organizer_uuid/memberships/:membership_uuid
func (h *OrganizerHandlers) RemoveMembershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		m, ok := h.loadMembership(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		if err := auth.Authorize(id, membershipResource(m.OrganizerUUID, m.Role), auth.ActionDelete); err != nil {
			response.Error(c, err)
			return
		}
		if m.Role == models.OrganizerRoleOwner {
			if err := h.ensureAnotherOwner(ctx, m.OrganizerUUID); err != nil {
				response.Error(c, err)
				return
			}
		}

		if err := h.membershipRepo.Delete(ctx, m.UUID, id.ActorFor(m.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "remove member", "membership not found", ""))
			return
		}
		slog.Info("organizer member removed", "organizer_uuid", m.OrganizerUUID, "user_uuid", m.UserUUID)
		c.Status(http.StatusNoContent)
	}
}
