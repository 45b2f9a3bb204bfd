// organizers.go implements handlers for organizer CRUD operations and application review.
package admin

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/lifecycle"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/validation"
)

// OrganizerHandlers handles organizer management endpoints
type OrganizerHandlers struct {
	cfg            *config.Config
	db             *sql.DB
	organizerRepo  *repositories.OrganizerRepository
	membershipRepo *repositories.OrganizerMembershipRepository
	userRepo       *repositories.UserRepository
}

// NewOrganizerHandlers creates a new OrganizerHandlers instance
func NewOrganizerHandlers(cfg *config.Config, db *sql.DB) *OrganizerHandlers {
	return &OrganizerHandlers{
		cfg:            cfg,
		db:             db,
		organizerRepo:  repositories.NewOrganizerRepository(db),
		membershipRepo: repositories.NewOrganizerMembershipRepository(db),
		userRepo:       repositories.NewUserRepository(db),
	}
}

// OrganizerInput is the body for creating an organizer or applying for one
type OrganizerInput struct {
	Name         string         `json:"name" binding:"required"`
	Slug         string         `json:"slug"`
	ContactEmail *string        `json:"contact_email"`
	ContactPhone *string        `json:"contact_phone"`
	Website      *string        `json:"website"`
	Config       models.JSONMap `json:"config"`
	// OwnerUUID names the first owner when staff create an organizer directly.
	OwnerUUID *string `json:"owner_uuid"`
}

// Organizer validates the input and builds the model.
func (in *OrganizerInput) Organizer(status string) (*models.Organizer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	slug := in.Slug
	if slug == "" {
		slug = slugify(name)
	}
	if err := validation.ValidateSlug(slug); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if in.ContactEmail != nil && *in.ContactEmail != "" {
		if err := validation.ValidateEmail(*in.ContactEmail); err != nil {
			return nil, apperr.Validation(err.Error())
		}
	}
	cfg := in.Config
	if cfg == nil {
		cfg = models.JSONMap{}
	}
	return &models.Organizer{
		Name:         name,
		Slug:         slug,
		ContactEmail: in.ContactEmail,
		ContactPhone: in.ContactPhone,
		Website:      in.Website,
		Status:       status,
		Config:       cfg,
	}, nil
}

// slugify lowercases s and joins its alphanumeric runs with single hyphens.
func slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}

// createWithOwner inserts o and makes ownerUUID its owner in one transaction.
func createWithOwner(ctx context.Context, sqlDB *sql.DB, o *models.Organizer, ownerUUID string, actor models.Actor) error {
	return db.WithTx(ctx, sqlDB, func(tx *sql.Tx) error {
		if err := repositories.NewOrganizerRepository(tx).Create(ctx, o, actor); err != nil {
			return writeError(err, "create organizer", "organizer not found", "an organizer with this slug already exists")
		}
		if ownerUUID == "" {
			return nil
		}
		m := &models.OrganizerMembership{UserUUID: ownerUUID, OrganizerUUID: o.UUID, Role: models.OrganizerRoleOwner}
		if err := repositories.NewOrganizerMembershipRepository(tx).Upsert(ctx, m, actor); err != nil {
			return apperr.Internal("failed to add organizer owner", err)
		}
		return nil
	})
}

// @Summary      List organizers
// @Description  Platform staff see every organizer; other users see the organizers they belong to.
// @Tags         Organizers
// @Security     Bearer
// @Produce      json
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        status           query  string  false  "pending, approved or rejected"
// @Param        include_deleted  query  bool    false  "Include soft-deleted organizers (history permission)"
// @Success      200  {object}  map[string]interface{}  "organizers: []models.Organizer, pagination: {page, per_page, total}"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/organizers [get]
// ListOrganizersHandler lists organizers visible to the caller
// GET /api/v1/admin/organizers
func (h *OrganizerHandlers) ListOrganizersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		p := parsePage(c)

		var err error
		if p.IncludeDeleted, err = includeDeleted(c, id, auth.Platform(auth.ResourceOrganizer)); err != nil {
			response.Error(c, err)
			return
		}

		filter := repositories.OrganizerFilter{Status: optionalQuery(c, "status")}
		if !auth.Can(id, auth.Platform(auth.ResourceOrganizer), auth.ActionRead) {
			filter.MemberUUID = &id.User.UUID
		}

		organizers, total, err := h.organizerRepo.List(c.Request.Context(), filter, p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list organizers", err))
			return
		}

		c.JSON(http.StatusOK, paginated("organizers", organizers, p, total))
	}
}

// loadOrganizer authorizes action on the organizer named by the path and loads it.
func (h *OrganizerHandlers) loadOrganizer(c *gin.Context, action auth.Action) (*models.Organizer, bool) {
	id := identity(c)
	orgUUID, ok := uuidParam(c, "organizer_uuid", "organizer not found")
	if !ok {
		return nil, false
	}

	if err := auth.Authorize(id, auth.InOrganizer(auth.ResourceOrganizer, orgUUID), action); err != nil {
		response.Error(c, err)
		return nil, false
	}
	history, err := includeDeleted(c, id, auth.InOrganizer(auth.ResourceOrganizer, orgUUID))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}

	o, err := h.organizerRepo.GetByUUID(c.Request.Context(), orgUUID, history && action == auth.ActionRead)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load organizer", err))
		return nil, false
	}
	if o == nil {
		response.Error(c, apperr.NotFound("organizer not found"))
		return nil, false
	}
	return o, true
}

// @Summary      Get organizer
// @Tags         Organizers
// @Security     Bearer
// @Produce      json
// @Param        organizer_uuid   path   string  true   "Organizer UUID"
// @Param        include_deleted  query  bool    false  "Return the organizer even when soft-deleted (history permission)"
// @Success      200  {object}  models.Organizer
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Router       /api/v1/admin/organizers/{organizer_uuid} [get]
// GetOrganizerHandler retrieves an organizer
// GET /api/v1/admin/organizers/:organizer_uuid
func (h *OrganizerHandlers) GetOrganizerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := h.loadOrganizer(c, auth.ActionRead)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// @Summary      Create organizer
// @Description  Platform staff create an approved organizer directly, optionally naming its first owner.
// @Tags         Organizers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  OrganizerInput  true  "Organizer"
// @Success      201  {object}  models.Organizer
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      409  {object}  map[string]interface{}  "Slug already taken"
// @Router       /api/v1/admin/organizers [post]
// CreateOrganizerHandler creates an approved organizer
// POST /api/v1/admin/organizers
func (h *OrganizerHandlers) CreateOrganizerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		// Direct creation skips review, so it needs the reviewer's permission.
		if err := auth.Authorize(id, auth.Platform(auth.ResourceOrganizer), auth.ActionApprove); err != nil {
			response.Error(c, err)
			return
		}

		var req OrganizerInput
		if !bindJSON(c, &req) {
			return
		}
		o, err := req.Organizer(models.OrganizerStatusApproved)
		if err != nil {
			response.Error(c, err)
			return
		}

		if err := optionalUUID("owner_uuid", req.OwnerUUID); err != nil {
			response.Error(c, err)
			return
		}
		owner := deref(req.OwnerUUID)
		if owner != "" {
			u, err := h.userRepo.GetByUUID(c.Request.Context(), owner, false)
			if err != nil {
				response.Error(c, apperr.Internal("failed to load owner", err))
				return
			}
			if u == nil {
				response.Error(c, apperr.Validation("owner_uuid does not name an existing user"))
				return
			}
		}

		if err := createWithOwner(c.Request.Context(), h.db, o, owner, id.Actor()); err != nil {
			response.Error(c, err)
			return
		}

		middleware.SetAuditTarget(c, o.UUID, o.UUID)
		slog.Info("organizer created", "organizer_uuid", o.UUID, "slug", o.Slug)
		c.JSON(http.StatusCreated, o)
	}
}

// UpdateOrganizerRequest carries a partial organizer update
type UpdateOrganizerRequest struct {
	Name         *string         `json:"name"`
	Slug         *string         `json:"slug"`
	ContactEmail *string         `json:"contact_email"`
	ContactPhone *string         `json:"contact_phone"`
	Website      *string         `json:"website"`
	Config       *models.JSONMap `json:"config"`
	IsActive     *bool           `json:"is_active"`
}

// @Summary      Update organizer
// @Description  Partial update; omitted fields are unchanged. PUT is accepted as an alias.
// @Tags         Organizers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        organizer_uuid  path  string                  true  "Organizer UUID"
// @Param        body            body  UpdateOrganizerRequest  true  "Fields to change"
// @Success      200  {object}  models.Organizer
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Failure      409  {object}  map[string]interface{}  "Slug already taken"
// @Router       /api/v1/admin/organizers/{organizer_uuid} [patch]
// UpdateOrganizerHandler updates an organizer's profile
// PATCH /api/v1/admin/organizers/:organizer_uuid
func (h *OrganizerHandlers) UpdateOrganizerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := h.loadOrganizer(c, auth.ActionUpdate)
		if !ok {
			return
		}

		var req UpdateOrganizerRequest
		if !bindJSON(c, &req) {
			return
		}

		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				response.Error(c, apperr.Validation("name cannot be empty"))
				return
			}
			o.Name = strings.TrimSpace(*req.Name)
		}
		if req.Slug != nil {
			if err := validation.ValidateSlug(*req.Slug); err != nil {
				response.Error(c, apperr.Validation(err.Error()))
				return
			}
			o.Slug = *req.Slug
		}
		if req.ContactEmail != nil {
			if *req.ContactEmail != "" {
				if err := validation.ValidateEmail(*req.ContactEmail); err != nil {
					response.Error(c, apperr.Validation(err.Error()))
					return
				}
			}
			o.ContactEmail = req.ContactEmail
		}
		if req.ContactPhone != nil {
			o.ContactPhone = req.ContactPhone
		}
		if req.Website != nil {
			o.Website = req.Website
		}
		if req.Config != nil {
			o.Config = *req.Config
		}
		if req.IsActive != nil {
			o.IsActive = *req.IsActive
		}

		if err := h.organizerRepo.Update(c.Request.Context(), o, identity(c).ActorFor(o.UUID)); err != nil {
			response.Error(c, writeError(err, "update organizer", "organizer not found", "an organizer with this slug already exists"))
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// @Summary      Delete organizer
// @Description  Soft-deletes the organizer.
// @Tags         Organizers
// @Security     Bearer
// @Param        organizer_uuid  path  string  true  "Organizer UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Router       /api/v1/admin/organizers/{organizer_uuid} [delete]
// DeleteOrganizerHandler soft-deletes an organizer
// DELETE /api/v1/admin/organizers/:organizer_uuid
func (h *OrganizerHandlers) DeleteOrganizerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		orgUUID, ok := uuidParam(c, "organizer_uuid", "organizer not found")
		if !ok {
			return
		}
		if err := auth.Authorize(id, auth.InOrganizer(auth.ResourceOrganizer, orgUUID), auth.ActionDelete); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.organizerRepo.Delete(c.Request.Context(), orgUUID, id.ActorFor(orgUUID)); err != nil {
			response.Error(c, writeError(err, "delete organizer", "organizer not found", ""))
			return
		}
		slog.Info("organizer deleted", "organizer_uuid", orgUUID)
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Approve organizer
// @Description  Moves a pending application to approved.
// @Tags         Organizers
// @Security     Bearer
// @Param        organizer_uuid  path  string  true  "Organizer UUID"
// @Success      200  {object}  models.Organizer
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Failure      409  {object}  map[string]interface{}  "Invalid status transition"
// @Router       /api/v1/admin/organizers/{organizer_uuid}/approve [post]
// ApproveOrganizerHandler approves an organizer application
// POST /api/v1/admin/organizers/:organizer_uuid/approve
func (h *OrganizerHandlers) ApproveOrganizerHandler() gin.HandlerFunc {
	return h.review(models.OrganizerStatusApproved)
}

// @Summary      Reject organizer
// @Description  Moves a pending application to rejected.
// @Tags         Organizers
// @Security     Bearer
// @Param        organizer_uuid  path  string  true  "Organizer UUID"
// @Success      200  {object}  models.Organizer
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Failure      409  {object}  map[string]interface{}  "Invalid status transition"
// @Router       /api/v1/admin/organizers/{organizer_uuid}/reject [post]
// RejectOrganizerHandler rejects an organizer application
// POST /api/v1/admin/organizers/:organizer_uuid/reject
func (h *OrganizerHandlers) RejectOrganizerHandler() gin.HandlerFunc {
	return h.review(models.OrganizerStatusRejected)
}

func (h *OrganizerHandlers) review(target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := h.loadOrganizer(c, auth.ActionApprove)
		if !ok {
			return
		}
		if err := lifecycle.AssertOrganizerTransition(o.Status, target); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.organizerRepo.SetStatus(c.Request.Context(), o, target, identity(c).Actor()); err != nil {
			response.Error(c, writeError(err, "update organizer status", "organizer not found", ""))
			return
		}
		slog.Info("organizer reviewed", "organizer_uuid", o.UUID, "status", target)
		c.JSON(http.StatusOK, o)
	}
}

// @Summary      Apply for an organizer
// @Description  Any authenticated user may apply. The organizer is created pending review with the caller as its owner.
// @Tags         Organizers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  OrganizerInput  true  "Organizer (owner_uuid is ignored)"
// @Success      201  {object}  models.Organizer
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Slug already taken"
// @Router       /api/v1/public/organizer-applications [post]
// ApplyOrganizerHandler creates a pending organizer owned by the caller
// POST /api/v1/public/organizer-applications
func (h *OrganizerHandlers) ApplyOrganizerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := auth.Authorize(id, auth.Platform(auth.ResourceOrganizer), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}

		var req OrganizerInput
		if !bindJSON(c, &req) {
			return
		}
		o, err := req.Organizer(models.OrganizerStatusPending)
		if err != nil {
			response.Error(c, err)
			return
		}

		actor := id.Actor()
		if err := createWithOwner(c.Request.Context(), h.db, o, id.User.UUID, actor); err != nil {
			response.Error(c, err)
			return
		}

		slog.Info("organizer application received", "organizer_uuid", o.UUID, "applicant", id.User.UUID)
		c.JSON(http.StatusCreated, o)
	}
}
