// activities.go implements handlers for the activity catalog: platform-wide activity types and
// the templates events are created from.
package admin

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/validation"
)

// ActivityHandlers handles activity type and template endpoints
type ActivityHandlers struct {
	cfg          *config.Config
	activityRepo *repositories.ActivityRepository
}

// NewActivityHandlers creates a new ActivityHandlers instance
func NewActivityHandlers(cfg *config.Config, db *sql.DB) *ActivityHandlers {
	return &ActivityHandlers{
		cfg:          cfg,
		activityRepo: repositories.NewActivityRepository(db),
	}
}

// @Summary      List activity types
// @Tags         Activities
// @Security     Bearer
// @Produce      json
// @Param        page             query  int   false  "Page number (default 1)"
// @Param        per_page         query  int   false  "Items per page, max 100 (default 20)"
// @Param        include_deleted  query  bool  false  "Include soft-deleted types (history permission)"
// @Success      200  {object}  map[string]interface{}  "activity_types: []models.ActivityType, pagination: {page, per_page, total}"
// @Router       /api/v1/admin/activity-types [get]
// ListTypesHandler lists activity types
// GET /api/v1/admin/activity-types
func (h *ActivityHandlers) ListTypesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		res := auth.Platform(auth.ResourceActivityType)
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

		types, total, err := h.activityRepo.ListTypes(c.Request.Context(), p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list activity types", err))
			return
		}
		c.JSON(http.StatusOK, paginated("activity_types", types, p, total))
	}
}

func (h *ActivityHandlers) loadType(c *gin.Context, action auth.Action) (*models.ActivityType, bool) {
	id := identity(c)
	res := auth.Platform(auth.ResourceActivityType)
	if err := auth.Authorize(id, res, action); err != nil {
		response.Error(c, err)
		return nil, false
	}
	history := false
	if action == auth.ActionRead {
		var err error
		if history, err = includeDeleted(c, id, res); err != nil {
			response.Error(c, err)
			return nil, false
		}
	}
	typeUUID, ok := uuidParam(c, "type_uuid", "activity type not found")
	if !ok {
		return nil, false
	}
	t, err := h.activityRepo.GetType(c.Request.Context(), typeUUID, history)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load activity type", err))
		return nil, false
	}
	if t == nil {
		response.Error(c, apperr.NotFound("activity type not found"))
		return nil, false
	}
	return t, true
}

// @Summary      Get activity type
// @Tags         Activities
// @Security     Bearer
// @Produce      json
// @Param        type_uuid  path  string  true  "Activity type UUID"
// @Success      200  {object}  models.ActivityType
// @Failure      404  {object}  map[string]interface{}  "Activity type not found"
// @Router       /api/v1/admin/activity-types/{type_uuid} [get]
// GetTypeHandler retrieves an activity type
// GET /api/v1/admin/activity-types/:type_uuid
func (h *ActivityHandlers) GetTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t, ok := h.loadType(c, auth.ActionRead); ok {
			c.JSON(http.StatusOK, t)
		}
	}
}

// ActivityTypeRequest is the body for creating an activity type
type ActivityTypeRequest struct {
	Code        string         `json:"code" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Description *string        `json:"description"`
	Config      models.JSONMap `json:"config"`
}

// UpdateActivityTypeRequest carries a partial activity type update
type UpdateActivityTypeRequest struct {
	Code        *string         `json:"code"`
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Config      *models.JSONMap `json:"config"`
}

func checkActivityType(t *models.ActivityType) error {
	if err := validation.ValidateSlug(t.Code); err != nil {
		return apperr.Validationf("invalid code: %s", err.Error())
	}
	if t.Name == "" {
		return apperr.Validation("name is required")
	}
	if t.Config == nil {
		t.Config = models.JSONMap{}
	}
	return nil
}

func (r *ActivityTypeRequest) activityType() (*models.ActivityType, error) {
	t := &models.ActivityType{
		Code:        r.Code,
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Config:      r.Config,
	}
	if err := checkActivityType(t); err != nil {
		return nil, err
	}
	return t, nil
}

// merge returns a copy of t with the request applied.
func (r *UpdateActivityTypeRequest) merge(t *models.ActivityType) (*models.ActivityType, error) {
	m := *t
	if r.Code != nil {
		m.Code = *r.Code
	}
	if r.Name != nil {
		m.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		m.Description = r.Description
	}
	if r.Config != nil {
		m.Config = *r.Config
	}
	if err := checkActivityType(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// @Summary      Create activity type
// @Tags         Activities
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ActivityTypeRequest  true  "Activity type"
// @Success      201  {object}  models.ActivityType
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      409  {object}  map[string]interface{}  "Code already exists"
// @Router       /api/v1/admin/activity-types [post]
// CreateTypeHandler creates an activity type
// POST /api/v1/admin/activity-types
func (h *ActivityHandlers) CreateTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if err := auth.Authorize(id, auth.Platform(auth.ResourceActivityType), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}
		var req ActivityTypeRequest
		if !bindJSON(c, &req) {
			return
		}
		t, err := req.activityType()
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := h.activityRepo.CreateType(c.Request.Context(), t, id.Actor()); err != nil {
			response.Error(c, writeError(err, "create activity type", "activity type not found", "an activity type with this code already exists"))
			return
		}
		middleware.SetAuditTarget(c, "", t.UUID)
		c.JSON(http.StatusCreated, t)
	}
}

// @Summary      Update activity type
// @Tags         Activities
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Description  Partial update; omitted members keep their values. PUT is accepted as an alias.
// @Param        type_uuid  path  string                     true  "Activity type UUID"
// @Param        body       body  UpdateActivityTypeRequest  true  "Members to change"
// @Success      200  {object}  models.ActivityType
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      404  {object}  map[string]interface{}  "Activity type not found"
// @Failure      409  {object}  map[string]interface{}  "Code already exists"
// @Router       /api/v1/admin/activity-types/{type_uuid} [patch]
// UpdateTypeHandler updates an activity type
// PATCH /api/v1/admin/activity-types/:type_uuid
func (h *ActivityHandlers) UpdateTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := h.loadType(c, auth.ActionUpdate)
		if !ok {
			return
		}
		var req UpdateActivityTypeRequest
		if !bindJSON(c, &req) {
			return
		}
		t, err := req.merge(t)
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := h.activityRepo.UpdateType(c.Request.Context(), t, identity(c).Actor()); err != nil {
			response.Error(c, writeError(err, "update activity type", "activity type not found", "an activity type with this code already exists"))
			return
		}
		middleware.SetAuditTarget(c, "", t.UUID)
		c.JSON(http.StatusOK, t)
	}
}

// @Summary      Delete activity type
// @Tags         Activities
// @Security     Bearer
// @Param        type_uuid  path  string  true  "Activity type UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Activity type not found"
// @Router       /api/v1/admin/activity-types/{type_uuid} [delete]
// DeleteTypeHandler soft-deletes an activity type
// DELETE /api/v1/admin/activity-types/:type_uuid
func (h *ActivityHandlers) DeleteTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := h.loadType(c, auth.ActionDelete)
		if !ok {
			return
		}
		if err := h.activityRepo.DeleteType(c.Request.Context(), t.UUID, identity(c).Actor()); err != nil {
			response.Error(c, writeError(err, "delete activity type", "activity type not found", ""))
			return
		}
		middleware.SetAuditTarget(c, "", t.UUID)
		c.Status(http.StatusNoContent)
	}
}

// templateResource scopes a template to its organizer, or to the platform for global ones.
func templateResource(organizerUUID *string) auth.Resource {
	if organizerUUID == nil {
		return auth.Platform(auth.ResourceActivityTemplate)
	}
	return auth.InOrganizer(auth.ResourceActivityTemplate, *organizerUUID)
}

// @Summary      List activity templates
// @Description  Staff see every template; others see global templates and those of their organizers.
// @Tags         Activities
// @Security     Bearer
// @Produce      json
// @Param        activity_type_uuid  query  string  false  "Only templates of this activity type"
// @Param        page                query  int     false  "Page number (default 1)"
// @Param        per_page            query  int     false  "Items per page, max 100 (default 20)"
// @Param        include_deleted     query  bool    false  "Include soft-deleted templates (history permission)"
// @Success      200  {object}  map[string]interface{}  "activity_templates: []models.ActivityTemplate, pagination: {page, per_page, total}"
// @Router       /api/v1/admin/activity-templates [get]
// ListTemplatesHandler lists the templates visible to the caller
// GET /api/v1/admin/activity-templates
func (h *ActivityHandlers) ListTemplatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		res := auth.Platform(auth.ResourceActivityTemplate)
		p := parsePage(c)
		var err error
		if p.IncludeDeleted, err = includeDeleted(c, id, res); err != nil {
			response.Error(c, err)
			return
		}

		typeUUID, err := uuidQuery(c, "activity_type_uuid")
		if err != nil {
			response.Error(c, err)
			return
		}
		filter := repositories.TemplateFilter{ActivityTypeUUID: typeUUID}
		// Global templates are readable by everyone, so platform reach is decided by the
		// system role alone.
		if id.SystemRole() == "" {
			filter.VisibleTo = id.OrganizerUUIDs(models.OrganizerRoleViewer)
		}

		templates, total, err := h.activityRepo.ListTemplates(c.Request.Context(), filter, p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list activity templates", err))
			return
		}
		c.JSON(http.StatusOK, paginated("activity_templates", templates, p, total))
	}
}

func (h *ActivityHandlers) loadTemplate(c *gin.Context, action auth.Action) (*models.ActivityTemplate, bool) {
	id := identity(c)
	history := false
	if action == auth.ActionRead {
		var err error
		if history, err = includeDeleted(c, id, auth.Platform(auth.ResourceActivityTemplate)); err != nil {
			response.Error(c, err)
			return nil, false
		}
	}
	templateUUID, ok := uuidParam(c, "template_uuid", "activity template not found")
	if !ok {
		return nil, false
	}
	t, err := h.activityRepo.GetTemplate(c.Request.Context(), templateUUID, history)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load activity template", err))
		return nil, false
	}
	if t == nil {
		response.Error(c, apperr.NotFound("activity template not found"))
		return nil, false
	}
	if err := auth.Authorize(id, templateResource(t.OrganizerUUID), action); err != nil {
		response.Error(c, err)
		return nil, false
	}
	return t, true
}

// @Summary      Get activity template
// @Tags         Activities
// @Security     Bearer
// @Produce      json
// @Param        template_uuid  path  string  true  "Template UUID"
// @Success      200  {object}  models.ActivityTemplate
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Template not found"
// @Router       /api/v1/admin/activity-templates/{template_uuid} [get]
// GetTemplateHandler retrieves an activity template
// GET /api/v1/admin/activity-templates/:template_uuid
func (h *ActivityHandlers) GetTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t, ok := h.loadTemplate(c, auth.ActionRead); ok {
			c.JSON(http.StatusOK, t)
		}
	}
}

// ActivityTemplateRequest is the body for creating an activity template.
// Omitting organizer_uuid makes the template global.
type ActivityTemplateRequest struct {
	ActivityTypeUUID string                  `json:"activity_type_uuid" binding:"required,uuid"`
	OrganizerUUID    *string                 `json:"organizer_uuid"`
	Name             string                  `json:"name" binding:"required"`
	Description      *string                 `json:"description"`
	DefaultFields    models.FieldDefinitions `json:"default_fields"`
	Config           models.JSONMap          `json:"config"`
}

// UpdateActivityTemplateRequest carries a partial template update. organizer_uuid is
// accepted only when it names the current owner.
type UpdateActivityTemplateRequest struct {
	ActivityTypeUUID *string                  `json:"activity_type_uuid"`
	OrganizerUUID    *string                  `json:"organizer_uuid"`
	Name             *string                  `json:"name"`
	Description      *string                  `json:"description"`
	DefaultFields    *models.FieldDefinitions `json:"default_fields"`
	Config           *models.JSONMap          `json:"config"`
}

// merge returns a copy of t with the request applied.
func (r *UpdateActivityTemplateRequest) merge(t *models.ActivityTemplate) (*models.ActivityTemplate, error) {
	if err := optionalUUID("activity_type_uuid", r.ActivityTypeUUID); err != nil {
		return nil, err
	}
	m := *t
	if r.ActivityTypeUUID != nil {
		m.ActivityTypeUUID = *r.ActivityTypeUUID
	}
	if r.Name != nil {
		m.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		m.Description = r.Description
	}
	if r.DefaultFields != nil {
		m.DefaultFields = *r.DefaultFields
	}
	if r.Config != nil {
		m.Config = *r.Config
	}
	return &m, nil
}

// checkTemplate validates a template about to be written. The activity type is looked up
// only when typeChanged is set.
func (h *ActivityHandlers) checkTemplate(c *gin.Context, t *models.ActivityTemplate, typeChanged bool) error {
	if t.Name == "" {
		return apperr.Validation("name is required")
	}
	if err := checkFieldDefinitions(t.DefaultFields); err != nil {
		return err
	}
	if t.DefaultFields == nil {
		t.DefaultFields = models.FieldDefinitions{}
	}
	if t.Config == nil {
		t.Config = models.JSONMap{}
	}
	if !typeChanged {
		return nil
	}
	at, err := h.activityRepo.GetType(c.Request.Context(), t.ActivityTypeUUID, false)
	if err != nil {
		return apperr.Internal("failed to load activity type", err)
	}
	if at == nil {
		return apperr.Validation("activity_type_uuid does not name an existing activity type")
	}
	return nil
}

// @Summary      Create activity template
// @Description  Global templates need platform permission; organizer templates need editor rights in that organizer.
// @Tags         Activities
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  ActivityTemplateRequest  true  "Template"
// @Success      201  {object}  models.ActivityTemplate
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/activity-templates [post]
// CreateTemplateHandler creates an activity template
// POST /api/v1/admin/activity-templates
func (h *ActivityHandlers) CreateTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req ActivityTemplateRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := optionalUUID("organizer_uuid", req.OrganizerUUID); err != nil {
			response.Error(c, err)
			return
		}
		if req.OrganizerUUID != nil && *req.OrganizerUUID == "" {
			req.OrganizerUUID = nil
		}
		if err := auth.Authorize(id, templateResource(req.OrganizerUUID), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}

		t := &models.ActivityTemplate{
			ActivityTypeUUID: req.ActivityTypeUUID,
			OrganizerUUID:    req.OrganizerUUID,
			Name:             strings.TrimSpace(req.Name),
			Description:      req.Description,
			DefaultFields:    req.DefaultFields,
			Config:           req.Config,
		}
		if err := h.checkTemplate(c, t, true); err != nil {
			response.Error(c, err)
			return
		}
		if err := h.activityRepo.CreateTemplate(c.Request.Context(), t, id.ActorFor(deref(t.OrganizerUUID))); err != nil {
			response.Error(c, writeError(err, "create activity template", "activity template not found", ""))
			return
		}
		middleware.SetAuditTarget(c, deref(t.OrganizerUUID), t.UUID)
		c.JSON(http.StatusCreated, t)
	}
}

// @Summary      Update activity template
// @Description  Partial update; omitted members keep their values. PUT is accepted as an alias. The owning organizer cannot be changed.
// @Tags         Activities
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        template_uuid  path  string                         true  "Template UUID"
// @Param        body           body  UpdateActivityTemplateRequest  true  "Members to change"
// @Success      200  {object}  models.ActivityTemplate
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Template not found"
// @Router       /api/v1/admin/activity-templates/{template_uuid} [patch]
// UpdateTemplateHandler updates an activity template
// PATCH /api/v1/admin/activity-templates/:template_uuid
func (h *ActivityHandlers) UpdateTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := h.loadTemplate(c, auth.ActionUpdate)
		if !ok {
			return
		}
		var req UpdateActivityTemplateRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.OrganizerUUID != nil && deref(req.OrganizerUUID) != deref(t.OrganizerUUID) {
			response.Error(c, apperr.Validation("organizer_uuid cannot be changed"))
			return
		}
		merged, err := req.merge(t)
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := h.checkTemplate(c, merged, merged.ActivityTypeUUID != t.ActivityTypeUUID); err != nil {
			response.Error(c, err)
			return
		}
		t = merged
		if err := h.activityRepo.UpdateTemplate(c.Request.Context(), t, identity(c).ActorFor(deref(t.OrganizerUUID))); err != nil {
			response.Error(c, writeError(err, "update activity template", "activity template not found", ""))
			return
		}
		middleware.SetAuditTarget(c, deref(t.OrganizerUUID), t.UUID)
		c.JSON(http.StatusOK, t)
	}
}

// @Summary      Delete activity template
// @Tags         Activities
// @Security     Bearer
// @Param        template_uuid  path  string  true  "Template UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Template not found"
// @Router       /api/v1/admin/activity-templates/{template_uuid} [delete]
// DeleteTemplateHandler soft-deletes an activity template
// DELETE /api/v1/admin/activity-templates/:template_uuid
func (h *ActivityHandlers) DeleteTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := h.loadTemplate(c, auth.ActionDelete)
		if !ok {
			return
		}
		if err := h.activityRepo.DeleteTemplate(c.Request.Context(), t.UUID, identity(c).ActorFor(deref(t.OrganizerUUID))); err != nil {
			response.Error(c, writeError(err, "delete activity template", "activity template not found", ""))
			return
		}
		middleware.SetAuditTarget(c, deref(t.OrganizerUUID), t.UUID)
		c.Status(http.StatusNoContent)
	}
}
