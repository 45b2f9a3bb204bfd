// fields.go implements handlers for the registration form fields of an event.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/validation"
)

// checkFieldDefinition validates the parts of a field definition shared by event fields and
// template default fields.
func checkFieldDefinition(key, label, fieldType string, options models.StringList) error {
	if err := validation.ValidateFieldKey(key); err != nil {
		return apperr.Validation(err.Error())
	}
	if strings.TrimSpace(label) == "" {
		return apperr.Validationf("field %s: label is required", key)
	}
	if !models.IsValidFieldType(fieldType) {
		return apperr.Validationf("field %s: invalid field_type %q", key, fieldType)
	}
	if (fieldType == models.FieldTypeSelect || fieldType == models.FieldTypeMultiSelect) && len(options) == 0 {
		return apperr.Validationf("field %s: %s fields need at least one option", key, fieldType)
	}
	return nil
}

// checkFieldDefinitions validates template default fields, including key uniqueness.
func checkFieldDefinitions(defs models.FieldDefinitions) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := checkFieldDefinition(d.FieldKey, d.Label, d.FieldType, d.Options); err != nil {
			return err
		}
		if seen[d.FieldKey] {
			return apperr.Validationf("field_key %s is defined twice", d.FieldKey)
		}
		seen[d.FieldKey] = true
	}
	return nil
}

// @Summary      List event fields
// @Tags         Events
// @Security     Bearer
// @Produce      json
// @Param        event_uuid       path   string  true   "Event UUID"
// @Param        include_deleted  query  bool    false  "Include removed fields (history permission)"
// @Success      200  {object}  map[string]interface{}  "fields: []models.EventField"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Router       /api/v1/admin/events/{event_uuid}/fields [get]
// ListFieldsHandler lists the form fields of an event ordered by sort_order
// GET /api/v1/admin/events/:event_uuid/fields
func (h *EventHandlers) ListFieldsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.loadEvent(c, auth.ResourceEventField, auth.ActionRead)
		if !ok {
			return
		}
		history, err := includeDeleted(c, identity(c), auth.Platform(auth.ResourceEventField))
		if err != nil {
			response.Error(c, err)
			return
		}
		fields, err := h.eventRepo.ListFields(c.Request.Context(), e.UUID, history)
		if err != nil {
			response.Error(c, apperr.Internal("failed to list event fields", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"fields": fields})
	}
}

// FieldRequest is the body for creating an event field
type FieldRequest struct {
	FieldKey        string            `json:"field_key" binding:"required"`
	Label           string            `json:"label" binding:"required"`
	FieldType       string            `json:"field_type" binding:"required"`
	IsRequired      bool              `json:"is_required"`
	Options         models.StringList `json:"options"`
	ValidationRules models.JSONMap    `json:"validation_rules"`
	Config          models.JSONMap    `json:"config"`
	SortOrder       int               `json:"sort_order"`
}

func (r *FieldRequest) apply(f *models.EventField) {
	f.FieldKey = r.FieldKey
	f.Label = strings.TrimSpace(r.Label)
	f.FieldType = r.FieldType
	f.IsRequired = r.IsRequired
	f.Options = r.Options
	f.ValidationRules = r.ValidationRules
	if f.ValidationRules == nil {
		f.ValidationRules = models.JSONMap{}
	}
	f.Config = r.Config
	if f.Config == nil {
		f.Config = models.JSONMap{}
	}
	f.SortOrder = r.SortOrder
}

// UpdateFieldRequest carries a partial field update. Omitted members keep their values.
type UpdateFieldRequest struct {
	FieldKey        *string            `json:"field_key"`
	Label           *string            `json:"label"`
	FieldType       *string            `json:"field_type"`
	IsRequired      *bool              `json:"is_required"`
	Options         *models.StringList `json:"options"`
	ValidationRules *models.JSONMap    `json:"validation_rules"`
	Config          *models.JSONMap    `json:"config"`
	SortOrder       *int               `json:"sort_order"`
}

// merge returns a copy of f with the request applied.
func (r *UpdateFieldRequest) merge(f *models.EventField) *models.EventField {
	m := *f
	if r.FieldKey != nil {
		m.FieldKey = *r.FieldKey
	}
	if r.Label != nil {
		m.Label = strings.TrimSpace(*r.Label)
	}
	if r.FieldType != nil {
		m.FieldType = *r.FieldType
	}
	if r.IsRequired != nil {
		m.IsRequired = *r.IsRequired
	}
	if r.Options != nil {
		m.Options = *r.Options
	}
	if r.ValidationRules != nil {
		m.ValidationRules = *r.ValidationRules
	}
	if m.ValidationRules == nil {
		m.ValidationRules = models.JSONMap{}
	}
	if r.Config != nil {
		m.Config = *r.Config
	}
	if m.Config == nil {
		m.Config = models.JSONMap{}
	}
	if r.SortOrder != nil {
		m.SortOrder = *r.SortOrder
	}
	return &m
}

// @Summary      Add event field
// @Tags         Events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        event_uuid  path  string        true  "Event UUID"
// @Param        body        body  FieldRequest  true  "Field"
// @Success      201  {object}  models.EventField
// @Failure      400  {object}  map[string]interface{}  "Invalid field"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Failure      409  {object}  map[string]interface{}  "field_key already used on this event"
// @Router       /api/v1/admin/events/{event_uuid}/fields [post]
// CreateFieldHandler adds a form field to an event
// POST /api/v1/admin/events/:event_uuid/fields
func (h *EventHandlers) CreateFieldHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.loadEvent(c, auth.ResourceEventField, auth.ActionCreate)
		if !ok {
			return
		}
		var req FieldRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := checkFieldDefinition(req.FieldKey, req.Label, req.FieldType, req.Options); err != nil {
			response.Error(c, err)
			return
		}

		f := &models.EventField{EventUUID: e.UUID}
		req.apply(f)
		if err := h.eventRepo.CreateField(c.Request.Context(), f, identity(c).ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "create event field", "event not found", "field_key "+f.FieldKey+" is already used on this event"))
			return
		}
		middleware.SetAuditTarget(c, e.OrganizerUUID, f.UUID)
		c.JSON(http.StatusCreated, f)
	}
}

// loadField loads the field named by the path after authorizing action on the event.
func (h *EventHandlers) loadField(c *gin.Context, action auth.Action) (*models.Event, *models.EventField, bool) {
	e, ok := h.loadEvent(c, auth.ResourceEventField, action)
	if !ok {
		return nil, nil, false
	}
	fieldUUID, ok := uuidParam(c, "field_uuid", "field not found")
	if !ok {
		return nil, nil, false
	}
	f, err := h.eventRepo.GetField(c.Request.Context(), fieldUUID, false)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load event field", err))
		return nil, nil, false
	}
	if f == nil || f.EventUUID != e.UUID {
		response.Error(c, apperr.NotFound("field not found"))
		return nil, nil, false
	}
	return e, f, true
}

// @Summary      Update event field
// @Description  Partial update; omitted members keep their values. PUT is accepted as an alias. Changing field_key or field_type of a field that already has answers is rejected with 409.
// @Tags         Events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        event_uuid  path  string        true  "Event UUID"
// @Param        field_uuid  path  string              true  "Field UUID"
// @Param        body        body  UpdateFieldRequest  true  "Members to change"
// @Success      200  {object}  models.EventField
// @Failure      400  {object}  map[string]interface{}  "Invalid field"
// @Failure      404  {object}  map[string]interface{}  "Field not found"
// @Failure      409  {object}  map[string]interface{}  "Field has answers or field_key in use"
// @Router       /api/v1/admin/events/{event_uuid}/fields/{field_uuid} [patch]
// UpdateFieldHandler updates an event field definition
// PATCH /api/v1/admin/events/:event_uuid/fields/:field_uuid
func (h *EventHandlers) UpdateFieldHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, f, ok := h.loadField(c, auth.ActionUpdate)
		if !ok {
			return
		}
		var req UpdateFieldRequest
		if !bindJSON(c, &req) {
			return
		}
		merged := req.merge(f)
		if err := checkFieldDefinition(merged.FieldKey, merged.Label, merged.FieldType, merged.Options); err != nil {
			response.Error(c, err)
			return
		}

		ctx := c.Request.Context()
		if merged.FieldKey != f.FieldKey || merged.FieldType != f.FieldType {
			used, err := h.eventRepo.FieldHasValues(ctx, f.UUID)
			if err != nil {
				response.Error(c, apperr.Internal("failed to check field usage", err))
				return
			}
			if used {
				response.Error(c, apperr.Conflict("field_key and field_type cannot change once submissions reference the field"))
				return
			}
		}

		if err := h.eventRepo.UpdateField(ctx, merged, identity(c).ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "update event field", "field not found", "field_key "+merged.FieldKey+" is already used on this event"))
			return
		}
		middleware.SetAuditTarget(c, e.OrganizerUUID, merged.UUID)
		c.JSON(http.StatusOK, merged)
	}
}

// @Summary      Remove event field
// @Description  Soft-deletes the field. Stored answers keep pointing at it.
// @Tags         Events
// @Security     Bearer
// @Param        event_uuid  path  string  true  "Event UUID"
// @Param        field_uuid  path  string  true  "Field UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Field not found"
// @Router       /api/v1/admin/events/{event_uuid}/fields/{field_uuid} [delete]
// DeleteFieldHandler soft-deletes an event field
// DELETE /api/v1/admin/events/:event_uuid/fields/:field_uuid
func (h *EventHandlers) DeleteFieldHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, f, ok := h.loadField(c, auth.ActionDelete)
		if !ok {
			return
		}
		if err := h.eventRepo.DeleteField(c.Request.Context(), f.UUID, identity(c).ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "delete event field", "field not found", ""))
			return
		}
		middleware.SetAuditTarget(c, e.OrganizerUUID, f.UUID)
		c.Status(http.StatusNoContent)
	}
}
