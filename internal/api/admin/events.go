// events.go implements handlers for event CRUD, status transitions, and creating events
// from activity templates.
package admin

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

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

// EventHandlers handles event and event-field endpoints
type EventHandlers struct {
	cfg           *config.Config
	db            *sql.DB
	eventRepo     *repositories.EventRepository
	organizerRepo *repositories.OrganizerRepository
	activityRepo  *repositories.ActivityRepository
}

// NewEventHandlers creates a new EventHandlers instance
func NewEventHandlers(cfg *config.Config, db *sql.DB) *EventHandlers {
	return &EventHandlers{
		cfg:           cfg,
		db:            db,
		eventRepo:     repositories.NewEventRepository(db),
		organizerRepo: repositories.NewOrganizerRepository(db),
		activityRepo:  repositories.NewActivityRepository(db),
	}
}

// @Summary      List events
// @Description  Platform staff see every event; organizer members see the events of their organizers.
// @Tags         Events
// @Security     Bearer
// @Produce      json
// @Param        organizer_uuid   query  string  false  "Only events of this organizer"
// @Param        status           query  string  false  "draft, published or closed"
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        include_deleted  query  bool    false  "Include soft-deleted events (history permission)"
// @Success      200  {object}  map[string]interface{}  "events: []models.Event, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Invalid status"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/events [get]
// ListEventsHandler lists events visible to the caller
// GET /api/v1/admin/events
func (h *EventHandlers) ListEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		p := parsePage(c)

		orgUUID, err := uuidQuery(c, "organizer_uuid")
		if err != nil {
			response.Error(c, err)
			return
		}
		filter := repositories.EventFilter{
			OrganizerUUID: orgUUID,
			Status:        optionalQuery(c, "status"),
		}
		if filter.Status != nil && !lifecycle.IsEventStatus(*filter.Status) {
			response.Error(c, apperr.Validationf("invalid status %q", *filter.Status))
			return
		}

		scope := auth.Platform(auth.ResourceEvent)
		if filter.OrganizerUUID != nil {
			scope = auth.InOrganizer(auth.ResourceEvent, *filter.OrganizerUUID)
			if err := auth.Authorize(id, scope, auth.ActionRead); err != nil {
				response.Error(c, err)
				return
			}
		} else if !auth.Can(id, scope, auth.ActionRead) {
			filter.OrganizerUUIDs = id.OrganizerUUIDs(models.OrganizerRoleMember)
		}

		if p.IncludeDeleted, err = includeDeleted(c, id, scope); err != nil {
			response.Error(c, err)
			return
		}

		events, total, err := h.eventRepo.List(c.Request.Context(), filter, p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list events", err))
			return
		}
		c.JSON(http.StatusOK, paginated("events", events, p, total))
	}
}

// loadEvent loads the event named by the path parameter and authorizes action on res
// inside its organizer. Soft-deleted events are visible only to history reads.
func (h *EventHandlers) loadEvent(c *gin.Context, res auth.ResourceType, action auth.Action) (*models.Event, bool) {
	id := identity(c)
	ctx := c.Request.Context()

	history := false
	if action == auth.ActionRead {
		var err error
		if history, err = includeDeleted(c, id, auth.Platform(res)); err != nil {
			response.Error(c, err)
			return nil, false
		}
	}

	eventUUID, ok := uuidParam(c, "event_uuid", "event not found")
	if !ok {
		return nil, false
	}
	e, err := h.eventRepo.GetByUUID(ctx, eventUUID, history)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load event", err))
		return nil, false
	}
	if e == nil {
		response.Error(c, apperr.NotFound("event not found"))
		return nil, false
	}
	if err := auth.Authorize(id, auth.InOrganizer(res, e.OrganizerUUID), action); err != nil {
		response.Error(c, err)
		return nil, false
	}
	middleware.SetAuditTarget(c, e.OrganizerUUID, "")
	return e, true
}

// @Summary      Get event
// @Description  Returns the event with its form fields.
// @Tags         Events
// @Security     Bearer
// @Produce      json
// @Param        event_uuid       path   string  true   "Event UUID"
// @Param        include_deleted  query  bool    false  "Return the event even when soft-deleted (history permission)"
// @Success      200  {object}  models.Event
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Router       /api/v1/admin/events/{event_uuid} [get]
// GetEventHandler retrieves an event and its fields
// GET /api/v1/admin/events/:event_uuid
func (h *EventHandlers) GetEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.loadEvent(c, auth.ResourceEvent, auth.ActionRead)
		if !ok {
			return
		}
		fields, err := h.eventRepo.ListFields(c.Request.Context(), e.UUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load event fields", err))
			return
		}
		e.Fields = fields
		c.JSON(http.StatusOK, e)
	}
}

// CreateEventRequest is the body for creating an event
type CreateEventRequest struct {
	OrganizerUUID        string         `json:"organizer_uuid" binding:"required,uuid"`
	ActivityTemplateUUID *string        `json:"activity_template_uuid"`
	Code                 string         `json:"code" binding:"required"`
	Name                 string         `json:"name" binding:"required"`
	Description          *string        `json:"description"`
	StartsAt             *time.Time     `json:"starts_at"`
	EndsAt               *time.Time     `json:"ends_at"`
	RegistrationDeadline *time.Time     `json:"registration_deadline"`
	Config               models.JSONMap `json:"config"`
}

// event validates the request and builds a draft event.
func (r *CreateEventRequest) event() (*models.Event, error) {
	if err := validation.ValidateEventCode(r.Code); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := optionalUUID("activity_template_uuid", r.ActivityTemplateUUID); err != nil {
		return nil, err
	}
	if r.ActivityTemplateUUID != nil && *r.ActivityTemplateUUID == "" {
		r.ActivityTemplateUUID = nil
	}
	e := &models.Event{
		OrganizerUUID:        r.OrganizerUUID,
		ActivityTemplateUUID: r.ActivityTemplateUUID,
		Code:                 r.Code,
		Name:                 name,
		Description:          r.Description,
		Status:               models.EventStatusDraft,
		StartsAt:             utcPtr(r.StartsAt),
		EndsAt:               utcPtr(r.EndsAt),
		RegistrationDeadline: utcPtr(r.RegistrationDeadline),
		Config:               r.Config,
	}
	if e.Config == nil {
		e.Config = models.JSONMap{}
	}
	if err := checkSchedule(e); err != nil {
		return nil, err
	}
	return e, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// checkSchedule rejects an event that ends before it starts.
func checkSchedule(e *models.Event) error {
	if e.StartsAt != nil && e.EndsAt != nil && e.EndsAt.Before(*e.StartsAt) {
		return apperr.Validation("ends_at must not be before starts_at")
	}
	return nil
}

// approvedOrganizer loads an organizer that may host events.
func (h *EventHandlers) approvedOrganizer(c *gin.Context, orgUUID string) error {
	o, err := h.organizerRepo.GetByUUID(c.Request.Context(), orgUUID, false)
	if err != nil {
		return apperr.Internal("failed to load organizer", err)
	}
	if o == nil {
		return apperr.NotFound("organizer not found")
	}
	if o.Status != models.OrganizerStatusApproved {
		return apperr.Validation("organizer is not approved")
	}
	return nil
}

// @Summary      Create event
// @Description  Creates a draft event for an approved organizer.
// @Tags         Events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateEventRequest  true  "Event"
// @Success      201  {object}  models.Event
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Organizer not found"
// @Failure      409  {object}  map[string]interface{}  "Event code already exists"
// @Router       /api/v1/admin/events [post]
// CreateEventHandler creates an event
// POST /api/v1/admin/events
func (h *EventHandlers) CreateEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		var req CreateEventRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := auth.Authorize(id, auth.InOrganizer(auth.ResourceEvent, req.OrganizerUUID), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}
		e, err := req.event()
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := h.approvedOrganizer(c, req.OrganizerUUID); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.eventRepo.Create(c.Request.Context(), e, id.ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "create event", "event not found", "an event with this code already exists"))
			return
		}

		middleware.SetAuditTarget(c, e.OrganizerUUID, e.UUID)
		slog.Info("event created", "event_uuid", e.UUID, "code", e.Code, "organizer_uuid", e.OrganizerUUID)
		c.JSON(http.StatusCreated, e)
	}
}

// FromTemplateRequest creates an event from an activity template
type FromTemplateRequest struct {
	TemplateUUID string `json:"template_uuid" binding:"required,uuid"`
	CreateEventRequest
}

// @Summary      Create event from template
// @Description  Creates a draft event and copies the template's default fields onto it in one transaction.
// @Tags         Events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  FromTemplateRequest  true  "Template and event"
// @Success      201  {object}  models.Event
// @Failure      400  {object}  map[string]interface{}  "Invalid input or template not usable by this organizer"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      409  {object}  map[string]interface{}  "Event code already exists"
// @Router       /api/v1/admin/events/from-template [post]
// CreateFromTemplateHandler instantiates an activity template
// POST /api/v1/admin/events/from-template
func (h *EventHandlers) CreateFromTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		ctx := c.Request.Context()

		var req FromTemplateRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := auth.Authorize(id, auth.InOrganizer(auth.ResourceEvent, req.OrganizerUUID), auth.ActionCreate); err != nil {
			response.Error(c, err)
			return
		}

		tpl, err := h.activityRepo.GetTemplate(ctx, req.TemplateUUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load template", err))
			return
		}
		if tpl == nil || (tpl.OrganizerUUID != nil && *tpl.OrganizerUUID != req.OrganizerUUID) {
			response.Error(c, apperr.Validation("template not found for this organizer"))
			return
		}

		req.ActivityTemplateUUID = &tpl.UUID
		if req.Description == nil {
			req.Description = tpl.Description
		}
		e, err := req.event()
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := h.approvedOrganizer(c, req.OrganizerUUID); err != nil {
			response.Error(c, err)
			return
		}

		actor := id.ActorFor(e.OrganizerUUID)
		err = db.WithTx(ctx, h.db, func(tx *sql.Tx) error {
			events := h.eventRepo.WithTx(tx)
			if err := events.Create(ctx, e, actor); err != nil {
				return writeError(err, "create event", "event not found", "an event with this code already exists")
			}
			for _, def := range tpl.DefaultFields {
				f := fieldFromDefinition(e.UUID, def)
				if err := events.CreateField(ctx, &f, actor); err != nil {
					return writeError(err, "create event field", "event not found", "template defines field_key "+def.FieldKey+" twice")
				}
				e.Fields = append(e.Fields, f)
			}
			return nil
		})
		if err != nil {
			response.Error(c, err)
			return
		}

		middleware.SetAuditTarget(c, e.OrganizerUUID, e.UUID)
		slog.Info("event created from template", "event_uuid", e.UUID, "template_uuid", tpl.UUID, "fields", len(e.Fields))
		c.JSON(http.StatusCreated, e)
	}
}

func fieldFromDefinition(eventUUID string, def models.FieldDefinition) models.EventField {
	rules := def.ValidationRules
	if rules == nil {
		rules = models.JSONMap{}
	}
	return models.EventField{
		EventUUID:       eventUUID,
		FieldKey:        def.FieldKey,
		Label:           def.Label,
		FieldType:       def.FieldType,
		IsRequired:      def.IsRequired,
		Options:         def.Options,
		ValidationRules: rules,
		Config:          models.JSONMap{},
		SortOrder:       def.SortOrder,
	}
}

// UpdateEventRequest carries a partial event update. Code is accepted only when unchanged.
type UpdateEventRequest struct {
	Code                 *string         `json:"code"`
	Name                 *string         `json:"name"`
	Description          *string         `json:"description"`
	ActivityTemplateUUID *string         `json:"activity_template_uuid"`
	StartsAt             *time.Time      `json:"starts_at"`
	EndsAt               *time.Time      `json:"ends_at"`
	RegistrationDeadline *time.Time      `json:"registration_deadline"`
	Config               *models.JSONMap `json:"config"`
}

// @Summary      Update event
// @Description  Partial update. The event code is immutable; status changes go through the status endpoint. PUT is accepted as an alias.
// @Tags         Events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        event_uuid  path  string              true  "Event UUID"
// @Param        body        body  UpdateEventRequest  true  "Fields to change"
// @Success      200  {object}  models.Event
// @Failure      400  {object}  map[string]interface{}  "Invalid input"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Router       /api/v1/admin/events/{event_uuid} [patch]
// UpdateEventHandler updates an event
// PATCH /api/v1/admin/events/:event_uuid
func (h *EventHandlers) UpdateEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.loadEvent(c, auth.ResourceEvent, auth.ActionUpdate)
		if !ok {
			return
		}
		var req UpdateEventRequest
		if !bindJSON(c, &req) {
			return
		}

		if req.Code != nil && *req.Code != e.Code {
			response.Error(c, apperr.Validation("event code cannot be changed"))
			return
		}
		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				response.Error(c, apperr.Validation("name cannot be empty"))
				return
			}
			e.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			e.Description = req.Description
		}
		if req.ActivityTemplateUUID != nil {
			if err := optionalUUID("activity_template_uuid", req.ActivityTemplateUUID); err != nil {
				response.Error(c, err)
				return
			}
			e.ActivityTemplateUUID = req.ActivityTemplateUUID
			if *req.ActivityTemplateUUID == "" {
				e.ActivityTemplateUUID = nil
			}
		}
		if req.StartsAt != nil {
			e.StartsAt = utcPtr(req.StartsAt)
		}
		if req.EndsAt != nil {
			e.EndsAt = utcPtr(req.EndsAt)
		}
		if req.RegistrationDeadline != nil {
			e.RegistrationDeadline = utcPtr(req.RegistrationDeadline)
		}
		if req.Config != nil {
			e.Config = *req.Config
		}
		if err := checkSchedule(e); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.eventRepo.Update(c.Request.Context(), e, identity(c).ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "update event", "event not found", ""))
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// StatusRequest names a target status
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary      Change event status
// @Description  Moves the event through draft -> published -> closed. Other moves are rejected with 409.
// @Tags         Events
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        event_uuid  path  string         true  "Event UUID"
// @Param        body        body  StatusRequest  true  "Target status"
// @Success      200  {object}  models.Event
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Failure      409  {object}  map[string]interface{}  "Invalid status transition"
// @Router       /api/v1/admin/events/{event_uuid}/status [post]
// EventStatusHandler transitions an event
// POST /api/v1/admin/events/:event_uuid/status
func (h *EventHandlers) EventStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StatusRequest
		if !bindJSON(c, &req) {
			return
		}
		e, ok := h.loadEvent(c, auth.ResourceEvent, auth.ActionTransition)
		if !ok {
			return
		}
		if err := lifecycle.AssertEventTransition(e.Status, req.Status); err != nil {
			response.Error(c, err)
			return
		}

		if err := h.eventRepo.SetStatus(c.Request.Context(), e, req.Status, identity(c).ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "update event status", "event not found", ""))
			return
		}
		slog.Info("event status changed", "event_uuid", e.UUID, "status", e.Status)
		c.JSON(http.StatusOK, e)
	}
}

// @Summary      Delete event
// @Description  Soft-deletes the event.
// @Tags         Events
// @Security     Bearer
// @Param        event_uuid  path  string  true  "Event UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Router       /api/v1/admin/events/{event_uuid} [delete]
// DeleteEventHandler soft-deletes an event
// DELETE /api/v1/admin/events/:event_uuid
func (h *EventHandlers) DeleteEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := h.loadEvent(c, auth.ResourceEvent, auth.ActionDelete)
		if !ok {
			return
		}
		if err := h.eventRepo.Delete(c.Request.Context(), e.UUID, identity(c).ActorFor(e.OrganizerUUID)); err != nil {
			response.Error(c, writeError(err, "delete event", "event not found", ""))
			return
		}
		slog.Info("event deleted", "event_uuid", e.UUID)
		c.Status(http.StatusNoContent)
	}
}
