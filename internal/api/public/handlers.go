// Package public implements the unauthenticated registration endpoints: reading a published
// event's form, submitting a registration, looking one up by tracking code, and the email
// verification verify and resend calls.
package public

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/submission"
	"github.com/event-registry/event-registry/internal/validation"
	"github.com/event-registry/event-registry/internal/verification"
)

// Handlers serves the public API
type Handlers struct {
	eventRepo      *repositories.EventRepository
	submissionRepo *repositories.SubmissionRepository
	submissions    *submission.Service
	verifier       *verification.Service
}

// NewHandlers creates a new public Handlers instance
func NewHandlers(db *sql.DB, submissions *submission.Service, verifier *verification.Service) *Handlers {
	return &Handlers{
		eventRepo:      repositories.NewEventRepository(db),
		submissionRepo: repositories.NewSubmissionRepository(db),
		submissions:    submissions,
		verifier:       verifier,
	}
}

// Answers accepts submission values either as [{field_key, value}] or as {field_key: value}.
type Answers []submission.FieldValue

// UnmarshalJSON implements json.Unmarshaler.
func (a *Answers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if data[0] == '{' {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		out := make(Answers, 0, len(m))
		for _, k := range slices.Sorted(maps.Keys(m)) {
			out = append(out, submission.FieldValue{FieldKey: k, Value: m[k]})
		}
		*a = out
		return nil
	}
	var list []submission.FieldValue
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

// SubmissionRequest is the body of a registration
type SubmissionRequest struct {
	ContactEmail string         `json:"contact_email" binding:"required"`
	Values       Answers        `json:"values" swaggertype:"array,object"`
	ExtraData    models.JSONMap `json:"extra_data"`
}

// SubmissionStatus is the public view of a submission found by tracking code. The contact
// email and answers are not disclosed.
type SubmissionStatus struct {
	TrackingCode  string    `json:"tracking_code"`
	Status        string    `json:"status"`
	EventUUID     string    `json:"event_uuid"`
	EventName     string    `json:"event_name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// VerifyRequest is the body of a verify call
type VerifyRequest struct {
	Token string `json:"token"`
}

// ResendRequest is the body of a resend call
type ResendRequest struct {
	RefType string `json:"ref_type"`
	RefUUID string `json:"ref_uuid"`
}

// eventParam reads the event UUID from the path. Anything that is not a UUID is
// answered like an unknown event.
func eventParam(c *gin.Context) (string, bool) {
	eventUUID, err := validation.NormalizeUUID(c.Param("event_uuid"))
	if err != nil {
		response.Detail(c, http.StatusNotFound, "event not found")
		return "", false
	}
	return eventUUID, true
}

// @Summary      Get a published event
// @Description  Returns the event with its form fields. Draft, closed and deleted events are not found.
// @Tags         Public
// @Produce      json
// @Param        event_uuid  path  string  true  "Event UUID"
// @Success      200  {object}  models.Event
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Router       /api/v1/public/events/{event_uuid} [get]
// GetEventHandler returns a published event and its fields
// GET /api/v1/public/events/:event_uuid
func (h *Handlers) GetEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		eventUUID, ok := eventParam(c)
		if !ok {
			return
		}

		event, err := h.eventRepo.GetByUUID(ctx, eventUUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load event", err))
			return
		}
		if event == nil || event.Status != models.EventStatusPublished {
			response.Detail(c, http.StatusNotFound, "event not found")
			return
		}

		fields, err := h.eventRepo.ListFields(ctx, event.UUID, false)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load event fields", err))
			return
		}
		event.Fields = fields
		c.JSON(http.StatusOK, event)
	}
}

// @Summary      Register for an event
// @Description  Creates a pending submission and emails a verification link to contact_email. Values may be a list of {field_key, value} or an object keyed by field_key. A signed-in caller is linked to the submission.
// @Tags         Public
// @Accept       json
// @Produce      json
// @Param        event_uuid  path  string             true  "Event UUID"
// @Param        body        body  SubmissionRequest  true  "Registration"
// @Success      201  {object}  models.Submission
// @Failure      400  {object}  map[string]interface{}  "Invalid answers or registration closed"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Failure      429  {object}  map[string]interface{}  "Rate limit exceeded"
// @Router       /api/v1/public/events/{event_uuid}/submissions [post]
// CreateSubmissionHandler registers a submission for a published event
// POST /api/v1/public/events/:event_uuid/submissions
func (h *Handlers) CreateSubmissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		eventUUID, ok := eventParam(c)
		if !ok {
			return
		}
		var req SubmissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		in := submission.CreateInput{
			EventUUID:    eventUUID,
			ContactEmail: req.ContactEmail,
			Values:       req.Values,
			ExtraData:    req.ExtraData,
			Actor:        models.PublicActor(),
		}
		if ip := c.ClientIP(); ip != "" {
			in.IPAddress = &ip
		}
		if ua := c.Request.UserAgent(); ua != "" {
			in.UserAgent = &ua
		}
		if id := middleware.GetIdentity(c); id != nil {
			in.UserUUID = &id.User.UUID
			in.Actor = id.Actor()
		}

		sub, err := h.submissions.Create(c.Request.Context(), in)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, sub)
	}
}

// @Summary      Look up a submission
// @Description  Returns the status of a submission by its tracking code.
// @Tags         Public
// @Produce      json
// @Param        tracking_code  path  string  true  "Tracking code"
// @Success      200  {object}  SubmissionStatus
// @Failure      404  {object}  map[string]interface{}  "Submission not found"
// @Router       /api/v1/public/submissions/{tracking_code} [get]
// GetSubmissionStatusHandler looks up a submission by tracking code
// GET /api/v1/public/submissions/:tracking_code
func (h *Handlers) GetSubmissionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		sub, err := h.submissionRepo.GetByTrackingCode(ctx, c.Param("tracking_code"))
		if err != nil {
			response.Error(c, apperr.Internal("failed to load submission", err))
			return
		}
		if sub == nil {
			response.Detail(c, http.StatusNotFound, "submission not found")
			return
		}

		verified, err := h.verifier.HasVerified(ctx, models.RefTypeSubmission, sub.UUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to check verification state", err))
			return
		}

		out := SubmissionStatus{
			TrackingCode:  sub.TrackingCode,
			Status:        sub.Status,
			EventUUID:     sub.EventUUID,
			EmailVerified: verified,
			CreatedAt:     sub.CreatedAt,
		}
		// Name lookup is cosmetic.
		if event, err := h.eventRepo.GetByUUID(ctx, sub.EventUUID, true); err == nil && event != nil {
			out.EventName = event.Name
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary      Verify an email address
// @Description  Consumes a verification token. The submission status is not changed. Unknown, used and expired tokens all answer 400.
// @Tags         Email Verification
// @Accept       json
// @Produce      json
// @Param        body  body  VerifyRequest  true  "Token"
// @Success      200  {object}  verification.Result
// @Failure      400  {object}  map[string]interface{}  "Token missing, unknown, used or expired"
// @Router       /api/v1/email-verification/verify [post]
// VerifyHandler consumes a verification token
// POST /api/v1/email-verification/verify
func (h *Handlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		res, err := h.verifier.Verify(c.Request.Context(), req.Token)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary      Resend a verification email
// @Description  Issues a new token, invalidating earlier unused ones. Limited to one request per cooldown and five per hour.
// @Tags         Email Verification
// @Accept       json
// @Produce      json
// @Param        body  body  ResendRequest  true  "Target"
// @Success      200  {object}  map[string]interface{}  "status: sent"
// @Failure      400  {object}  map[string]interface{}  "Unsupported ref_type, malformed ref_uuid or already verified"
// @Failure      404  {object}  map[string]interface{}  "Target not found"
// @Failure      429  {object}  map[string]interface{}  "Cooldown or hourly limit"
// @Router       /api/v1/email-verification/resend [post]
// ResendHandler issues a replacement verification token
// POST /api/v1/email-verification/resend
func (h *Handlers) ResendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Detail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.RefUUID == "" {
			response.Detail(c, http.StatusBadRequest, "ref_uuid is required")
			return
		}
		refUUID, err := validation.NormalizeUUID(req.RefUUID)
		if err != nil {
			response.Detail(c, http.StatusBadRequest, "ref_uuid must be a UUID")
			return
		}
		req.RefUUID = refUUID

		if _, err := h.verifier.Resend(c.Request.Context(), req.RefType, req.RefUUID); err != nil {
			response.Error(c, err)
			return
		}
		slog.Debug("verification email resent", "ref_type", req.RefType, "ref_uuid", req.RefUUID)
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}
