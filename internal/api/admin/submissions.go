// submissions.go implements handlers for reviewing registrations and moving them through
// their status machine.
package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/db/repositories"
	"github.com/event-registry/event-registry/internal/lifecycle"
	"github.com/event-registry/event-registry/internal/middleware"
	"github.com/event-registry/event-registry/internal/submission"
	"github.com/event-registry/event-registry/internal/verification"
)

// SubmissionHandlers handles submission review endpoints
type SubmissionHandlers struct {
	cfg              *config.Config
	submissionRepo   *repositories.SubmissionRepository
	eventRepo        *repositories.EventRepository
	verificationRepo *repositories.EmailVerificationRepository
	submissions      *submission.Service
	verifier         *verification.Service
}

// NewSubmissionHandlers creates a new SubmissionHandlers instance
func NewSubmissionHandlers(cfg *config.Config, db *sql.DB, submissions *submission.Service, verifier *verification.Service) *SubmissionHandlers {
	return &SubmissionHandlers{
		cfg:              cfg,
		submissionRepo:   repositories.NewSubmissionRepository(db),
		eventRepo:        repositories.NewEventRepository(db),
		verificationRepo: repositories.NewEmailVerificationRepository(db),
		submissions:      submissions,
		verifier:         verifier,
	}
}

// SubmissionDetail is a submission with its verification history
type SubmissionDetail struct {
	*models.Submission
	Verifications []*models.EmailVerification `json:"verifications"`
}

// @Summary      List submissions
// @Description  Platform staff see every submission; organizer viewers and above see those of their organizers' events. Each submission carries its values.
// @Tags         Submissions
// @Security     Bearer
// @Produce      json
// @Param        event_uuid       query  string  false  "Only submissions of this event"
// @Param        status           query  string  false  "pending, email_verified, paid or completed"
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        include_deleted  query  bool    false  "Include soft-deleted submissions (history permission)"
// @Success      200  {object}  map[string]interface{}  "submissions: []models.Submission, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Invalid status"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Event not found"
// @Router       /api/v1/admin/submissions [get]
// ListSubmissionsHandler lists submissions visible to the caller
// GET /api/v1/admin/submissions
func (h *SubmissionHandlers) ListSubmissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		ctx := c.Request.Context()
		p := parsePage(c)

		eventUUID, err := uuidQuery(c, "event_uuid")
		if err != nil {
			response.Error(c, err)
			return
		}
		filter := repositories.SubmissionFilter{
			EventUUID: eventUUID,
			Status:    optionalQuery(c, "status"),
		}
		if filter.Status != nil && !lifecycle.IsSubmissionStatus(*filter.Status) {
			response.Error(c, apperr.Validationf("invalid status %q", *filter.Status))
			return
		}

		scope := auth.Platform(auth.ResourceSubmission)
		if filter.EventUUID != nil {
			e, err := h.eventRepo.GetByUUID(ctx, *filter.EventUUID, true)
			if err != nil {
				response.Error(c, apperr.Internal("failed to load event", err))
				return
			}
			if e == nil {
				response.Error(c, apperr.NotFound("event not found"))
				return
			}
			if err := auth.Authorize(id, auth.InOrganizer(auth.ResourceSubmission, e.OrganizerUUID), auth.ActionRead); err != nil {
				response.Error(c, err)
				return
			}
		} else if !auth.Can(id, scope, auth.ActionRead) {
			filter.OrganizerUUIDs = id.OrganizerUUIDs(models.OrganizerRoleViewer)
		}

		if p.IncludeDeleted, err = includeDeleted(c, id, scope); err != nil {
			response.Error(c, err)
			return
		}

		subs, total, err := h.submissionRepo.List(ctx, filter, p.listOptions())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list submissions", err))
			return
		}

		uuids := make([]string, len(subs))
		for i, s := range subs {
			uuids[i] = s.UUID
		}
		values, err := h.submissionRepo.ListValuesFor(ctx, uuids)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load submission values", err))
			return
		}
		for _, s := range subs {
			s.Values = values[s.UUID]
			if s.Values == nil {
				s.Values = []models.SubmissionValue{}
			}
		}

		c.JSON(http.StatusOK, paginated("submissions", subs, p, total))
	}
}

// loadSubmission loads the submission named by the path with its values and authorizes
// action inside the organizer of its event.
func (h *SubmissionHandlers) loadSubmission(c *gin.Context, action auth.Action) (*models.Submission, string, bool) {
	id := identity(c)
	ctx := c.Request.Context()

	history := false
	if action == auth.ActionRead {
		var err error
		if history, err = includeDeleted(c, id, auth.Platform(auth.ResourceSubmission)); err != nil {
			response.Error(c, err)
			return nil, "", false
		}
	}

	subUUID, ok := uuidParam(c, "submission_uuid", "submission not found")
	if !ok {
		return nil, "", false
	}
	sub, err := h.submissions.Get(ctx, subUUID, history)
	if err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	e, err := h.eventRepo.GetByUUID(ctx, sub.EventUUID, true)
	if err != nil {
		response.Error(c, apperr.Internal("failed to load event", err))
		return nil, "", false
	}
	if e == nil {
		response.Error(c, apperr.NotFound("submission not found"))
		return nil, "", false
	}
	if err := auth.Authorize(id, auth.InOrganizer(auth.ResourceSubmission, e.OrganizerUUID), action); err != nil {
		response.Error(c, err)
		return nil, "", false
	}
	middleware.SetAuditTarget(c, e.OrganizerUUID, sub.UUID)
	return sub, e.OrganizerUUID, true
}

// @Summary      Get submission
// @Description  Returns the submission with its values and verification token history. Token values are never returned.
// @Tags         Submissions
// @Security     Bearer
// @Produce      json
// @Param        submission_uuid  path   string  true   "Submission UUID"
// @Param        include_deleted  query  bool    false  "Return the submission even when soft-deleted (history permission)"
// @Success      200  {object}  SubmissionDetail
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Submission not found"
// @Router       /api/v1/admin/submissions/{submission_uuid} [get]
// GetSubmissionHandler retrieves a submission
// GET /api/v1/admin/submissions/:submission_uuid
func (h *SubmissionHandlers) GetSubmissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, _, ok := h.loadSubmission(c, auth.ActionRead)
		if !ok {
			return
		}
		verifications, err := h.verificationRepo.ListForRef(c.Request.Context(), models.RefTypeSubmission, sub.UUID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load verifications", err))
			return
		}
		c.JSON(http.StatusOK, SubmissionDetail{Submission: sub, Verifications: verifications})
	}
}

// @Summary      Change submission status
// @Description  Moves the submission through pending -> email_verified -> paid -> completed. email_verified also requires a consumed verification token.
// @Tags         Submissions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        submission_uuid  path  string         true  "Submission UUID"
// @Param        body             body  StatusRequest  true  "Target status"
// @Success      200  {object}  models.Submission
// @Failure      400  {object}  map[string]interface{}  "Email not verified"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Submission not found"
// @Failure      409  {object}  map[string]interface{}  "Invalid status transition"
// @Router       /api/v1/admin/submissions/{submission_uuid}/status [post]
// SubmissionStatusHandler transitions a submission
// POST /api/v1/admin/submissions/:submission_uuid/status
func (h *SubmissionHandlers) SubmissionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StatusRequest
		if !bindJSON(c, &req) {
			return
		}
		sub, orgUUID, ok := h.loadSubmission(c, auth.ActionTransition)
		if !ok {
			return
		}
		updated, err := h.submissions.Transition(c.Request.Context(), sub.UUID, req.Status, identity(c).ActorFor(orgUUID))
		if err != nil {
			response.Error(c, err)
			return
		}
		updated.Values = sub.Values
		c.JSON(http.StatusOK, updated)
	}
}

// @Summary      Resend verification email
// @Description  Issues a fresh verification token for the submission under the same cooldown and hourly cap as the public endpoint.
// @Tags         Submissions
// @Security     Bearer
// @Produce      json
// @Param        submission_uuid  path  string  true  "Submission UUID"
// @Success      200  {object}  map[string]interface{}  "status: sent"
// @Failure      400  {object}  map[string]interface{}  "Already verified"
// @Failure      404  {object}  map[string]interface{}  "Submission not found"
// @Failure      429  {object}  map[string]interface{}  "Cooldown or hourly cap"
// @Router       /api/v1/admin/submissions/{submission_uuid}/resend-verification [post]
// ResendVerificationHandler re-issues a verification token on behalf of a registrant
// POST /api/v1/admin/submissions/:submission_uuid/resend-verification
func (h *SubmissionHandlers) ResendVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, _, ok := h.loadSubmission(c, auth.ActionUpdate)
		if !ok {
			return
		}
		if _, err := h.verifier.Resend(c.Request.Context(), models.RefTypeSubmission, sub.UUID); err != nil {
			response.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}

// @Summary      Delete submission
// @Description  Soft-deletes the submission. Its values stay attached for history reads.
// @Tags         Submissions
// @Security     Bearer
// @Param        submission_uuid  path  string  true  "Submission UUID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Submission not found"
// @Router       /api/v1/admin/submissions/{submission_uuid} [delete]
// DeleteSubmissionHandler soft-deletes a submission
// DELETE /api/v1/admin/submissions/:submission_uuid
func (h *SubmissionHandlers) DeleteSubmissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, orgUUID, ok := h.loadSubmission(c, auth.ActionDelete)
		if !ok {
			return
		}
		if err := h.submissionRepo.Delete(c.Request.Context(), sub.UUID, identity(c).ActorFor(orgUUID)); err != nil {
			response.Error(c, writeError(err, "delete submission", "submission not found", ""))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
