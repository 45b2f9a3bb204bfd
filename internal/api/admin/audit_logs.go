// audit_logs.go implements read-only handlers over the audit trail.
package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/api/response"
	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/repositories"
)

// AuditLogHandlers handles audit log endpoints
type AuditLogHandlers struct {
	cfg       *config.Config
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(cfg *config.Config, db *sql.DB) *AuditLogHandlers {
	return &AuditLogHandlers{
		cfg:       cfg,
		auditRepo: repositories.NewAuditRepository(db),
	}
}

// @Summary      List audit logs
// @Description  Platform admins and auditors read the whole trail. Organizer members must pass organizer_uuid and see only that organizer's entries.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        organizer_uuid  query  string  false  "Only entries of this organizer"
// @Param        user_uuid       query  string  false  "Only entries by this user"
// @Param        action          query  string  false  "Action, e.g. event.created"
// @Param        resource_type   query  string  false  "Resource type, e.g. submission"
// @Param        resource_uuid   query  string  false  "Resource UUID"
// @Param        since           query  string  false  "RFC 3339 lower bound on created_at"
// @Param        until           query  string  false  "RFC 3339 upper bound on created_at"
// @Param        page            query  int     false  "Page number (default 1)"
// @Param        per_page        query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "audit_logs: []models.AuditLog, pagination: {page, per_page, total}"
// @Failure      400  {object}  map[string]interface{}  "Invalid time bound"
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Router       /api/v1/admin/audit-logs [get]
// ListAuditLogsHandler lists audit entries, newest first
// GET /api/v1/admin/audit-logs
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		filters := repositories.AuditFilters{
			Action:       optionalQuery(c, "action"),
			ResourceType: optionalQuery(c, "resource_type"),
		}
		for name, dst := range map[string]**string{
			"user_uuid":      &filters.UserUUID,
			"organizer_uuid": &filters.OrganizerUUID,
			"resource_uuid":  &filters.ResourceUUID,
		} {
			v, err := uuidQuery(c, name)
			if err != nil {
				response.Error(c, err)
				return
			}
			*dst = v
		}

		res := auth.Platform(auth.ResourceAuditLog)
		if filters.OrganizerUUID != nil {
			res = auth.InOrganizer(auth.ResourceAuditLog, *filters.OrganizerUUID)
		}
		if err := auth.Authorize(id, res, auth.ActionRead); err != nil {
			response.Error(c, err)
			return
		}

		var err error
		if filters.StartDate, err = parseTime(c, "since"); err != nil {
			response.Error(c, err)
			return
		}
		if filters.EndDate, err = parseTime(c, "until"); err != nil {
			response.Error(c, err)
			return
		}
		if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
			response.Error(c, apperr.Validation("until must not be before since"))
			return
		}

		p := parsePage(c)
		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, p.PerPage, p.offset())
		if err != nil {
			response.Error(c, apperr.Internal("failed to list audit logs", err))
			return
		}
		c.JSON(http.StatusOK, paginated("audit_logs", logs, p, total))
	}
}

// @Summary      Get audit log entry
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Audit log ID"
// @Success      200  {object}  models.AuditLog
// @Failure      403  {object}  map[string]interface{}  "Forbidden"
// @Failure      404  {object}  map[string]interface{}  "Audit log not found"
// @Router       /api/v1/admin/audit-logs/{id} [get]
// GetAuditLogHandler retrieves one audit entry
// GET /api/v1/admin/audit-logs/:id
func (h *AuditLogHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logID, ok := uuidParam(c, "id", "audit log not found")
		if !ok {
			return
		}
		entry, err := h.auditRepo.GetAuditLog(c.Request.Context(), logID)
		if err != nil {
			response.Error(c, apperr.Internal("failed to load audit log", err))
			return
		}
		if entry == nil {
			response.Error(c, apperr.NotFound("audit log not found"))
			return
		}
		// Entries without an organizer are platform-scoped.
		if err := auth.Authorize(identity(c), auth.InOrganizer(auth.ResourceAuditLog, deref(entry.OrganizerUUID)), auth.ActionRead); err != nil {
			response.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}
