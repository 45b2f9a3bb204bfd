// audit.go provides Gin middleware that records administrative operations to the audit log.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/event-registry/event-registry/internal/safego"
)

// Context keys handlers set when the affected tenant or resource is only known after a
// lookup (for example the organizer that owns an event).
const (
	auditOrganizerKey = "audit_organizer_uuid"
	auditResourceKey  = "audit_resource_uuid"
)

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SetAuditTarget names the organizer and resource the current request acted on.
// Empty values leave the corresponding field unset.
func SetAuditTarget(c *gin.Context, organizerUUID, resourceUUID string) {
	if organizerUUID != "" {
		c.Set(auditOrganizerKey, organizerUUID)
	}
	if resourceUUID != "" {
		c.Set(auditResourceKey, resourceUUID)
	}
}

// resourceSegments maps route segments to audit resource types.
var resourceSegments = map[string]string{
	"organizers":         "organizer",
	"memberships":        "membership",
	"events":             "event",
	"fields":             "event_field",
	"activity-types":     "activity_type",
	"activity-templates": "activity_template",
	"submissions":        "submission",
	"users":              "user",
	"system-role":        "system_role",
	"audit-logs":         "audit_log",
	"file-records":       "file_record",
}

// verbSegments maps trailing action segments to audit verbs.
var verbSegments = map[string]string{
	"status":        "status_changed",
	"approve":       "approved",
	"reject":        "rejected",
	"from-template": "created",
}

// auditAction derives the resource type and action name ("event.created") from the route
// template, so raw user-supplied path values never reach the action column.
func auditAction(method, route string) (resourceType, action string) {
	verb := ""
	for _, seg := range strings.Split(route, "/") {
		if seg == "" || strings.HasPrefix(seg, ":") {
			continue
		}
		if rt, ok := resourceSegments[seg]; ok {
			resourceType = rt
			verb = ""
			continue
		}
		if v, ok := verbSegments[seg]; ok {
			verb = v
		}
	}
	if verb == "" {
		switch method {
		case http.MethodPost:
			verb = "created"
		case http.MethodPut, http.MethodPatch:
			verb = "updated"
		case http.MethodDelete:
			verb = "deleted"
		default:
			verb = "read"
		}
	}
	if resourceType == "" {
		return "", method + " " + route
	}
	return resourceType, resourceType + "." + verb
}

// AuditMiddleware records requests after they complete. With a nil cfg only successful
// writes are recorded. Entries are written asynchronously so a slow audit insert never
// delays the response.
func AuditMiddleware(writer AuditWriter, cfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if writer == nil || c.Request.Method == http.MethodOptions {
			return
		}
		if cfg != nil && !cfg.Enabled {
			return
		}

		isReadOp := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		isFailed := c.Writer.Status() >= 400
		logReadOps := cfg != nil && cfg.LogReadOperations
		logFailedReqs := cfg != nil && cfg.LogFailedRequests

		if isReadOp && !logReadOps {
			return
		}
		if isFailed && !logFailedReqs {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		resourceType, action := auditAction(c.Request.Method, route)

		entry := &models.AuditLog{
			Action: action,
			Metadata: map[string]interface{}{
				"method":      c.Request.Method,
				"route":       route,
				"status_code": c.Writer.Status(),
			},
		}
		if rid := c.GetString("request_id"); rid != "" {
			entry.Metadata["request_id"] = rid
		}
		if ip := c.ClientIP(); ip != "" {
			entry.IPAddress = &ip
		}
		if resourceType != "" {
			entry.ResourceType = &resourceType
		}

		orgUUID := c.GetString(auditOrganizerKey)
		if orgUUID == "" {
			orgUUID = c.Param("organizer_uuid")
		}
		if orgUUID != "" {
			entry.OrganizerUUID = &orgUUID
		}

		resUUID := c.GetString(auditResourceKey)
		if resUUID == "" && len(c.Params) > 0 {
			resUUID = c.Params[len(c.Params)-1].Value
		}
		if resUUID != "" {
			entry.ResourceUUID = &resUUID
		}

		if id := GetIdentity(c); id != nil && id.User != nil {
			actor := id.ActorFor(orgUUID)
			entry.UserUUID = actor.UserRef()
			entry.ActorRole = actor.RoleRef()
		}

		safego.Go("audit-log", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := writer.CreateAuditLog(ctx, entry); err != nil {
				slog.Error("failed to write audit log", "action", entry.Action, "error", err)
			}
		})
	}
}
