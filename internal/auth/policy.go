// Package auth - policy.go is the single authorization decision point. Every handler calls
// Authorize with the resolved identity, the target resource (carrying its owning organizer
// when it has one), and the action.
package auth

import (
	"fmt"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db/models"
)

// ResourceType names a protected entity kind.
type ResourceType string

const (
	ResourceOrganizer        ResourceType = "organizer"
	ResourceMembership       ResourceType = "membership"
	ResourceEvent            ResourceType = "event"
	ResourceEventField       ResourceType = "event_field"
	ResourceActivityType     ResourceType = "activity_type"
	ResourceActivityTemplate ResourceType = "activity_template"
	ResourceSubmission       ResourceType = "submission"
	ResourceUser             ResourceType = "user"
	ResourceSystemRole       ResourceType = "system_role"
	ResourceAuditLog         ResourceType = "audit_log"
	ResourceFileRecord       ResourceType = "file_record"
)

// Action is an operation on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionTransition moves a resource through its status machine.
	ActionTransition Action = "transition"
	// ActionApprove reviews an organizer application.
	ActionApprove Action = "approve"
	// ActionHistory reads soft-deleted rows.
	ActionHistory Action = "history"
)

// Resource describes the target of an action.
type Resource struct {
	Type ResourceType
	// OrganizerUUID is the owning tenant; empty for platform-level resources and global
	// templates.
	OrganizerUUID string
	// OwnerUUID is the user the resource belongs to (user records).
	OwnerUUID string
	// TargetRole is the role being granted, changed, or revoked for membership and
	// system role changes.
	TargetRole string
}

// Platform returns a Resource with no tenant.
func Platform(t ResourceType) Resource {
	return Resource{Type: t}
}

// InOrganizer returns a Resource owned by organizerUUID.
func InOrganizer(t ResourceType, organizerUUID string) Resource {
	return Resource{Type: t, OrganizerUUID: organizerUUID}
}

// Authorize returns nil when id may perform action on res, an Unauthenticated error when id
// is nil, and a Forbidden error otherwise.
func Authorize(id *Identity, res Resource, action Action) error {
	if id == nil || id.User == nil {
		return apperr.Unauthenticated("not authenticated")
	}
	if systemAllows(id.SystemRole(), res, action) ||
		selfAllows(id, res, action) ||
		organizerAllows(id.OrganizerRole(res.OrganizerUUID), res, action) {
		return nil
	}
	return apperr.Forbidden(fmt.Sprintf("insufficient permissions to %s %s", action, res.Type))
}

// Can is Authorize as a predicate.
func Can(id *Identity, res Resource, action Action) bool {
	return Authorize(id, res, action) == nil
}

func systemAllows(role string, res Resource, action Action) bool {
	switch role {
	case models.SystemRoleSuperAdmin:
		return true
	case models.SystemRoleSystemAdmin:
		if res.Type == ResourceSystemRole && action != ActionRead && res.TargetRole == models.SystemRoleSuperAdmin {
			return false
		}
		return true
	case models.SystemRoleSupport:
		if action == ActionRead {
			return res.Type != ResourceAuditLog
		}
		return res.Type == ResourceSubmission && (action == ActionUpdate || action == ActionTransition)
	case models.SystemRoleAuditor:
		return action == ActionRead || action == ActionHistory
	}
	return false
}

// selfAllows covers what any authenticated user may do regardless of role.
func selfAllows(id *Identity, res Resource, action Action) bool {
	switch res.Type {
	case ResourceUser:
		return res.OwnerUUID == id.User.UUID && (action == ActionRead || action == ActionUpdate)
	case ResourceOrganizer:
		// Applying for a new organizer.
		return action == ActionCreate && res.OrganizerUUID == ""
	case ResourceActivityType:
		return action == ActionRead
	case ResourceActivityTemplate:
		return action == ActionRead && res.OrganizerUUID == ""
	}
	return false
}

// organizerScoped lists the resources that belong to a tenant.
var organizerScoped = map[ResourceType]bool{
	ResourceOrganizer:        true,
	ResourceMembership:       true,
	ResourceEvent:            true,
	ResourceEventField:       true,
	ResourceActivityTemplate: true,
	ResourceSubmission:       true,
	ResourceAuditLog:         true,
	ResourceFileRecord:       true,
}

func organizerAllows(role string, res Resource, action Action) bool {
	if role == "" || res.OrganizerUUID == "" || !organizerScoped[res.Type] {
		return false
	}
	// Reviewing applications and reading history stay with platform staff.
	if action == ActionApprove || action == ActionHistory {
		return false
	}

	switch role {
	case models.OrganizerRoleOwner:
		return true
	case models.OrganizerRoleAdmin:
		if res.Type == ResourceOrganizer && action == ActionDelete {
			return false
		}
		if res.Type == ResourceMembership && action != ActionRead && res.TargetRole == models.OrganizerRoleOwner {
			return false
		}
		return true
	case models.OrganizerRoleEditor:
		if action == ActionRead {
			return true
		}
		switch res.Type {
		case ResourceEvent, ResourceEventField, ResourceActivityTemplate:
			return action == ActionCreate || action == ActionUpdate || action == ActionTransition
		case ResourceSubmission:
			return action == ActionTransition
		}
		return false
	case models.OrganizerRoleViewer:
		return action == ActionRead
	case models.OrganizerRoleMember:
		return action == ActionRead && (res.Type == ResourceOrganizer || res.Type == ResourceEvent)
	}
	return false
}
