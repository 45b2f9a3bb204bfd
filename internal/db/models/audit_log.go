// Package models - audit_log.go defines the AuditLog model for recording security-relevant
// events, capturing actor, action, affected resource, client IP, and arbitrary metadata.
package models

import "time"

// AuditLog is an append-only record of an administrative action
type AuditLog struct {
	ID            string                 `json:"id"`
	UserUUID      *string                `json:"user_uuid,omitempty"` // nil for system actions
	ActorRole     *string                `json:"actor_role,omitempty"`
	OrganizerUUID *string                `json:"organizer_uuid,omitempty"`
	Action        string                 `json:"action"`                  // "event.created", "submission.status_changed"
	ResourceType  *string                `json:"resource_type,omitempty"` // "event", "submission", "user"
	ResourceUUID  *string                `json:"resource_uuid,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	IPAddress     *string                `json:"ip_address,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
