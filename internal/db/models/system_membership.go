// Package models - system_membership.go defines the platform-wide role assignment. A user
// holds at most one SystemMembership.
package models

// Platform roles.
const (
	SystemRoleSuperAdmin  = "super_admin"
	SystemRoleSystemAdmin = "system_admin"
	SystemRoleSupport     = "support"
	SystemRoleAuditor     = "auditor"
)

// SystemMembership assigns a platform role to a user
type SystemMembership struct {
	BaseRecord
	UserUUID string `json:"user_uuid" db:"user_uuid"`
	Role     string `json:"role" db:"role"`
}

// IsValidSystemRole reports whether role is a known platform role.
func IsValidSystemRole(role string) bool {
	switch role {
	case SystemRoleSuperAdmin, SystemRoleSystemAdmin, SystemRoleSupport, SystemRoleAuditor:
		return true
	}
	return false
}
