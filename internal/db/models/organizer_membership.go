// Package models - organizer_membership.go defines user-to-organizer membership with a
// per-tenant role.
package models

// Organizer roles, from most to least privileged.
const (
	OrganizerRoleOwner  = "owner"
	OrganizerRoleAdmin  = "admin"
	OrganizerRoleEditor = "editor"
	OrganizerRoleViewer = "viewer"
	OrganizerRoleMember = "member"
)

var organizerRoleRank = map[string]int{
	OrganizerRoleOwner:  5,
	OrganizerRoleAdmin:  4,
	OrganizerRoleEditor: 3,
	OrganizerRoleViewer: 2,
	OrganizerRoleMember: 1,
}

// OrganizerMembership represents a user's role within one organizer
type OrganizerMembership struct {
	BaseRecord
	UserUUID      string `json:"user_uuid" db:"user_uuid"`
	OrganizerUUID string `json:"organizer_uuid" db:"organizer_uuid"`
	Role          string `json:"role" db:"role"`

	// Populated by joined reads only.
	OrganizerName   string `json:"organizer_name,omitempty" db:"-"`
	OrganizerStatus string `json:"organizer_status,omitempty" db:"-"`
	UserEmail       string `json:"user_email,omitempty" db:"-"`
}

// IsValidOrganizerRole reports whether role is a known organizer role.
func IsValidOrganizerRole(role string) bool {
	_, ok := organizerRoleRank[role]
	return ok
}

// OrganizerRoleRank orders roles; unknown roles rank 0.
func OrganizerRoleRank(role string) int {
	return organizerRoleRank[role]
}
