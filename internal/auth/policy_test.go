package auth

import (
	"testing"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/stretchr/testify/assert"
)

func systemIdentity(role string) *Identity {
	return &Identity{
		User:             activeUser("00000000-0000-4000-8000-001000000001", "staff@example.com"),
		SystemMembership: &models.SystemMembership{UserUUID: "00000000-0000-4000-8000-001000000001", Role: role},
		Memberships:      []*models.OrganizerMembership{},
	}
}

func memberIdentity(orgUUID, role string) *Identity {
	return &Identity{
		User:        activeUser("00000000-0000-4000-8000-002200000001", "member@example.com"),
		Memberships: []*models.OrganizerMembership{{UserUUID: "00000000-0000-4000-8000-002200000001", OrganizerUUID: orgUUID, Role: role}},
	}
}

func TestAuthorize_Unauthenticated(t *testing.T) {
	err := Authorize(nil, Platform(ResourceActivityType), ActionRead)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestAuthorize_SystemRoles(t *testing.T) {
	org := InOrganizer(ResourceEvent, "00000000-0000-4000-8000-000100000001")
	promoteSuper := Resource{Type: ResourceSystemRole, TargetRole: models.SystemRoleSuperAdmin}
	promoteSupport := Resource{Type: ResourceSystemRole, TargetRole: models.SystemRoleSupport}

	tests := []struct {
		name   string
		role   string
		res    Resource
		action Action
		want   bool
	}{
		{"super admin deletes events", models.SystemRoleSuperAdmin, org, ActionDelete, true},
		{"super admin grants super admin", models.SystemRoleSuperAdmin, promoteSuper, ActionCreate, true},
		{"super admin reads history", models.SystemRoleSuperAdmin, org, ActionHistory, true},
		{"system admin approves organizers", models.SystemRoleSystemAdmin, InOrganizer(ResourceOrganizer, "00000000-0000-4000-8000-000100000001"), ActionApprove, true},
		{"system admin cannot grant super admin", models.SystemRoleSystemAdmin, promoteSuper, ActionCreate, false},
		{"system admin cannot revoke super admin", models.SystemRoleSystemAdmin, promoteSuper, ActionDelete, false},
		{"system admin grants support", models.SystemRoleSystemAdmin, promoteSupport, ActionCreate, true},
		{"support reads events", models.SystemRoleSupport, org, ActionRead, true},
		{"support updates submissions", models.SystemRoleSupport, InOrganizer(ResourceSubmission, "00000000-0000-4000-8000-000100000001"), ActionTransition, true},
		{"support cannot update events", models.SystemRoleSupport, org, ActionUpdate, false},
		{"support cannot read audit logs", models.SystemRoleSupport, Platform(ResourceAuditLog), ActionRead, false},
		{"support cannot read history", models.SystemRoleSupport, org, ActionHistory, false},
		{"auditor reads audit logs", models.SystemRoleAuditor, Platform(ResourceAuditLog), ActionRead, true},
		{"auditor reads history", models.SystemRoleAuditor, org, ActionHistory, true},
		{"auditor cannot delete", models.SystemRoleAuditor, org, ActionDelete, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(systemIdentity(tt.role), tt.res, tt.action)
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
			}
		})
	}
}

func TestAuthorize_OrganizerRoles(t *testing.T) {
	const org = "00000000-0000-4000-8000-000100000001"
	organizer := InOrganizer(ResourceOrganizer, org)
	event := InOrganizer(ResourceEvent, org)
	submission := InOrganizer(ResourceSubmission, org)
	ownerMembership := Resource{Type: ResourceMembership, OrganizerUUID: org, TargetRole: models.OrganizerRoleOwner}
	editorMembership := Resource{Type: ResourceMembership, OrganizerUUID: org, TargetRole: models.OrganizerRoleEditor}

	tests := []struct {
		name   string
		role   string
		res    Resource
		action Action
		want   bool
	}{
		{"owner deletes organizer", models.OrganizerRoleOwner, organizer, ActionDelete, true},
		{"owner adds owner", models.OrganizerRoleOwner, ownerMembership, ActionCreate, true},
		{"owner cannot approve own organizer", models.OrganizerRoleOwner, organizer, ActionApprove, false},
		{"owner cannot read history", models.OrganizerRoleOwner, event, ActionHistory, false},
		{"admin cannot delete organizer", models.OrganizerRoleAdmin, organizer, ActionDelete, false},
		{"admin cannot add owner", models.OrganizerRoleAdmin, ownerMembership, ActionCreate, false},
		{"admin adds editor", models.OrganizerRoleAdmin, editorMembership, ActionCreate, true},
		{"admin deletes events", models.OrganizerRoleAdmin, event, ActionDelete, true},
		{"editor creates events", models.OrganizerRoleEditor, event, ActionCreate, true},
		{"editor transitions submissions", models.OrganizerRoleEditor, submission, ActionTransition, true},
		{"editor cannot delete events", models.OrganizerRoleEditor, event, ActionDelete, false},
		{"editor cannot manage members", models.OrganizerRoleEditor, editorMembership, ActionCreate, false},
		{"viewer reads submissions", models.OrganizerRoleViewer, submission, ActionRead, true},
		{"viewer cannot update events", models.OrganizerRoleViewer, event, ActionUpdate, false},
		{"member reads events", models.OrganizerRoleMember, event, ActionRead, true},
		{"member cannot read submissions", models.OrganizerRoleMember, submission, ActionRead, false},
		{"owner has no power in other organizer", models.OrganizerRoleOwner, InOrganizer(ResourceEvent, "00000000-0000-4000-8000-000100000002"), ActionRead, false},
		{"owner cannot create activity types", models.OrganizerRoleOwner, Platform(ResourceActivityType), ActionCreate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Can(memberIdentity(org, tt.role), tt.res, tt.action)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorize_AnyAuthenticatedUser(t *testing.T) {
	id := &Identity{User: activeUser("00000000-0000-4000-8000-000200000001", "u@example.com"), Memberships: []*models.OrganizerMembership{}}

	assert.True(t, Can(id, Resource{Type: ResourceUser, OwnerUUID: "00000000-0000-4000-8000-000200000001"}, ActionRead))
	assert.True(t, Can(id, Resource{Type: ResourceUser, OwnerUUID: "00000000-0000-4000-8000-000200000001"}, ActionUpdate))
	assert.False(t, Can(id, Resource{Type: ResourceUser, OwnerUUID: "00000000-0000-4000-8000-000200000001"}, ActionDelete))
	assert.False(t, Can(id, Resource{Type: ResourceUser, OwnerUUID: "00000000-0000-4000-8000-000200000002"}, ActionRead))
	assert.True(t, Can(id, Platform(ResourceOrganizer), ActionCreate))
	assert.True(t, Can(id, Platform(ResourceActivityType), ActionRead))
	assert.True(t, Can(id, Platform(ResourceActivityTemplate), ActionRead))
	assert.False(t, Can(id, InOrganizer(ResourceActivityTemplate, "00000000-0000-4000-8000-000100000001"), ActionRead))
	assert.False(t, Can(id, Platform(ResourceUser), ActionRead))
}
