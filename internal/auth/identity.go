package auth

import (
	"context"
	"errors"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db/models"
)

// RoleUser is reported for authenticated users with no system or organizer role.
const RoleUser = "user"

// Identity is the resolved caller of a request. Memberships is never nil.
type Identity struct {
	User             *models.User
	SystemMembership *models.SystemMembership
	Memberships      []*models.OrganizerMembership
}

// SystemRole returns the caller's platform role, or "".
func (id *Identity) SystemRole() string {
	if id == nil || id.SystemMembership == nil {
		return ""
	}
	return id.SystemMembership.Role
}

// Membership returns the caller's membership in organizerUUID, or nil.
func (id *Identity) Membership(organizerUUID string) *models.OrganizerMembership {
	if id == nil || organizerUUID == "" {
		return nil
	}
	for _, m := range id.Memberships {
		if m.OrganizerUUID == organizerUUID {
			return m
		}
	}
	return nil
}

// OrganizerRole returns the caller's role in organizerUUID, or "".
func (id *Identity) OrganizerRole(organizerUUID string) string {
	if m := id.Membership(organizerUUID); m != nil {
		return m.Role
	}
	return ""
}

// OrganizerUUIDs returns the organizers in which the caller holds at least minRole.
func (id *Identity) OrganizerUUIDs(minRole string) []string {
	out := make([]string, 0, len(id.Memberships))
	for _, m := range id.Memberships {
		if models.OrganizerRoleRank(m.Role) >= models.OrganizerRoleRank(minRole) {
			out = append(out, m.OrganizerUUID)
		}
	}
	return out
}

// PrimaryRole is the role reported to clients: the system role if present, else the
// highest organizer role, else RoleUser.
func (id *Identity) PrimaryRole() string {
	if r := id.SystemRole(); r != "" {
		return r
	}
	best := ""
	for _, m := range id.Memberships {
		if models.OrganizerRoleRank(m.Role) > models.OrganizerRoleRank(best) {
			best = m.Role
		}
	}
	if best == "" {
		return RoleUser
	}
	return best
}

// Actor returns the write stamp for platform-level actions.
func (id *Identity) Actor() models.Actor {
	return models.Actor{UserUUID: id.User.UUID, Role: id.PrimaryRole()}
}

// ActorFor returns the write stamp for an action inside organizerUUID. The organizer
// role is recorded when the caller is a member; platform staff are stamped with their
// system role.
func (id *Identity) ActorFor(organizerUUID string) models.Actor {
	if r := id.SystemRole(); r != "" {
		return models.Actor{UserUUID: id.User.UUID, Role: r}
	}
	if r := id.OrganizerRole(organizerUUID); r != "" {
		return models.Actor{UserUUID: id.User.UUID, Role: r}
	}
	return id.Actor()
}

// UserReader loads users by UUID.
type UserReader interface {
	GetByUUID(ctx context.Context, uuid string, includeDeleted bool) (*models.User, error)
}

// SystemMembershipReader loads a user's platform role.
type SystemMembershipReader interface {
	GetByUser(ctx context.Context, userUUID string) (*models.SystemMembership, error)
}

// OrganizerMembershipReader loads a user's organizer memberships.
type OrganizerMembershipReader interface {
	ListByUser(ctx context.Context, userUUID string) ([]*models.OrganizerMembership, error)
}

// Resolver turns an access token into an Identity against current database state.
type Resolver struct {
	users       UserReader
	systemRoles SystemMembershipReader
	memberships OrganizerMembershipReader
}

// NewResolver creates a new Resolver
func NewResolver(users UserReader, systemRoles SystemMembershipReader, memberships OrganizerMembershipReader) *Resolver {
	return &Resolver{users: users, systemRoles: systemRoles, memberships: memberships}
}

// Resolve validates an access token and loads the identity of its subject.
// Returns an Unauthenticated error for a missing or invalid token and NotFound when the
// subject no longer exists.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("not authenticated")
	}
	claims, err := ValidateToken(token, TokenTypeAccess)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "invalid or expired token", Err: err}
	}
	return r.ResolveUser(ctx, claims.UserUUID)
}

// ResolveUser loads the identity of a known user UUID.
func (r *Resolver) ResolveUser(ctx context.Context, userUUID string) (*Identity, error) {
	user, err := r.users.GetByUUID(ctx, userUUID, false)
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	if !user.IsActive {
		return nil, apperr.Unauthenticated("account is disabled")
	}

	sm, err := r.systemRoles.GetByUser(ctx, userUUID)
	if err != nil {
		return nil, apperr.Internal("failed to load system membership", err)
	}
	memberships, err := r.memberships.ListByUser(ctx, userUUID)
	if err != nil {
		return nil, apperr.Internal("failed to load memberships", err)
	}
	if memberships == nil {
		memberships = []*models.OrganizerMembership{}
	}

	return &Identity{User: user, SystemMembership: sm, Memberships: memberships}, nil
}

// IsUnauthenticated reports whether err is an authentication failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, apperr.Unauthenticated(""))
}
