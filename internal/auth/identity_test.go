package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/event-registry/event-registry/internal/apperr"
	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetByUUID(_ context.Context, uuid string, _ bool) (*models.User, error) {
	if uuid == "broken" {
		return nil, errors.New("db down")
	}
	return f[uuid], nil
}

type fakeSystemRoles map[string]*models.SystemMembership

func (f fakeSystemRoles) GetByUser(_ context.Context, userUUID string) (*models.SystemMembership, error) {
	return f[userUUID], nil
}

type fakeMemberships map[string][]*models.OrganizerMembership

func (f fakeMemberships) ListByUser(_ context.Context, userUUID string) ([]*models.OrganizerMembership, error) {
	return f[userUUID], nil
}

func activeUser(uuid, email string) *models.User {
	return &models.User{BaseRecord: models.BaseRecord{UUID: uuid, IsActive: true}, Email: email}
}

func newTestResolver() *Resolver {
	users := fakeUsers{
		"u-admin":    activeUser("u-admin", "admin@example.com"),
		"u-owner":    activeUser("u-owner", "owner@example.com"),
		"u-disabled": {BaseRecord: models.BaseRecord{UUID: "u-disabled"}, Email: "off@example.com"},
	}
	roles := fakeSystemRoles{
		"u-admin": {UserUUID: "u-admin", Role: models.SystemRoleSuperAdmin},
	}
	memberships := fakeMemberships{
		"u-owner": {
			{OrganizerUUID: "00000000-0000-4000-8000-000100000001", Role: models.OrganizerRoleViewer},
			{OrganizerUUID: "00000000-0000-4000-8000-000100000002", Role: models.OrganizerRoleOwner},
		},
	}
	return NewResolver(users, roles, memberships)
}

func TestResolve(t *testing.T) {
	resetJWTSecret()
	t.Setenv("EVR_JWT_SECRET", testSecret)
	r := newTestResolver()
	ctx := context.Background()

	t.Run("system admin", func(t *testing.T) {
		tok, err := GenerateAccessToken("u-admin", "admin@example.com", time.Minute)
		require.NoError(t, err)
		id, err := r.Resolve(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, models.SystemRoleSuperAdmin, id.SystemRole())
		assert.NotNil(t, id.Memberships, "memberships must never be nil")
		assert.Empty(t, id.Memberships)
	})

	t.Run("organizer member", func(t *testing.T) {
		tok, _ := GenerateAccessToken("u-owner", "owner@example.com", time.Minute)
		id, err := r.Resolve(ctx, tok)
		require.NoError(t, err)
		assert.Nil(t, id.SystemMembership)
		assert.Len(t, id.Memberships, 2)
		assert.Equal(t, models.OrganizerRoleOwner, id.PrimaryRole())
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := r.Resolve(ctx, "")
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		tok, _ := GenerateRefreshToken("u-admin", "admin@example.com", time.Minute)
		_, err := r.Resolve(ctx, tok)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("vanished user", func(t *testing.T) {
		tok, _ := GenerateAccessToken("u-gone", "gone@example.com", time.Minute)
		_, err := r.Resolve(ctx, tok)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("disabled user", func(t *testing.T) {
		tok, _ := GenerateAccessToken("u-disabled", "off@example.com", time.Minute)
		_, err := r.Resolve(ctx, tok)
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	})

	t.Run("store failure", func(t *testing.T) {
		_, err := r.ResolveUser(ctx, "broken")
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	})
}

func TestIdentityHelpers(t *testing.T) {
	id := &Identity{
		User: activeUser("00000000-0000-4000-8000-000200000001", "a@example.com"),
		Memberships: []*models.OrganizerMembership{
			{OrganizerUUID: "00000000-0000-4000-8000-000100000001", Role: models.OrganizerRoleEditor},
			{OrganizerUUID: "00000000-0000-4000-8000-000100000002", Role: models.OrganizerRoleMember},
		},
	}

	assert.Equal(t, models.OrganizerRoleEditor, id.OrganizerRole("00000000-0000-4000-8000-000100000001"))
	assert.Equal(t, "", id.OrganizerRole("00000000-0000-4000-8000-000100000009"))
	assert.Equal(t, []string{"00000000-0000-4000-8000-000100000001"}, id.OrganizerUUIDs(models.OrganizerRoleViewer))
	assert.Equal(t, []string{"00000000-0000-4000-8000-000100000001", "00000000-0000-4000-8000-000100000002"}, id.OrganizerUUIDs(models.OrganizerRoleMember))
	assert.Equal(t, models.OrganizerRoleEditor, id.PrimaryRole())
	assert.Equal(t, models.Actor{UserUUID: "00000000-0000-4000-8000-000200000001", Role: models.OrganizerRoleMember}, id.ActorFor("00000000-0000-4000-8000-000100000002"))

	plain := &Identity{User: activeUser("00000000-0000-4000-8000-000200000002", "b@example.com"), Memberships: []*models.OrganizerMembership{}}
	assert.Equal(t, RoleUser, plain.PrimaryRole())
	assert.Equal(t, RoleUser, plain.ActorFor("00000000-0000-4000-8000-000100000001").Role)

	staff := &Identity{
		User:             activeUser("00000000-0000-4000-8000-000200000003", "c@example.com"),
		SystemMembership: &models.SystemMembership{Role: models.SystemRoleSupport},
		Memberships:      []*models.OrganizerMembership{{OrganizerUUID: "00000000-0000-4000-8000-000100000001", Role: models.OrganizerRoleOwner}},
	}
	assert.Equal(t, models.SystemRoleSupport, staff.PrimaryRole())
	assert.Equal(t, models.SystemRoleSupport, staff.ActorFor("00000000-0000-4000-8000-000100000001").Role)
}
