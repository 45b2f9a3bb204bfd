// Package models - base.go defines the record lifecycle shared by every entity: surrogate and
// external identifiers, active/deleted flags, create/update/delete actor stamps, and the
// version counter reserved for optimistic locking.
package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseRecord is embedded by every persisted entity.
type BaseRecord struct {
	ID            int64      `json:"-" db:"id"`
	UUID          string     `json:"uuid" db:"uuid"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	IsDeleted     bool       `json:"is_deleted" db:"is_deleted"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedBy     *string    `json:"created_by,omitempty" db:"created_by"`
	CreatedByRole *string    `json:"created_by_role,omitempty" db:"created_by_role"`
	UpdatedBy     *string    `json:"updated_by,omitempty" db:"updated_by"`
	UpdatedByRole *string    `json:"updated_by_role,omitempty" db:"updated_by_role"`
	DeletedBy     *string    `json:"deleted_by,omitempty" db:"deleted_by"`
	DeletedByRole *string    `json:"deleted_by_role,omitempty" db:"deleted_by_role"`
	Version       int        `json:"version" db:"version"`
}

// Actor roles used when no authenticated user performed the write.
const (
	ActorRoleSystem = "system"
	ActorRolePublic = "public"
)

// Actor identifies who performed a write and the role they acted under.
type Actor struct {
	UserUUID string
	Role     string
}

// SystemActor is used by background jobs and bootstrap code.
func SystemActor() Actor {
	return Actor{Role: ActorRoleSystem}
}

// PublicActor is used for anonymous public writes (e.g. submissions without a session).
func PublicActor() Actor {
	return Actor{Role: ActorRolePublic}
}

// UserRef returns the actor's user UUID, or nil for anonymous actors.
func (a Actor) UserRef() *string {
	if a.UserUUID == "" {
		return nil
	}
	u := a.UserUUID
	return &u
}

// RoleRef returns the actor's role, or nil when unset.
func (a Actor) RoleRef() *string {
	if a.Role == "" {
		return nil
	}
	r := a.Role
	return &r
}

// StampCreate initialises the record for insertion.
func (b *BaseRecord) StampCreate(actor Actor, now time.Time) {
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}
	now = now.UTC()
	b.IsActive = true
	b.IsDeleted = false
	b.CreatedAt = now
	b.UpdatedAt = now
	b.CreatedBy = actor.UserRef()
	b.CreatedByRole = actor.RoleRef()
	b.UpdatedBy = actor.UserRef()
	b.UpdatedByRole = actor.RoleRef()
	b.Version = 1
}

// StampUpdate records an update by actor.
func (b *BaseRecord) StampUpdate(actor Actor, now time.Time) {
	b.UpdatedAt = now.UTC()
	b.UpdatedBy = actor.UserRef()
	b.UpdatedByRole = actor.RoleRef()
	b.Version++
}

// StampDelete marks the record as soft-deleted by actor.
func (b *BaseRecord) StampDelete(actor Actor, now time.Time) {
	now = now.UTC()
	b.IsDeleted = true
	b.IsActive = false
	b.DeletedAt = &now
	b.DeletedBy = actor.UserRef()
	b.DeletedByRole = actor.RoleRef()
	b.UpdatedAt = now
	b.Version++
}
