// Package models - organizer.go defines the Organizer tenant. Organizers apply, are reviewed
// by platform staff, and own events.
package models

import "time"

// Organizer review states.
const (
	OrganizerStatusPending  = "pending"
	OrganizerStatusApproved = "approved"
	OrganizerStatusRejected = "rejected"
)

// Organizer is an event-hosting tenant
type Organizer struct {
	BaseRecord
	Name         string     `json:"name" db:"name"`
	Slug         string     `json:"slug" db:"slug"`
	ContactEmail *string    `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone *string    `json:"contact_phone,omitempty" db:"contact_phone"`
	Website      *string    `json:"website,omitempty" db:"website"`
	Status       string     `json:"status" db:"status"`
	Config       JSONMap    `json:"config" db:"config"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy   *string    `json:"reviewed_by,omitempty" db:"reviewed_by"`
}
