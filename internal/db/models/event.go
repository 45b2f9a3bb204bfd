// Package models - event.go defines Event and EventField. An event belongs to exactly one
// organizer and carries its own copy of the registration form definition.
package models

import "time"

// Event lifecycle states.
const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusClosed    = "closed"
)

// Event is a time-bounded activity hosted by an organizer
type Event struct {
	BaseRecord
	OrganizerUUID        string     `json:"organizer_uuid" db:"organizer_uuid"`
	ActivityTemplateUUID *string    `json:"activity_template_uuid,omitempty" db:"activity_template_uuid"`
	Code                 string     `json:"code" db:"code"`
	Name                 string     `json:"name" db:"name"`
	Description          *string    `json:"description,omitempty" db:"description"`
	Status               string     `json:"status" db:"status"`
	StartsAt             *time.Time `json:"starts_at,omitempty" db:"starts_at"`
	EndsAt               *time.Time `json:"ends_at,omitempty" db:"ends_at"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty" db:"registration_deadline"`
	Config               JSONMap    `json:"config" db:"config"`

	Fields []EventField `json:"fields,omitempty" db:"-"`
}

// RegistrationClosed reports whether the registration deadline has passed at now.
func (e *Event) RegistrationClosed(now time.Time) bool {
	return e.RegistrationDeadline != nil && now.UTC().After(e.RegistrationDeadline.UTC())
}

// Field types accepted on EventField.FieldType.
const (
	FieldTypeText        = "text"
	FieldTypeTextarea    = "textarea"
	FieldTypeEmail       = "email"
	FieldTypeNumber      = "number"
	FieldTypeSelect      = "select"
	FieldTypeMultiSelect = "multiselect"
	FieldTypeCheckbox    = "checkbox"
	FieldTypeDate        = "date"
	FieldTypeFile        = "file"
)

// IsValidFieldType reports whether t is a supported field type.
func IsValidFieldType(t string) bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeEmail, FieldTypeNumber, FieldTypeSelect,
		FieldTypeMultiSelect, FieldTypeCheckbox, FieldTypeDate, FieldTypeFile:
		return true
	}
	return false
}

// EventField is one form-field definition of an event
type EventField struct {
	BaseRecord
	EventUUID       string     `json:"event_uuid" db:"event_uuid"`
	FieldKey        string     `json:"field_key" db:"field_key"`
	Label           string     `json:"label" db:"label"`
	FieldType       string     `json:"field_type" db:"field_type"`
	IsRequired      bool       `json:"is_required" db:"is_required"`
	Options         StringList `json:"options" db:"options"`
	ValidationRules JSONMap    `json:"validation_rules" db:"validation_rules"`
	Config          JSONMap    `json:"config" db:"config"`
	SortOrder       int        `json:"sort_order" db:"sort_order"`
}
