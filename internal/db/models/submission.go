// Package models - submission.go defines Submission (one registration attempt) and
// SubmissionValue (one answer per event field).
package models

// Submission lifecycle states.
const (
	SubmissionStatusPending       = "pending"
	SubmissionStatusEmailVerified = "email_verified"
	SubmissionStatusPaid          = "paid"
	SubmissionStatusCompleted     = "completed"
)

// Submission is one registrant's filled-out form for an event
type Submission struct {
	BaseRecord
	EventUUID    string  `json:"event_uuid" db:"event_uuid"`
	UserUUID     *string `json:"user_uuid,omitempty" db:"user_uuid"`
	TrackingCode string  `json:"tracking_code" db:"tracking_code"`
	ContactEmail string  `json:"contact_email" db:"contact_email"`
	Status       string  `json:"status" db:"status"`
	ExtraData    JSONMap `json:"extra_data" db:"extra_data"`
	IPAddress    *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    *string `json:"user_agent,omitempty" db:"user_agent"`

	Values []SubmissionValue `json:"values,omitempty" db:"-"`
}

// SubmissionValue is one answer to one EventField. FieldKey is copied from the field
// definition at write time.
type SubmissionValue struct {
	BaseRecord
	SubmissionUUID string    `json:"submission_uuid" db:"submission_uuid"`
	EventFieldUUID string    `json:"event_field_uuid" db:"event_field_uuid"`
	FieldKey       string    `json:"field_key" db:"field_key"`
	Value          JSONValue `json:"value" db:"value"`
	FileRecordUUID *string   `json:"file_record_uuid,omitempty" db:"file_record_uuid"`
}
