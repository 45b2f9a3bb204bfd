// Package models - email_verification.go defines the single-use verification token and the
// outbox row that carries its email to the relay job.
package models

import "time"

// Supported verification reference types.
const (
	RefTypeSubmission = "submission"
)

// EmailVerification is a single-use token proving control of an email address, linked to
// a target entity by (RefType, RefUUID).
type EmailVerification struct {
	BaseRecord
	RefType    string     `json:"ref_type" db:"ref_type"`
	RefUUID    string     `json:"ref_uuid" db:"ref_uuid"`
	Email      string     `json:"email" db:"email"`
	Token      string     `json:"-" db:"token"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	IsUsed     bool       `json:"is_used" db:"is_used"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
}

// IsExpired reports whether the token is past its expiry at now. Both sides are compared
// in UTC.
func (v *EmailVerification) IsExpired(now time.Time) bool {
	return now.UTC().After(v.ExpiresAt.UTC())
}

// Outbox delivery states.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// Outbox message kinds.
const (
	OutboxKindVerification = "email_verification"
)

// EmailOutbox is a durable email delivery intent written in the same transaction as the
// state it announces.
type EmailOutbox struct {
	ID            int64      `json:"-" db:"id"`
	UUID          string     `json:"uuid" db:"uuid"`
	Kind          string     `json:"kind" db:"kind"`
	Recipient     string     `json:"recipient" db:"recipient"`
	Subject       string     `json:"subject" db:"subject"`
	Body          string     `json:"-" db:"body"`
	RefType       *string    `json:"ref_type,omitempty" db:"ref_type"`
	RefUUID       *string    `json:"ref_uuid,omitempty" db:"ref_uuid"`
	Status        string     `json:"status" db:"status"`
	Attempts      int        `json:"attempts" db:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at" db:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty" db:"last_error"`
	SentAt        *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
