// Package dbtest builds go-sqlmock rows for the entity tables so service tests can script
// repository reads without repeating column lists.
package dbtest

import (
	"database/sql/driver"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// Now is the reference instant used by fixtures.
var Now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var baseCols = []string{
	"id", "uuid", "is_active", "is_deleted", "created_at", "updated_at", "deleted_at",
	"created_by", "created_by_role", "updated_by", "updated_by_role", "deleted_by", "deleted_by_role", "version",
}

// Cols prefixes the base-record columns to an entity's own columns.
func Cols(extra ...string) []string {
	out := make([]string, 0, len(baseCols)+len(extra))
	out = append(out, baseCols...)
	return append(out, extra...)
}

// Base returns base-record values for a live row.
func Base(id int64, uuid string, extra ...driver.Value) []driver.Value {
	out := []driver.Value{id, uuid, true, false, Now, Now, nil, nil, nil, nil, nil, nil, nil, int64(1)}
	return append(out, extra...)
}

var (
	EventCols = Cols("organizer_uuid", "activity_template_uuid", "code", "name", "description", "status",
		"starts_at", "ends_at", "registration_deadline", "config")
	EventFieldCols = Cols("event_uuid", "field_key", "label", "field_type", "is_required", "options",
		"validation_rules", "config", "sort_order")
	SubmissionCols = Cols("event_uuid", "user_uuid", "tracking_code", "contact_email", "status", "extra_data",
		"ip_address", "user_agent")
	SubmissionValueCols = Cols("submission_uuid", "event_field_uuid", "field_key", "value", "file_record_uuid")
	VerificationCols    = Cols("ref_type", "ref_uuid", "email", "token", "expires_at", "is_used", "verified_at")
)

// EventRow is a single event row.
func EventRow(uuid, code, name, status string) *sqlmock.Rows {
	return sqlmock.NewRows(EventCols).
		AddRow(Base(1, uuid, "00000000-0000-4000-8000-000100000001", nil, code, name, nil, status, nil, nil, nil, []byte(`{}`))...)
}

// Field describes one event_fields row.
type Field struct {
	UUID      string
	Key       string
	Type      string
	Required  bool
	Options   string
	Rules     string
	SortOrder int
}

// FieldRows renders event_fields rows for eventUUID.
func FieldRows(eventUUID string, fields ...Field) *sqlmock.Rows {
	rows := sqlmock.NewRows(EventFieldCols)
	for i, f := range fields {
		opts, rules := f.Options, f.Rules
		if opts == "" {
			opts = "[]"
		}
		if rules == "" {
			rules = "{}"
		}
		rows.AddRow(Base(int64(i+1), f.UUID, eventUUID, f.Key, f.Key, f.Type, f.Required,
			[]byte(opts), []byte(rules), []byte(`{}`), f.SortOrder)...)
	}
	return rows
}

// SubmissionRow is a single submission header row.
func SubmissionRow(uuid, eventUUID, email, status string) *sqlmock.Rows {
	return sqlmock.NewRows(SubmissionCols).
		AddRow(Base(1, uuid, eventUUID, nil, "E1-20260301-ABCDEF", email, status, []byte(`{}`), nil, nil)...)
}

// VerificationRow is a single email_verifications row.
func VerificationRow(uuid, token string, expiresAt time.Time, isUsed bool, verifiedAt *time.Time) *sqlmock.Rows {
	var verified driver.Value
	if verifiedAt != nil {
		verified = *verifiedAt
	}
	return sqlmock.NewRows(VerificationCols).
		AddRow(Base(1, uuid, "submission", "00000000-0000-4000-8000-000300000001", "alice@example.com", token, expiresAt, isUsed, verified)...)
}

// ID returns the single-column RETURNING id row.
func ID(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"}).AddRow(id)
}

// Count returns a single-column count row.
func Count(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

var (
	UserCols             = Cols("email", "password_hash", "auth_provider", "oidc_subject", "display_name", "last_login_at")
	SystemMembershipCols = Cols("user_uuid", "role")
	MembershipCols       = Cols("user_uuid", "organizer_uuid", "role")
	OrganizerCols        = Cols("name", "slug", "contact_email", "contact_phone", "website", "status", "config",
		"reviewed_at", "reviewed_by")
)

// FileRecordCols are the file_records columns.
var FileRecordCols = Cols("organizer_uuid", "original_name", "content_type", "size_bytes", "storage_key", "sha256")

// FileRecordRow is a single file_records row. organizerUUID may be nil for a platform record.
func FileRecordRow(uuid string, organizerUUID interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(FileRecordCols).
		AddRow(Base(1, uuid, organizerUUID, "poster.pdf", "application/pdf", int64(2048), "uploads/poster.pdf", nil)...)
}

// Deleted returns base-record values for a soft-deleted row.
func Deleted(id int64, uuid string, extra ...driver.Value) []driver.Value {
	out := []driver.Value{id, uuid, false, true, Now, Now, Now, nil, nil, nil, nil, nil, nil, int64(2)}
	return append(out, extra...)
}

// UserRow is a single local user row. A nil passwordHash yields an OIDC-only account.
func UserRow(uuid, email string, passwordHash *string) *sqlmock.Rows {
	var hash driver.Value
	if passwordHash != nil {
		hash = *passwordHash
	}
	return sqlmock.NewRows(UserCols).AddRow(Base(1, uuid, email, hash, "local", nil, email, nil)...)
}

// SystemMembershipRow is a single system_memberships row.
func SystemMembershipRow(userUUID, role string) *sqlmock.Rows {
	return sqlmock.NewRows(SystemMembershipCols).AddRow(Base(1, "sm-"+userUUID, userUUID, role)...)
}

// MembershipRow is a single organizer_memberships row.
func MembershipRow(uuid, userUUID, organizerUUID, role string) *sqlmock.Rows {
	return sqlmock.NewRows(MembershipCols).AddRow(Base(1, uuid, userUUID, organizerUUID, role)...)
}

// UserMembershipRows renders the joined rows returned when listing a user's memberships.
func UserMembershipRows() *sqlmock.Rows {
	return sqlmock.NewRows(append(Cols("user_uuid", "organizer_uuid", "role"), "name", "status"))
}

// OrganizerRow is a single organizer row.
func OrganizerRow(uuid, name, status string) *sqlmock.Rows {
	return sqlmock.NewRows(OrganizerCols).
		AddRow(Base(1, uuid, name, name, nil, nil, nil, status, []byte(`{}`), nil, nil)...)
}
