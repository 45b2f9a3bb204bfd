package repositories

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/event-registry/event-registry/internal/db/models"
)

var submissionCols = cols("event_uuid", "user_uuid", "tracking_code", "contact_email", "status", "extra_data",
	"ip_address", "user_agent")

var submissionValueCols = cols("submission_uuid", "event_field_uuid", "field_key", "value", "file_record_uuid")

func sampleSubmissionRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(submissionCols).
		AddRow(baseRow(1, "00000000-0000-4000-8000-000300000001", "00000000-0000-4000-8000-000400000001", nil, "E1-20260301-ABCDEF", "alice@example.com", status,
			[]byte(`{}`), "203.0.113.7", "curl/8")...)
}

func newSubmissionRepo(t *testing.T) (*SubmissionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSubmissionRepository(db), mock
}

func TestSubmissionCreate_DefaultsToPending(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("INSERT INTO submissions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	s := &models.Submission{EventUUID: "00000000-0000-4000-8000-000400000001", TrackingCode: "E1-X", ContactEmail: "alice@example.com"}
	if err := repo.Create(context.Background(), s, models.PublicActor()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Status != models.SubmissionStatusPending {
		t.Errorf("Status = %q, want pending", s.Status)
	}
	if s.CreatedByRole == nil || *s.CreatedByRole != models.ActorRolePublic || s.CreatedBy != nil {
		t.Errorf("expected anonymous public stamp, got by=%v role=%v", s.CreatedBy, s.CreatedByRole)
	}
}

func TestSubmissionCreate_TrackingCodeCollision(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("INSERT INTO submissions").
		WillReturnError(pqUniqueViolation())

	err := repo.Create(context.Background(), &models.Submission{TrackingCode: "E1-X"}, models.PublicActor())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestSubmissionCreateValue_MissingReference(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("INSERT INTO submission_values").
		WillReturnError(pqForeignKeyViolation())

	ref := "00000000-0000-4000-8000-000900000099"
	err := repo.CreateValue(context.Background(), &models.SubmissionValue{
		SubmissionUUID: "00000000-0000-4000-8000-000300000001", FieldKey: "waiver", FileRecordUUID: &ref,
	}, models.PublicActor())
	if !errors.Is(err, ErrForeignKey) {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}
	if errors.Is(err, ErrDuplicate) {
		t.Fatalf("foreign key violation reported as duplicate: %v", err)
	}
}

func TestSubmissionGetByTrackingCode(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("SELECT .* FROM submissions WHERE tracking_code = \\$1 AND is_deleted = false").
		WithArgs("E1-20260301-ABCDEF").
		WillReturnRows(sampleSubmissionRow(models.SubmissionStatusPending))

	s, err := repo.GetByTrackingCode(context.Background(), "E1-20260301-ABCDEF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.UUID != "00000000-0000-4000-8000-000300000001" || s.IPAddress == nil || *s.IPAddress != "203.0.113.7" {
		t.Errorf("unexpected submission: %+v", s)
	}
}

func TestSubmissionListValuesFor_GroupsByParent(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("SELECT .* FROM submission_values WHERE submission_uuid = ANY\\(\\$1::uuid\\[\\]\\)").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(submissionValueCols).
			AddRow(baseRow(1, "00000000-0000-4000-8000-001700000001", "00000000-0000-4000-8000-000300000001", "00000000-0000-4000-8000-001300000001", "full_name", []byte(`"Alice"`), nil)...).
			AddRow(baseRow(2, "00000000-0000-4000-8000-001700000002", "00000000-0000-4000-8000-000300000002", "00000000-0000-4000-8000-001300000001", "full_name", []byte(`"Bob"`), nil)...).
			AddRow(baseRow(3, "00000000-0000-4000-8000-001700000003", "00000000-0000-4000-8000-000300000002", "00000000-0000-4000-8000-001300000002", "age", []byte(`33`), nil)...))

	byParent, err := repo.ListValuesFor(context.Background(), []string{"00000000-0000-4000-8000-000300000001", "00000000-0000-4000-8000-000300000002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(byParent["00000000-0000-4000-8000-000300000001"]) != 1 || len(byParent["00000000-0000-4000-8000-000300000002"]) != 2 {
		t.Fatalf("unexpected grouping: %+v", byParent)
	}
	if string(byParent["00000000-0000-4000-8000-000300000001"][0].Value) != `"Alice"` {
		t.Errorf("Value = %s, want \"Alice\"", byParent["00000000-0000-4000-8000-000300000001"][0].Value)
	}
}

func TestSubmissionListValues_EmptyIsNotNil(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("SELECT .* FROM submission_values").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(submissionValueCols))

	vals, err := repo.ListValues(context.Background(), "00000000-0000-4000-8000-000300000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vals == nil || len(vals) != 0 {
		t.Errorf("expected empty slice, got %#v", vals)
	}
}

func TestSubmissionSetStatus_BumpsVersion(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectExec("UPDATE submissions SET status = \\$1, updated_at = \\$2, updated_by = \\$3, updated_by_role = \\$4, version = version \\+ 1 WHERE uuid = \\$5").
		WithArgs(models.SubmissionStatusEmailVerified, fixedNow, testActor.UserUUID, testActor.Role, "00000000-0000-4000-8000-000300000001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := &models.Submission{BaseRecord: models.BaseRecord{UUID: "00000000-0000-4000-8000-000300000001", Version: 3}, Status: models.SubmissionStatusPending}
	if err := repo.SetStatus(context.Background(), s, models.SubmissionStatusEmailVerified, testActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Version != 4 {
		t.Errorf("Version = %d, want 4", s.Version)
	}
}

func TestSubmissionDelete_CascadesSoftDeleteToValues(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectExec("UPDATE submissions SET is_deleted = true").
		WithArgs(fixedNow, testActor.UserUUID, testActor.Role, "00000000-0000-4000-8000-000300000001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE submission_values SET is_deleted = true .* WHERE submission_uuid = \\$4").
		WithArgs(fixedNow, testActor.UserUUID, testActor.Role, "00000000-0000-4000-8000-000300000001").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "00000000-0000-4000-8000-000300000001", testActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSubmissionList_OrganizerScope(t *testing.T) {
	repo, mock := newSubmissionRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM submissions WHERE is_deleted = false AND event_uuid IN \\(SELECT uuid FROM events WHERE organizer_uuid = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .* FROM submissions WHERE .* ORDER BY created_at DESC").
		WithArgs(sqlmock.AnyArg(), 20, 0).
		WillReturnRows(sampleSubmissionRow(models.SubmissionStatusPaid))

	out, total, err := repo.List(context.Background(), SubmissionFilter{OrganizerUUIDs: []string{"00000000-0000-4000-8000-000100000001"}}, ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || out[0].Status != models.SubmissionStatusPaid {
		t.Errorf("unexpected result: total=%d %+v", total, out)
	}
}
