package repositories

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/event-registry/event-registry/internal/db/models"
)

var systemMembershipCols = cols("user_uuid", "role")

var orgMembershipCols = cols("user_uuid", "organizer_uuid", "role")

func newSystemMembershipRepo(t *testing.T) (*SystemMembershipRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSystemMembershipRepository(db), mock
}

func newOrgMembershipRepo(t *testing.T) (*OrganizerMembershipRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOrganizerMembershipRepository(db), mock
}

func TestSystemMembershipGetByUser_Found(t *testing.T) {
	repo, mock := newSystemMembershipRepo(t)
	mock.ExpectQuery("SELECT .* FROM system_memberships WHERE user_uuid = \\$1 AND is_deleted = false").
		WithArgs("00000000-0000-4000-8000-000600000001").
		WillReturnRows(sqlmock.NewRows(systemMembershipCols).
			AddRow(baseRow(1, "00000000-0000-4000-8000-002300000001", "00000000-0000-4000-8000-000600000001", models.SystemRoleAuditor)...))

	m, err := repo.GetByUser(context.Background(), "00000000-0000-4000-8000-000600000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.Role != models.SystemRoleAuditor {
		t.Fatalf("unexpected membership: %+v", m)
	}
}

func TestSystemMembershipGetByUser_None(t *testing.T) {
	repo, mock := newSystemMembershipRepo(t)
	mock.ExpectQuery("SELECT .* FROM system_memberships").
		WithArgs("00000000-0000-4000-8000-000600000001").
		WillReturnRows(sqlmock.NewRows(systemMembershipCols))

	m, err := repo.GetByUser(context.Background(), "00000000-0000-4000-8000-000600000001")
	if err != nil || m != nil {
		t.Fatalf("expected nil, nil; got %v, %v", m, err)
	}
}

func TestSystemMembershipUpsert_RevivesDeletedRow(t *testing.T) {
	repo, mock := newSystemMembershipRepo(t)
	mock.ExpectQuery("INSERT INTO system_memberships .* ON CONFLICT \\(user_uuid\\) DO UPDATE SET role = EXCLUDED.role, is_active = true, is_deleted = false").
		WillReturnRows(sqlmock.NewRows(systemMembershipCols).
			AddRow(baseRow(4, "sm-old", "00000000-0000-4000-8000-000600000001", models.SystemRoleSupport)...))

	m, err := repo.Upsert(context.Background(), "00000000-0000-4000-8000-000600000001", models.SystemRoleSupport, testActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.UUID != "sm-old" || m.IsDeleted {
		t.Errorf("expected the revived row, got %+v", m)
	}
}

func TestSystemMembershipDeleteByUser(t *testing.T) {
	repo, mock := newSystemMembershipRepo(t)
	mock.ExpectExec("UPDATE system_memberships SET is_deleted = true .* WHERE user_uuid = \\$4").
		WithArgs(fixedNow, testActor.UserUUID, testActor.Role, "00000000-0000-4000-8000-000600000001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteByUser(context.Background(), "00000000-0000-4000-8000-000600000001", testActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSystemMembershipCountByRole(t *testing.T) {
	repo, mock := newSystemMembershipRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM system_memberships WHERE role").
		WithArgs(models.SystemRoleSuperAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountByRole(context.Background(), models.SystemRoleSuperAdmin)
	if err != nil || n != 2 {
		t.Fatalf("CountByRole = %d, %v; want 2, nil", n, err)
	}
}

func TestOrganizerMembershipListByUser_JoinsOrganizer(t *testing.T) {
	repo, mock := newOrgMembershipRepo(t)
	rowCols := append(append([]string{}, orgMembershipCols...), "name", "status")
	mock.ExpectQuery("SELECT .* FROM organizer_memberships m JOIN organizers o").
		WithArgs("00000000-0000-4000-8000-000600000001").
		WillReturnRows(sqlmock.NewRows(rowCols).
			AddRow(baseRow(1, "00000000-0000-4000-8000-001900000001", "00000000-0000-4000-8000-000600000001", "00000000-0000-4000-8000-000100000001", models.OrganizerRoleOwner, "Acme Races", "approved")...).
			AddRow(baseRow(2, "00000000-0000-4000-8000-001900000002", "00000000-0000-4000-8000-000600000001", "00000000-0000-4000-8000-000100000002", models.OrganizerRoleViewer, "Bay Runners", "pending")...))

	ms, err := repo.ListByUser(context.Background(), "00000000-0000-4000-8000-000600000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("len = %d, want 2", len(ms))
	}
	if ms[0].OrganizerName != "Acme Races" || ms[1].OrganizerStatus != "pending" {
		t.Errorf("joined columns not populated: %+v %+v", ms[0], ms[1])
	}
}

func TestOrganizerMembershipListByOrganizer(t *testing.T) {
	repo, mock := newOrgMembershipRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM organizer_memberships m WHERE m.organizer_uuid = \\$1 AND m.is_deleted = false").
		WithArgs("00000000-0000-4000-8000-000100000001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rowCols := append(append([]string{}, orgMembershipCols...), "email")
	mock.ExpectQuery("SELECT .* FROM organizer_memberships m JOIN users u").
		WithArgs("00000000-0000-4000-8000-000100000001", 20, 0).
		WillReturnRows(sqlmock.NewRows(rowCols).
			AddRow(baseRow(1, "00000000-0000-4000-8000-001900000001", "00000000-0000-4000-8000-000600000001", "00000000-0000-4000-8000-000100000001", models.OrganizerRoleEditor, "alice@example.com")...))

	ms, total, err := repo.ListByOrganizer(context.Background(), "00000000-0000-4000-8000-000100000001", ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || ms[0].UserEmail != "alice@example.com" {
		t.Errorf("unexpected result: total=%d %+v", total, ms)
	}
}

func TestOrganizerMembershipUpsert_KeepsJoinedFields(t *testing.T) {
	repo, mock := newOrgMembershipRepo(t)
	mock.ExpectQuery("INSERT INTO organizer_memberships .* ON CONFLICT \\(user_uuid, organizer_uuid\\)").
		WillReturnRows(sqlmock.NewRows(orgMembershipCols).
			AddRow(baseRow(9, "00000000-0000-4000-8000-001900000009", "00000000-0000-4000-8000-000600000001", "00000000-0000-4000-8000-000100000001", models.OrganizerRoleAdmin)...))

	m := &models.OrganizerMembership{UserUUID: "00000000-0000-4000-8000-000600000001", OrganizerUUID: "00000000-0000-4000-8000-000100000001", Role: models.OrganizerRoleAdmin, UserEmail: "alice@example.com"}
	if err := repo.Upsert(context.Background(), m, testActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != 9 || m.UserEmail != "alice@example.com" {
		t.Errorf("unexpected membership after upsert: %+v", m)
	}
}

func TestOrganizerMembershipUpdateRole_NotFound(t *testing.T) {
	repo, mock := newOrgMembershipRepo(t)
	mock.ExpectExec("UPDATE organizer_memberships SET role").
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := &models.OrganizerMembership{BaseRecord: models.BaseRecord{UUID: "00000000-0000-4000-8000-001900000001"}}
	err := repo.UpdateRole(context.Background(), m, models.OrganizerRoleViewer, testActor)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrganizerMembershipCountOwners_DBError(t *testing.T) {
	repo, mock := newOrgMembershipRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM organizer_memberships").
		WithArgs("00000000-0000-4000-8000-000100000001", models.OrganizerRoleOwner).
		WillReturnError(errDB)

	if _, err := repo.CountOwners(context.Background(), "00000000-0000-4000-8000-000100000001"); !errors.Is(err, errDB) {
		t.Fatalf("expected wrapped errDB, got %v", err)
	}
}
