package repositories

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/lib/pq"
)

var errDB = errors.New("db error")

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testActor = models.Actor{UserUUID: "11111111-1111-1111-1111-111111111111", Role: models.SystemRoleSuperAdmin}

var baseColNames = []string{
	"id", "uuid", "is_active", "is_deleted", "created_at", "updated_at", "deleted_at",
	"created_by", "created_by_role", "updated_by", "updated_by_role", "deleted_by", "deleted_by_role", "version",
}

// cols prefixes the base columns to an entity's own columns.
func cols(extra ...string) []string {
	out := make([]string, 0, len(baseColNames)+len(extra))
	out = append(out, baseColNames...)
	return append(out, extra...)
}

// baseRow returns base-column values for a live record.
func baseRow(id int64, uuid string, extra ...driver.Value) []driver.Value {
	out := []driver.Value{id, uuid, true, false, fixedNow, fixedNow, nil, nil, nil, nil, nil, nil, nil, int64(1)}
	return append(out, extra...)
}

// deletedBaseRow returns base-column values for a soft-deleted record.
func deletedBaseRow(id int64, uuid string, extra ...driver.Value) []driver.Value {
	out := []driver.Value{id, uuid, false, true, fixedNow, fixedNow, fixedNow, nil, nil, nil, nil, "admin-uuid", "super_admin", int64(2)}
	return append(out, extra...)
}

func pqUniqueViolation() error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func pqForeignKeyViolation() error {
	return &pq.Error{Code: "23503", Message: "insert or update violates foreign key constraint"}
}

func init() {
	nowFunc = func() time.Time { return fixedNow }
}
