// base.go holds the column lists and helpers every entity repository uses to apply the
// shared record lifecycle: create and update stamps, soft delete, and deleted-row filtering.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/lib/pq"
)

// ErrNotFound is returned by writes that target a missing or soft-deleted row.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// ErrForeignKey is returned when a write references a row that does not exist.
var ErrForeignKey = errors.New("referenced record does not exist")

// DBTX is satisfied by *sql.DB and *sql.Tx so repositories can run inside a caller's
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nowFunc is the repository clock; all stamps are UTC.
var nowFunc = func() time.Time { return time.Now().UTC() }

// baseColumns lists the BaseRecord columns in scan order.
const baseColumns = `id, uuid, is_active, is_deleted, created_at, updated_at, deleted_at, ` +
	`created_by, created_by_role, updated_by, updated_by_role, deleted_by, deleted_by_role, version`

// baseInsertColumns lists the BaseRecord columns written on insert (10 values).
const baseInsertColumns = `uuid, is_active, is_deleted, created_at, updated_at, ` +
	`created_by, created_by_role, updated_by, updated_by_role, version`

const baseInsertCount = 10

// baseColumnsOf qualifies baseColumns with a table alias for joined reads.
func baseColumnsOf(alias string) string {
	cols := strings.Split(baseColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// baseScanFields returns scan destinations matching baseColumns.
func baseScanFields(b *models.BaseRecord) []interface{} {
	return []interface{}{
		&b.ID, &b.UUID, &b.IsActive, &b.IsDeleted, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
		&b.CreatedBy, &b.CreatedByRole, &b.UpdatedBy, &b.UpdatedByRole, &b.DeletedBy, &b.DeletedByRole,
		&b.Version,
	}
}

// baseInsertValues returns values matching baseInsertColumns.
func baseInsertValues(b *models.BaseRecord) []interface{} {
	return []interface{}{
		b.UUID, b.IsActive, b.IsDeleted, b.CreatedAt, b.UpdatedAt,
		b.CreatedBy, b.CreatedByRole, b.UpdatedBy, b.UpdatedByRole, b.Version,
	}
}

// baseUpdateSet returns the SET fragment stamping an update, using placeholders starting at
// start. It consumes three arguments from baseUpdateValues.
func baseUpdateSet(start int) string {
	return fmt.Sprintf("updated_at = $%d, updated_by = $%d, updated_by_role = $%d, version = version + 1",
		start, start+1, start+2)
}

func baseUpdateValues(b *models.BaseRecord) []interface{} {
	return []interface{}{b.UpdatedAt, b.UpdatedBy, b.UpdatedByRole}
}

// placeholders returns "$start, $start+1, ..." for n values.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// scanFields appends entity-specific destinations to the base ones.
func scanFields(b *models.BaseRecord, extra ...interface{}) []interface{} {
	return append(baseScanFields(b), extra...)
}

// insertValues appends entity-specific values to the base ones.
func insertValues(b *models.BaseRecord, extra ...interface{}) []interface{} {
	return append(baseInsertValues(b), extra...)
}

// deletedFilter returns the predicate hiding soft-deleted rows unless includeDeleted is set.
func deletedFilter(alias string, includeDeleted bool) string {
	if includeDeleted {
		return "TRUE"
	}
	if alias == "" {
		return "is_deleted = false"
	}
	return alias + ".is_deleted = false"
}

// softDelete flags a row as deleted and stamps the actor. It never removes the row.
func softDelete(ctx context.Context, q DBTX, table, uuid string, actor models.Actor) error {
	return softDeleteWhere(ctx, q, table, "uuid", uuid, actor)
}

// softDeleteWhere soft-deletes the live rows whose column equals value.
func softDeleteWhere(ctx context.Context, q DBTX, table, column string, value interface{}, actor models.Actor) error {
	now := nowFunc()
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_deleted = true, is_active = false,
		    deleted_at = $1, deleted_by = $2, deleted_by_role = $3,
		    updated_at = $1, version = version + 1
		WHERE %s = $4 AND is_deleted = false
	`, table, column)

	result, err := q.ExecContext(ctx, query, now, actor.UserRef(), actor.RoleRef(), value)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", table, err)
	}
	return expectAffected(result)
}

// expectAffected maps a zero-row write to ErrNotFound.
func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapWriteError converts unique violations into ErrDuplicate and foreign key violations
// into ErrForeignKey.
func mapWriteError(action string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("failed to %s: %w", action, ErrDuplicate)
		case "23503":
			return fmt.Errorf("failed to %s: %w", action, ErrForeignKey)
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// ListOptions carries pagination and history flags for list queries.
type ListOptions struct {
	Limit          int
	Offset         int
	IncludeDeleted bool
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	if o.Limit > 100 {
		return 100
	}
	return o.Limit
}

func (o ListOptions) offset() int {
	if o.Offset < 0 {
		return 0
	}
	return o.Offset
}

// whereBuilder accumulates AND-ed predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func newWhere(alias string, includeDeleted bool) *whereBuilder {
	return &whereBuilder{clauses: []string{deletedFilter(alias, includeDeleted)}}
}

// add appends a predicate; every "?" in clause is bound to arg.
func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) String() string {
	return strings.Join(w.clauses, " AND ")
}

// next returns the next free placeholder index.
func (w *whereBuilder) next() int {
	return len(w.args) + 1
}
