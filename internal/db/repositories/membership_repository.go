// membership_repository.go implements the platform (system) and per-organizer membership
// repositories. Both tables are unique per user (or per user and organizer), so assigning a
// role to a user whose previous membership was soft-deleted revives that row.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
)

const systemMembershipColumns = baseColumns + `, user_uuid, role`

// SystemMembershipRepository handles platform role assignments
type SystemMembershipRepository struct {
	db DBTX
}

// NewSystemMembershipRepository creates a new SystemMembershipRepository
func NewSystemMembershipRepository(db DBTX) *SystemMembershipRepository {
	return &SystemMembershipRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SystemMembershipRepository) WithTx(tx *sql.Tx) *SystemMembershipRepository {
	return &SystemMembershipRepository{db: tx}
}

func scanSystemMembership(row rowScanner) (*models.SystemMembership, error) {
	m := &models.SystemMembership{}
	if err := row.Scan(scanFields(&m.BaseRecord, &m.UserUUID, &m.Role)...); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByUser returns the live system membership for a user, or nil
func (r *SystemMembershipRepository) GetByUser(ctx context.Context, userUUID string) (*models.SystemMembership, error) {
	query := `SELECT ` + systemMembershipColumns + ` FROM system_memberships WHERE user_uuid = $1 AND is_deleted = false`
	m, err := scanSystemMembership(r.db.QueryRowContext(ctx, query, userUUID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get system membership: %w", err)
	}
	return m, nil
}

// Upsert assigns role to the user, reviving a soft-deleted membership if one exists
func (r *SystemMembershipRepository) Upsert(ctx context.Context, userUUID, role string, actor models.Actor) (*models.SystemMembership, error) {
	m := &models.SystemMembership{UserUUID: userUUID, Role: role}
	m.StampCreate(actor, nowFunc())

	query := `INSERT INTO system_memberships (` + baseInsertColumns + `, user_uuid, role)
		VALUES (` + placeholders(1, baseInsertCount+2) + `)
		ON CONFLICT (user_uuid) DO UPDATE SET
			role = EXCLUDED.role,
			is_active = true, is_deleted = false,
			deleted_at = NULL, deleted_by = NULL, deleted_by_role = NULL,
			updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by,
			updated_by_role = EXCLUDED.updated_by_role,
			version = system_memberships.version + 1
		RETURNING ` + systemMembershipColumns

	out, err := scanSystemMembership(r.db.QueryRowContext(ctx, query, insertValues(&m.BaseRecord, m.UserUUID, m.Role)...))
	if err != nil {
		return nil, mapWriteError("assign system role", err)
	}
	return out, nil
}

// DeleteByUser soft-deletes the user's system membership
func (r *SystemMembershipRepository) DeleteByUser(ctx context.Context, userUUID string, actor models.Actor) error {
	return softDeleteWhere(ctx, r.db, "system_memberships", "user_uuid", userUUID, actor)
}

// CountByRole counts live memberships holding role
func (r *SystemMembershipRepository) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM system_memberships WHERE role = $1 AND is_deleted = false`, role).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count system memberships: %w", err)
	}
	return n, nil
}

const organizerMembershipColumns = baseColumns + `, user_uuid, organizer_uuid, role`

// OrganizerMembershipRepository handles user-to-organizer role assignments
type OrganizerMembershipRepository struct {
	db DBTX
}

// NewOrganizerMembershipRepository creates a new OrganizerMembershipRepository
func NewOrganizerMembershipRepository(db DBTX) *OrganizerMembershipRepository {
	return &OrganizerMembershipRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *OrganizerMembershipRepository) WithTx(tx *sql.Tx) *OrganizerMembershipRepository {
	return &OrganizerMembershipRepository{db: tx}
}

func scanOrganizerMembership(row rowScanner, extra ...interface{}) (*models.OrganizerMembership, error) {
	m := &models.OrganizerMembership{}
	dest := scanFields(&m.BaseRecord, &m.UserUUID, &m.OrganizerUUID, &m.Role)
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return m, nil
}

// Upsert assigns role to the user within the organizer, reviving a soft-deleted row
func (r *OrganizerMembershipRepository) Upsert(ctx context.Context, m *models.OrganizerMembership, actor models.Actor) error {
	m.StampCreate(actor, nowFunc())

	query := `INSERT INTO organizer_memberships (` + baseInsertColumns + `, user_uuid, organizer_uuid, role)
		VALUES (` + placeholders(1, baseInsertCount+3) + `)
		ON CONFLICT (user_uuid, organizer_uuid) DO UPDATE SET
			role = EXCLUDED.role,
			is_active = true, is_deleted = false,
			deleted_at = NULL, deleted_by = NULL, deleted_by_role = NULL,
			updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by,
			updated_by_role = EXCLUDED.updated_by_role,
			version = organizer_memberships.version + 1
		RETURNING ` + organizerMembershipColumns

	out, err := scanOrganizerMembership(r.db.QueryRowContext(ctx, query,
		insertValues(&m.BaseRecord, m.UserUUID, m.OrganizerUUID, m.Role)...))
	if err != nil {
		return mapWriteError("add organizer member", err)
	}
	out.UserEmail, out.OrganizerName, out.OrganizerStatus = m.UserEmail, m.OrganizerName, m.OrganizerStatus
	*m = *out
	return nil
}

// GetByUUID retrieves a live membership by UUID
func (r *OrganizerMembershipRepository) GetByUUID(ctx context.Context, uuid string) (*models.OrganizerMembership, error) {
	query := `SELECT ` + organizerMembershipColumns + ` FROM organizer_memberships WHERE uuid = $1 AND is_deleted = false`
	m, err := scanOrganizerMembership(r.db.QueryRowContext(ctx, query, uuid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organizer membership: %w", err)
	}
	return m, nil
}

// Get retrieves the live membership of userUUID in organizerUUID
func (r *OrganizerMembershipRepository) Get(ctx context.Context, organizerUUID, userUUID string) (*models.OrganizerMembership, error) {
	query := `SELECT ` + organizerMembershipColumns + ` FROM organizer_memberships
		WHERE organizer_uuid = $1 AND user_uuid = $2 AND is_deleted = false`
	m, err := scanOrganizerMembership(r.db.QueryRowContext(ctx, query, organizerUUID, userUUID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organizer membership: %w", err)
	}
	return m, nil
}

// ListByUser returns every live membership of a user in a live organizer, with organizer details
func (r *OrganizerMembershipRepository) ListByUser(ctx context.Context, userUUID string) ([]*models.OrganizerMembership, error) {
	query := `SELECT ` + baseColumnsOf("m") + `, m.user_uuid, m.organizer_uuid, m.role, o.name, o.status
		FROM organizer_memberships m
		JOIN organizers o ON o.uuid = m.organizer_uuid
		WHERE m.user_uuid = $1 AND m.is_deleted = false AND o.is_deleted = false
		ORDER BY o.name`

	rows, err := r.db.QueryContext(ctx, query, userUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	defer rows.Close()

	out := make([]*models.OrganizerMembership, 0)
	for rows.Next() {
		var name, status string
		m, err := scanOrganizerMembership(rows, &name, &status)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.OrganizerName, m.OrganizerStatus = name, status
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListByOrganizer returns a page of an organizer's memberships with member emails
func (r *OrganizerMembershipRepository) ListByOrganizer(ctx context.Context, organizerUUID string, opts ListOptions) ([]*models.OrganizerMembership, int, error) {
	filter := deletedFilter("m", opts.IncludeDeleted)

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organizer_memberships m WHERE m.organizer_uuid = $1 AND `+filter, organizerUUID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count memberships: %w", err)
	}

	query := `SELECT ` + baseColumnsOf("m") + `, m.user_uuid, m.organizer_uuid, m.role, u.email
		FROM organizer_memberships m
		JOIN users u ON u.uuid = m.user_uuid
		WHERE m.organizer_uuid = $1 AND ` + filter + `
		ORDER BY m.created_at
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, organizerUUID, opts.limit(), opts.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	out := make([]*models.OrganizerMembership, 0)
	for rows.Next() {
		var email string
		m, err := scanOrganizerMembership(rows, &email)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.UserEmail = email
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// UpdateRole changes a membership's role
func (r *OrganizerMembershipRepository) UpdateRole(ctx context.Context, m *models.OrganizerMembership, role string, actor models.Actor) error {
	m.Role = role
	m.StampUpdate(actor, nowFunc())

	query := `UPDATE organizer_memberships SET role = $1, ` + baseUpdateSet(2) + ` WHERE uuid = $5 AND is_deleted = false`
	args := append([]interface{}{role}, baseUpdateValues(&m.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, m.UUID)...)
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	return expectAffected(result)
}

// Delete soft-deletes a membership
func (r *OrganizerMembershipRepository) Delete(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "organizer_memberships", uuid, actor)
}

// CountOwners counts the live owners of an organizer
func (r *OrganizerMembershipRepository) CountOwners(ctx context.Context, organizerUUID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organizer_memberships WHERE organizer_uuid = $1 AND role = $2 AND is_deleted = false`,
		organizerUUID, models.OrganizerRoleOwner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}
