// organizer_repository.go implements OrganizerRepository, providing CRUD, review-status
// updates, and membership-scoped listing for organizer tenants.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
)

const organizerColumns = baseColumns +
	`, name, slug, contact_email, contact_phone, website, status, config, reviewed_at, reviewed_by`

// OrganizerFilter narrows organizer listings
type OrganizerFilter struct {
	Status *string
	// MemberUUID restricts results to organizers the user belongs to.
	MemberUUID *string
}

// OrganizerRepository handles organizer database operations
type OrganizerRepository struct {
	db DBTX
}

// NewOrganizerRepository creates a new OrganizerRepository
func NewOrganizerRepository(db DBTX) *OrganizerRepository {
	return &OrganizerRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *OrganizerRepository) WithTx(tx *sql.Tx) *OrganizerRepository {
	return &OrganizerRepository{db: tx}
}

func scanOrganizer(row rowScanner) (*models.Organizer, error) {
	o := &models.Organizer{}
	err := row.Scan(scanFields(&o.BaseRecord,
		&o.Name, &o.Slug, &o.ContactEmail, &o.ContactPhone, &o.Website, &o.Status, &o.Config,
		&o.ReviewedAt, &o.ReviewedBy,
	)...)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Create inserts an organizer. Status defaults to pending.
func (r *OrganizerRepository) Create(ctx context.Context, o *models.Organizer, actor models.Actor) error {
	o.StampCreate(actor, nowFunc())
	if o.Status == "" {
		o.Status = models.OrganizerStatusPending
	}

	query := `INSERT INTO organizers (` + baseInsertColumns + `, name, slug, contact_email, contact_phone, website, status, config)
		VALUES (` + placeholders(1, baseInsertCount+7) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&o.BaseRecord,
		o.Name, o.Slug, o.ContactEmail, o.ContactPhone, o.Website, o.Status, o.Config,
	)...).Scan(&o.ID)
	if err != nil {
		return mapWriteError("create organizer", err)
	}
	return nil
}

// GetByUUID retrieves an organizer by UUID
func (r *OrganizerRepository) GetByUUID(ctx context.Context, uuid string, includeDeleted bool) (*models.Organizer, error) {
	query := `SELECT ` + organizerColumns + ` FROM organizers WHERE uuid = $1 AND ` + deletedFilter("", includeDeleted)
	o, err := scanOrganizer(r.db.QueryRowContext(ctx, query, uuid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organizer: %w", err)
	}
	return o, nil
}

// Update writes the mutable profile fields
func (r *OrganizerRepository) Update(ctx context.Context, o *models.Organizer, actor models.Actor) error {
	o.StampUpdate(actor, nowFunc())

	query := `UPDATE organizers SET name = $1, slug = $2, contact_email = $3, contact_phone = $4, website = $5,
		config = $6, is_active = $7, ` + baseUpdateSet(8) + `
		WHERE uuid = $11 AND is_deleted = false`

	args := []interface{}{o.Name, o.Slug, o.ContactEmail, o.ContactPhone, o.Website, o.Config, o.IsActive}
	args = append(args, baseUpdateValues(&o.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, o.UUID)...)
	if err != nil {
		return mapWriteError("update organizer", err)
	}
	return expectAffected(result)
}

// SetStatus records a review decision
func (r *OrganizerRepository) SetStatus(ctx context.Context, o *models.Organizer, status string, actor models.Actor) error {
	now := nowFunc()
	o.StampUpdate(actor, now)
	o.Status = status
	o.ReviewedAt = &now
	o.ReviewedBy = actor.UserRef()

	query := `UPDATE organizers SET status = $1, reviewed_at = $2, reviewed_by = $3, ` + baseUpdateSet(4) + `
		WHERE uuid = $7 AND is_deleted = false`
	args := append([]interface{}{status, now, o.ReviewedBy}, baseUpdateValues(&o.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, o.UUID)...)
	if err != nil {
		return fmt.Errorf("failed to update organizer status: %w", err)
	}
	return expectAffected(result)
}

// Delete soft-deletes an organizer
func (r *OrganizerRepository) Delete(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "organizers", uuid, actor)
}

// List returns a page of organizers matching filter
func (r *OrganizerRepository) List(ctx context.Context, filter OrganizerFilter, opts ListOptions) ([]*models.Organizer, int, error) {
	where := newWhere("", opts.IncludeDeleted)
	if filter.Status != nil {
		where.add("status = ?", *filter.Status)
	}
	if filter.MemberUUID != nil {
		where.add(`uuid IN (SELECT organizer_uuid FROM organizer_memberships WHERE user_uuid = ? AND is_deleted = false)`,
			*filter.MemberUUID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizers WHERE `+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count organizers: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM organizers WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		organizerColumns, where.String(), where.next(), where.next()+1)
	rows, err := r.db.QueryContext(ctx, query, append(where.args, opts.limit(), opts.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list organizers: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Organizer, 0)
	for rows.Next() {
		o, err := scanOrganizer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan organizer: %w", err)
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}
