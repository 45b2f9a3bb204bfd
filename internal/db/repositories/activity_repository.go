// activity_repository.go implements ActivityRepository for the activity catalog (types and
// templates). It uses sqlx struct scanning since both tables map one-to-one onto their models.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const activityTypeColumns = baseColumns + `, code, name, description, config`

const activityTemplateColumns = baseColumns +
	`, activity_type_uuid, organizer_uuid, name, description, default_fields, config`

// TemplateFilter narrows template listings
type TemplateFilter struct {
	ActivityTypeUUID *string
	// VisibleTo limits results to global templates plus those owned by these organizers.
	// nil means no restriction.
	VisibleTo []string
}

// ActivityRepository handles activity type and template database operations
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: sqlx.NewDb(db, "postgres")}
}

// CreateType inserts an activity type
func (r *ActivityRepository) CreateType(ctx context.Context, t *models.ActivityType, actor models.Actor) error {
	t.StampCreate(actor, nowFunc())

	query, args, err := r.db.BindNamed(`
		INSERT INTO activity_types (`+baseInsertColumns+`, code, name, description, config)
		VALUES (:uuid, :is_active, :is_deleted, :created_at, :updated_at, :created_by, :created_by_role,
		        :updated_by, :updated_by_role, :version, :code, :name, :description, :config)
		RETURNING id`, t)
	if err != nil {
		return fmt.Errorf("failed to bind activity type: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&t.ID); err != nil {
		return mapWriteError("create activity type", err)
	}
	return nil
}

// GetType retrieves an activity type by UUID
func (r *ActivityRepository) GetType(ctx context.Context, uuid string, includeDeleted bool) (*models.ActivityType, error) {
	t := &models.ActivityType{}
	err := r.db.GetContext(ctx, t,
		`SELECT `+activityTypeColumns+` FROM activity_types WHERE uuid = $1 AND `+deletedFilter("", includeDeleted), uuid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity type: %w", err)
	}
	return t, nil
}

// UpdateType writes the mutable fields of an activity type
func (r *ActivityRepository) UpdateType(ctx context.Context, t *models.ActivityType, actor models.Actor) error {
	t.StampUpdate(actor, nowFunc())

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE activity_types
		SET code = :code, name = :name, description = :description, config = :config, is_active = :is_active,
		    updated_at = :updated_at, updated_by = :updated_by, updated_by_role = :updated_by_role,
		    version = version + 1
		WHERE uuid = :uuid AND is_deleted = false`, t)
	if err != nil {
		return mapWriteError("update activity type", err)
	}
	return expectAffected(result)
}

// DeleteType soft-deletes an activity type
func (r *ActivityRepository) DeleteType(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "activity_types", uuid, actor)
}

// ListTypes returns a page of activity types ordered by name
func (r *ActivityRepository) ListTypes(ctx context.Context, opts ListOptions) ([]*models.ActivityType, int, error) {
	filter := deletedFilter("", opts.IncludeDeleted)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_types WHERE `+filter); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity types: %w", err)
	}

	out := make([]*models.ActivityType, 0)
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+activityTypeColumns+` FROM activity_types WHERE `+filter+` ORDER BY name LIMIT $1 OFFSET $2`,
		opts.limit(), opts.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity types: %w", err)
	}
	return out, total, nil
}

// CreateTemplate inserts an activity template
func (r *ActivityRepository) CreateTemplate(ctx context.Context, t *models.ActivityTemplate, actor models.Actor) error {
	t.StampCreate(actor, nowFunc())

	query, args, err := r.db.BindNamed(`
		INSERT INTO activity_templates (`+baseInsertColumns+`, activity_type_uuid, organizer_uuid, name, description, default_fields, config)
		VALUES (:uuid, :is_active, :is_deleted, :created_at, :updated_at, :created_by, :created_by_role,
		        :updated_by, :updated_by_role, :version, :activity_type_uuid, :organizer_uuid, :name, :description,
		        :default_fields, :config)
		RETURNING id`, t)
	if err != nil {
		return fmt.Errorf("failed to bind activity template: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&t.ID); err != nil {
		return mapWriteError("create activity template", err)
	}
	return nil
}

// GetTemplate retrieves an activity template by UUID
func (r *ActivityRepository) GetTemplate(ctx context.Context, uuid string, includeDeleted bool) (*models.ActivityTemplate, error) {
	t := &models.ActivityTemplate{}
	err := r.db.GetContext(ctx, t,
		`SELECT `+activityTemplateColumns+` FROM activity_templates WHERE uuid = $1 AND `+deletedFilter("", includeDeleted), uuid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity template: %w", err)
	}
	return t, nil
}

// UpdateTemplate writes the mutable fields of an activity template
func (r *ActivityRepository) UpdateTemplate(ctx context.Context, t *models.ActivityTemplate, actor models.Actor) error {
	t.StampUpdate(actor, nowFunc())

	result, err := r.db.NamedExecContext(ctx, `
		UPDATE activity_templates
		SET activity_type_uuid = :activity_type_uuid, name = :name, description = :description,
		    default_fields = :default_fields, config = :config, is_active = :is_active,
		    updated_at = :updated_at, updated_by = :updated_by, updated_by_role = :updated_by_role,
		    version = version + 1
		WHERE uuid = :uuid AND is_deleted = false`, t)
	if err != nil {
		return fmt.Errorf("failed to update activity template: %w", err)
	}
	return expectAffected(result)
}

// DeleteTemplate soft-deletes an activity template
func (r *ActivityRepository) DeleteTemplate(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "activity_templates", uuid, actor)
}

// ListTemplates returns a page of templates matching filter
func (r *ActivityRepository) ListTemplates(ctx context.Context, filter TemplateFilter, opts ListOptions) ([]*models.ActivityTemplate, int, error) {
	where := newWhere("", opts.IncludeDeleted)
	if filter.ActivityTypeUUID != nil {
		where.add("activity_type_uuid = ?", *filter.ActivityTypeUUID)
	}
	if filter.VisibleTo != nil {
		where.add("(organizer_uuid IS NULL OR organizer_uuid = ANY(?::uuid[]))", pq.Array(filter.VisibleTo))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_templates WHERE `+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity templates: %w", err)
	}

	out := make([]*models.ActivityTemplate, 0)
	query := fmt.Sprintf(`SELECT %s FROM activity_templates WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		activityTemplateColumns, where.String(), where.next(), where.next()+1)
	if err := r.db.SelectContext(ctx, &out, query, append(where.args, opts.limit(), opts.offset())...); err != nil {
		return nil, 0, fmt.Errorf("failed to list activity templates: %w", err)
	}
	return out, total, nil
}
