// event_repository.go implements EventRepository, covering events and their form-field
// definitions. Event codes are immutable after creation; field keys become immutable once a
// submission value references the field.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/lib/pq"
)

const eventColumns = baseColumns + `, organizer_uuid, activity_template_uuid, code, name, description, status,
	starts_at, ends_at, registration_deadline, config`

const eventFieldColumns = baseColumns + `, event_uuid, field_key, label, field_type, is_required, options,
	validation_rules, config, sort_order`

// EventFilter narrows event listings
type EventFilter struct {
	OrganizerUUID *string
	Status        *string
	// OrganizerUUIDs restricts results to events of these organizers. nil means no restriction.
	OrganizerUUIDs []string
}

// EventRepository handles event and event-field database operations
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *EventRepository) WithTx(tx *sql.Tx) *EventRepository {
	return &EventRepository{db: tx}
}

func scanEvent(row rowScanner) (*models.Event, error) {
	e := &models.Event{}
	err := row.Scan(scanFields(&e.BaseRecord,
		&e.OrganizerUUID, &e.ActivityTemplateUUID, &e.Code, &e.Name, &e.Description, &e.Status,
		&e.StartsAt, &e.EndsAt, &e.RegistrationDeadline, &e.Config,
	)...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEventField(row rowScanner) (*models.EventField, error) {
	f := &models.EventField{}
	err := row.Scan(scanFields(&f.BaseRecord,
		&f.EventUUID, &f.FieldKey, &f.Label, &f.FieldType, &f.IsRequired, &f.Options,
		&f.ValidationRules, &f.Config, &f.SortOrder,
	)...)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts an event. Status defaults to draft.
func (r *EventRepository) Create(ctx context.Context, e *models.Event, actor models.Actor) error {
	e.StampCreate(actor, nowFunc())
	if e.Status == "" {
		e.Status = models.EventStatusDraft
	}

	query := `INSERT INTO events (` + baseInsertColumns + `, organizer_uuid, activity_template_uuid, code, name,
		description, status, starts_at, ends_at, registration_deadline, config)
		VALUES (` + placeholders(1, baseInsertCount+10) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&e.BaseRecord,
		e.OrganizerUUID, e.ActivityTemplateUUID, e.Code, e.Name, e.Description, e.Status,
		e.StartsAt, e.EndsAt, e.RegistrationDeadline, e.Config,
	)...).Scan(&e.ID)
	if err != nil {
		return mapWriteError("create event", err)
	}
	return nil
}

// GetByUUID retrieves an event by UUID
func (r *EventRepository) GetByUUID(ctx context.Context, uuid string, includeDeleted bool) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE uuid = $1 AND ` + deletedFilter("", includeDeleted)
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, uuid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// Update writes the mutable event fields. Code and status are not touched.
func (r *EventRepository) Update(ctx context.Context, e *models.Event, actor models.Actor) error {
	e.StampUpdate(actor, nowFunc())

	query := `UPDATE events SET name = $1, description = $2, starts_at = $3, ends_at = $4,
		registration_deadline = $5, config = $6, activity_template_uuid = $7, is_active = $8, ` + baseUpdateSet(9) + `
		WHERE uuid = $12 AND is_deleted = false`

	args := []interface{}{e.Name, e.Description, e.StartsAt, e.EndsAt, e.RegistrationDeadline, e.Config,
		e.ActivityTemplateUUID, e.IsActive}
	args = append(args, baseUpdateValues(&e.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, e.UUID)...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return expectAffected(result)
}

// SetStatus writes a new lifecycle status. Callers validate the transition first.
func (r *EventRepository) SetStatus(ctx context.Context, e *models.Event, status string, actor models.Actor) error {
	e.StampUpdate(actor, nowFunc())
	e.Status = status

	query := `UPDATE events SET status = $1, ` + baseUpdateSet(2) + ` WHERE uuid = $5 AND is_deleted = false`
	args := append([]interface{}{status}, baseUpdateValues(&e.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, e.UUID)...)
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	return expectAffected(result)
}

// Delete soft-deletes an event
func (r *EventRepository) Delete(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "events", uuid, actor)
}

// List returns a page of events matching filter, newest first
func (r *EventRepository) List(ctx context.Context, filter EventFilter, opts ListOptions) ([]*models.Event, int, error) {
	where := newWhere("", opts.IncludeDeleted)
	if filter.OrganizerUUID != nil {
		where.add("organizer_uuid = ?", *filter.OrganizerUUID)
	}
	if filter.Status != nil {
		where.add("status = ?", *filter.Status)
	}
	if filter.OrganizerUUIDs != nil {
		where.add("organizer_uuid = ANY(?::uuid[])", pq.Array(filter.OrganizerUUIDs))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		eventColumns, where.String(), where.next(), where.next()+1)
	rows, err := r.db.QueryContext(ctx, query, append(where.args, opts.limit(), opts.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// CreateField inserts an event field
func (r *EventRepository) CreateField(ctx context.Context, f *models.EventField, actor models.Actor) error {
	f.StampCreate(actor, nowFunc())

	query := `INSERT INTO event_fields (` + baseInsertColumns + `, event_uuid, field_key, label, field_type,
		is_required, options, validation_rules, config, sort_order)
		VALUES (` + placeholders(1, baseInsertCount+9) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&f.BaseRecord,
		f.EventUUID, f.FieldKey, f.Label, f.FieldType, f.IsRequired, f.Options, f.ValidationRules,
		f.Config, f.SortOrder,
	)...).Scan(&f.ID)
	if err != nil {
		return mapWriteError("create event field", err)
	}
	return nil
}

// GetField retrieves an event field by UUID
func (r *EventRepository) GetField(ctx context.Context, uuid string, includeDeleted bool) (*models.EventField, error) {
	query := `SELECT ` + eventFieldColumns + ` FROM event_fields WHERE uuid = $1 AND ` + deletedFilter("", includeDeleted)
	f, err := scanEventField(r.db.QueryRowContext(ctx, query, uuid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event field: %w", err)
	}
	return f, nil
}

// ListFields returns an event's fields in display order
func (r *EventRepository) ListFields(ctx context.Context, eventUUID string, includeDeleted bool) ([]models.EventField, error) {
	query := `SELECT ` + eventFieldColumns + ` FROM event_fields
		WHERE event_uuid = $1 AND ` + deletedFilter("", includeDeleted) + `
		ORDER BY sort_order, field_key`

	rows, err := r.db.QueryContext(ctx, query, eventUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event fields: %w", err)
	}
	defer rows.Close()

	out := make([]models.EventField, 0)
	for rows.Next() {
		f, err := scanEventField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event field: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// UpdateField writes the mutable field definition
func (r *EventRepository) UpdateField(ctx context.Context, f *models.EventField, actor models.Actor) error {
	f.StampUpdate(actor, nowFunc())

	query := `UPDATE event_fields SET field_key = $1, label = $2, field_type = $3, is_required = $4, options = $5,
		validation_rules = $6, config = $7, sort_order = $8, is_active = $9, ` + baseUpdateSet(10) + `
		WHERE uuid = $13 AND is_deleted = false`

	args := []interface{}{f.FieldKey, f.Label, f.FieldType, f.IsRequired, f.Options, f.ValidationRules,
		f.Config, f.SortOrder, f.IsActive}
	args = append(args, baseUpdateValues(&f.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, f.UUID)...)
	if err != nil {
		return mapWriteError("update event field", err)
	}
	return expectAffected(result)
}

// DeleteField soft-deletes an event field
func (r *EventRepository) DeleteField(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "event_fields", uuid, actor)
}

// FieldHasValues reports whether any live submission value references the field
func (r *EventRepository) FieldHasValues(ctx context.Context, fieldUUID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM submission_values WHERE event_field_uuid = $1 AND is_deleted = false)`,
		fieldUUID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check field usage: %w", err)
	}
	return exists, nil
}
