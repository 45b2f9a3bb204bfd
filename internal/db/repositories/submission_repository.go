// submission_repository.go implements SubmissionRepository for submission headers and their
// per-field values.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/lib/pq"
)

const submissionColumns = baseColumns + `, event_uuid, user_uuid, tracking_code, contact_email, status,
	extra_data, ip_address, user_agent`

const submissionValueColumns = baseColumns + `, submission_uuid, event_field_uuid, field_key, value, file_record_uuid`

// SubmissionFilter narrows submission listings
type SubmissionFilter struct {
	EventUUID *string
	Status    *string
	// OrganizerUUIDs restricts results to submissions for these organizers' events.
	OrganizerUUIDs []string
}

// SubmissionRepository handles submission database operations
type SubmissionRepository struct {
	db DBTX
}

// NewSubmissionRepository creates a new SubmissionRepository
func NewSubmissionRepository(db DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SubmissionRepository) WithTx(tx *sql.Tx) *SubmissionRepository {
	return &SubmissionRepository{db: tx}
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	s := &models.Submission{}
	err := row.Scan(scanFields(&s.BaseRecord,
		&s.EventUUID, &s.UserUUID, &s.TrackingCode, &s.ContactEmail, &s.Status, &s.ExtraData,
		&s.IPAddress, &s.UserAgent,
	)...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSubmissionValue(row rowScanner) (*models.SubmissionValue, error) {
	v := &models.SubmissionValue{}
	err := row.Scan(scanFields(&v.BaseRecord,
		&v.SubmissionUUID, &v.EventFieldUUID, &v.FieldKey, &v.Value, &v.FileRecordUUID,
	)...)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Create inserts a submission header. Status defaults to pending.
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission, actor models.Actor) error {
	s.StampCreate(actor, nowFunc())
	if s.Status == "" {
		s.Status = models.SubmissionStatusPending
	}

	query := `INSERT INTO submissions (` + baseInsertColumns + `, event_uuid, user_uuid, tracking_code, contact_email,
		status, extra_data, ip_address, user_agent)
		VALUES (` + placeholders(1, baseInsertCount+8) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&s.BaseRecord,
		s.EventUUID, s.UserUUID, s.TrackingCode, s.ContactEmail, s.Status, s.ExtraData, s.IPAddress, s.UserAgent,
	)...).Scan(&s.ID)
	if err != nil {
		return mapWriteError("create submission", err)
	}
	return nil
}

// CreateValue inserts one submission value
func (r *SubmissionRepository) CreateValue(ctx context.Context, v *models.SubmissionValue, actor models.Actor) error {
	v.StampCreate(actor, nowFunc())

	query := `INSERT INTO submission_values (` + baseInsertColumns + `, submission_uuid, event_field_uuid, field_key,
		value, file_record_uuid)
		VALUES (` + placeholders(1, baseInsertCount+5) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&v.BaseRecord,
		v.SubmissionUUID, v.EventFieldUUID, v.FieldKey, v.Value, v.FileRecordUUID,
	)...).Scan(&v.ID)
	if err != nil {
		return mapWriteError("create submission value", err)
	}
	return nil
}

func (r *SubmissionRepository) getOne(ctx context.Context, where string, args ...interface{}) (*models.Submission, error) {
	s, err := scanSubmission(r.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// GetByUUID retrieves a submission header by UUID
func (r *SubmissionRepository) GetByUUID(ctx context.Context, uuid string, includeDeleted bool) (*models.Submission, error) {
	return r.getOne(ctx, `uuid = $1 AND `+deletedFilter("", includeDeleted), uuid)
}

// GetByTrackingCode retrieves a live submission by its public tracking code
func (r *SubmissionRepository) GetByTrackingCode(ctx context.Context, code string) (*models.Submission, error) {
	return r.getOne(ctx, `tracking_code = $1 AND is_deleted = false`, code)
}

// ListValues returns the live values of one submission
func (r *SubmissionRepository) ListValues(ctx context.Context, submissionUUID string) ([]models.SubmissionValue, error) {
	byParent, err := r.ListValuesFor(ctx, []string{submissionUUID})
	if err != nil {
		return nil, err
	}
	if vals, ok := byParent[submissionUUID]; ok {
		return vals, nil
	}
	return []models.SubmissionValue{}, nil
}

// ListValuesFor loads the live values of several submissions in one query, keyed by submission UUID
func (r *SubmissionRepository) ListValuesFor(ctx context.Context, submissionUUIDs []string) (map[string][]models.SubmissionValue, error) {
	query := `SELECT ` + submissionValueColumns + ` FROM submission_values
		WHERE submission_uuid = ANY($1::uuid[]) AND is_deleted = false
		ORDER BY submission_uuid, id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(submissionUUIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list submission values: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.SubmissionValue, len(submissionUUIDs))
	for rows.Next() {
		v, err := scanSubmissionValue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission value: %w", err)
		}
		out[v.SubmissionUUID] = append(out[v.SubmissionUUID], *v)
	}
	return out, rows.Err()
}

// SetStatus writes a new status. Callers validate the transition first.
func (r *SubmissionRepository) SetStatus(ctx context.Context, s *models.Submission, status string, actor models.Actor) error {
	s.StampUpdate(actor, nowFunc())
	s.Status = status

	query := `UPDATE submissions SET status = $1, ` + baseUpdateSet(2) + ` WHERE uuid = $5 AND is_deleted = false`
	args := append([]interface{}{status}, baseUpdateValues(&s.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, s.UUID)...)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	return expectAffected(result)
}

// Delete soft-deletes a submission and its values
func (r *SubmissionRepository) Delete(ctx context.Context, uuid string, actor models.Actor) error {
	if err := softDelete(ctx, r.db, "submissions", uuid, actor); err != nil {
		return err
	}
	err := softDeleteWhere(ctx, r.db, "submission_values", "submission_uuid", uuid, actor)
	if err != nil && err != ErrNotFound {
		return err
	}
	return nil
}

// List returns a page of submissions matching filter, newest first
func (r *SubmissionRepository) List(ctx context.Context, filter SubmissionFilter, opts ListOptions) ([]*models.Submission, int, error) {
	where := newWhere("", opts.IncludeDeleted)
	if filter.EventUUID != nil {
		where.add("event_uuid = ?", *filter.EventUUID)
	}
	if filter.Status != nil {
		where.add("status = ?", *filter.Status)
	}
	if filter.OrganizerUUIDs != nil {
		where.add("event_uuid IN (SELECT uuid FROM events WHERE organizer_uuid = ANY(?::uuid[]))",
			pq.Array(filter.OrganizerUUIDs))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE `+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		submissionColumns, where.String(), where.next(), where.next()+1)
	rows, err := r.db.QueryContext(ctx, query, append(where.args, opts.limit(), opts.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
