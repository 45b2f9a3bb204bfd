// file_record_repository.go implements FileRecordRepository. Only upload metadata is stored;
// the bytes live wherever storage_key points.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/lib/pq"
)

const fileRecordColumns = baseColumns + `, organizer_uuid, original_name, content_type, size_bytes, storage_key, sha256`

// FileRecordRepository handles file metadata database operations
type FileRecordRepository struct {
	db DBTX
}

// NewFileRecordRepository creates a new FileRecordRepository
func NewFileRecordRepository(db DBTX) *FileRecordRepository {
	return &FileRecordRepository{db: db}
}

func scanFileRecord(row rowScanner) (*models.FileRecord, error) {
	f := &models.FileRecord{}
	err := row.Scan(scanFields(&f.BaseRecord,
		&f.OrganizerUUID, &f.OriginalName, &f.ContentType, &f.SizeBytes, &f.StorageKey, &f.SHA256,
	)...)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts file metadata
func (r *FileRecordRepository) Create(ctx context.Context, f *models.FileRecord, actor models.Actor) error {
	f.StampCreate(actor, nowFunc())

	query := `INSERT INTO file_records (` + baseInsertColumns + `, organizer_uuid, original_name, content_type,
		size_bytes, storage_key, sha256)
		VALUES (` + placeholders(1, baseInsertCount+6) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&f.BaseRecord,
		f.OrganizerUUID, f.OriginalName, f.ContentType, f.SizeBytes, f.StorageKey, f.SHA256,
	)...).Scan(&f.ID)
	if err != nil {
		return mapWriteError("create file record", err)
	}
	return nil
}

// GetByUUID retrieves file metadata by UUID
func (r *FileRecordRepository) GetByUUID(ctx context.Context, uuid string, includeDeleted bool) (*models.FileRecord, error) {
	f, err := scanFileRecord(r.db.QueryRowContext(ctx,
		`SELECT `+fileRecordColumns+` FROM file_records WHERE uuid = $1 AND `+deletedFilter("", includeDeleted), uuid))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	return f, nil
}

// Delete soft-deletes file metadata
func (r *FileRecordRepository) Delete(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "file_records", uuid, actor)
}

// List returns a page of file records, optionally restricted to some organizers
func (r *FileRecordRepository) List(ctx context.Context, organizerUUIDs []string, opts ListOptions) ([]*models.FileRecord, int, error) {
	where := newWhere("", opts.IncludeDeleted)
	if organizerUUIDs != nil {
		where.add("organizer_uuid = ANY(?::uuid[])", pq.Array(organizerUUIDs))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_records WHERE `+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count file records: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		fileRecordColumns, where.String(), where.next(), where.next()+1)
	rows, err := r.db.QueryContext(ctx, query, append(where.args, opts.limit(), opts.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.FileRecord, 0)
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan file record: %w", err)
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}
