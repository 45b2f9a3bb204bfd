// verification_repository.go implements EmailVerificationRepository. Issuance queries are
// meant to run inside one transaction that first takes the per-target advisory lock, so the
// cooldown and hourly-cap reads cannot race with a concurrent insert for the same target.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/event-registry/event-registry/internal/db/models"
)

const verificationColumns = baseColumns + `, ref_type, ref_uuid, email, token, expires_at, is_used, verified_at`

// EmailVerificationRepository handles email verification token database operations
type EmailVerificationRepository struct {
	db DBTX
}

// NewEmailVerificationRepository creates a new EmailVerificationRepository
func NewEmailVerificationRepository(db DBTX) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *EmailVerificationRepository) WithTx(tx *sql.Tx) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: tx}
}

func scanVerification(row rowScanner) (*models.EmailVerification, error) {
	v := &models.EmailVerification{}
	err := row.Scan(scanFields(&v.BaseRecord,
		&v.RefType, &v.RefUUID, &v.Email, &v.Token, &v.ExpiresAt, &v.IsUsed, &v.VerifiedAt,
	)...)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// LockRef takes a transaction-scoped advisory lock on the (refType, refUUID) target.
// It blocks until concurrent issuers for the same target commit or roll back.
func (r *EmailVerificationRepository) LockRef(ctx context.Context, refType, refUUID string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, refType, refUUID)
	if err != nil {
		return fmt.Errorf("failed to lock verification target: %w", err)
	}
	return nil
}

// LatestCreatedAt returns when the newest live token for the target was created, or nil
func (r *EmailVerificationRepository) LatestCreatedAt(ctx context.Context, refType, refUUID string) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at FROM email_verifications
		WHERE ref_type = $1 AND ref_uuid = $2 AND is_deleted = false
		ORDER BY created_at DESC
		LIMIT 1`, refType, refUUID).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest verification: %w", err)
	}
	at = at.UTC()
	return &at, nil
}

// CountSince counts live tokens created for (email, refType, refUUID) at or after since
func (r *EmailVerificationRepository) CountSince(ctx context.Context, email, refType, refUUID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_verifications
		WHERE LOWER(email) = LOWER($1) AND ref_type = $2 AND ref_uuid = $3
		  AND created_at >= $4 AND is_deleted = false`,
		email, refType, refUUID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count verifications: %w", err)
	}
	return n, nil
}

// HasVerified reports whether any token for the target has been consumed successfully
func (r *EmailVerificationRepository) HasVerified(ctx context.Context, refType, refUUID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_verifications
			WHERE ref_type = $1 AND ref_uuid = $2 AND verified_at IS NOT NULL AND is_deleted = false
		)`, refType, refUUID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check verification state: %w", err)
	}
	return exists, nil
}

// InvalidateUnused marks every unused live token for the target as used. Rows are kept.
func (r *EmailVerificationRepository) InvalidateUnused(ctx context.Context, refType, refUUID string, actor models.Actor) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE email_verifications
		SET is_used = true, updated_at = $1, updated_by = $2, updated_by_role = $3, version = version + 1
		WHERE ref_type = $4 AND ref_uuid = $5 AND is_used = false AND is_deleted = false`,
		nowFunc(), actor.UserRef(), actor.RoleRef(), refType, refUUID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate verifications: %w", err)
	}
	return result.RowsAffected()
}

// Create inserts a new token
func (r *EmailVerificationRepository) Create(ctx context.Context, v *models.EmailVerification, actor models.Actor) error {
	createdAt := v.CreatedAt
	v.StampCreate(actor, nowFunc())
	if !createdAt.IsZero() {
		v.CreatedAt, v.UpdatedAt = createdAt.UTC(), createdAt.UTC()
	}
	v.ExpiresAt = v.ExpiresAt.UTC()

	query := `INSERT INTO email_verifications (` + baseInsertColumns + `, ref_type, ref_uuid, email, token, expires_at, is_used)
		VALUES (` + placeholders(1, baseInsertCount+6) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&v.BaseRecord,
		v.RefType, v.RefUUID, v.Email, v.Token, v.ExpiresAt, v.IsUsed,
	)...).Scan(&v.ID)
	if err != nil {
		return mapWriteError("create verification", err)
	}
	return nil
}

// GetByToken retrieves a live token by exact value
func (r *EmailVerificationRepository) GetByToken(ctx context.Context, token string) (*models.EmailVerification, error) {
	v, err := scanVerification(r.db.QueryRowContext(ctx,
		`SELECT `+verificationColumns+` FROM email_verifications WHERE token = $1 AND is_deleted = false`, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}
	return v, nil
}

// MarkVerified consumes the token. It returns ErrNotFound when the token was consumed or
// invalidated concurrently.
func (r *EmailVerificationRepository) MarkVerified(ctx context.Context, v *models.EmailVerification, at time.Time, actor models.Actor) error {
	at = at.UTC()
	v.StampUpdate(actor, at)

	query := `UPDATE email_verifications SET is_used = true, verified_at = $1, ` + baseUpdateSet(2) + `
		WHERE uuid = $5 AND is_used = false AND is_deleted = false`
	args := append([]interface{}{at}, baseUpdateValues(&v.BaseRecord)...)

	result, err := r.db.ExecContext(ctx, query, append(args, v.UUID)...)
	if err != nil {
		return fmt.Errorf("failed to mark verification used: %w", err)
	}
	if err := expectAffected(result); err != nil {
		return err
	}
	v.IsUsed = true
	v.VerifiedAt = &at
	return nil
}

// ListForRef returns all live tokens of a target, newest first
func (r *EmailVerificationRepository) ListForRef(ctx context.Context, refType, refUUID string) ([]*models.EmailVerification, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+verificationColumns+` FROM email_verifications
		WHERE ref_type = $1 AND ref_uuid = $2 AND is_deleted = false
		ORDER BY created_at DESC`, refType, refUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.EmailVerification, 0)
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
