// outbox_repository.go implements OutboxRepository for durable email delivery intents.
// Rows are enqueued in the same transaction as the state they announce and claimed by the
// relay job with FOR UPDATE SKIP LOCKED so several replicas can drain the queue.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/event-registry/event-registry/internal/db/models"
	"github.com/google/uuid"
)

const outboxColumns = `id, uuid, kind, recipient, subject, body, ref_type, ref_uuid, status, attempts,
	next_attempt_at, last_error, sent_at, created_at, updated_at`

// OutboxRepository handles email_outbox database operations
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *OutboxRepository) WithTx(tx *sql.Tx) *OutboxRepository {
	return &OutboxRepository{db: tx}
}

// Enqueue inserts a pending message due immediately
func (r *OutboxRepository) Enqueue(ctx context.Context, m *models.EmailOutbox) error {
	now := nowFunc()
	if m.UUID == "" {
		m.UUID = uuid.NewString()
	}
	m.Status = models.OutboxStatusPending
	m.CreatedAt, m.UpdatedAt = now, now
	if m.NextAttemptAt.IsZero() {
		m.NextAttemptAt = now
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO email_outbox (uuid, kind, recipient, subject, body, ref_type, ref_uuid, status, attempts,
			next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11)
		RETURNING id`,
		m.UUID, m.Kind, m.Recipient, m.Subject, m.Body, m.RefType, m.RefUUID, m.Status,
		m.NextAttemptAt, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to enqueue email: %w", err)
	}
	return nil
}

// ClaimDue locks up to limit pending messages whose next attempt is due. Must run inside a
// transaction; the locks are held until it ends.
func (r *OutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.EmailOutbox, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+outboxColumns+` FROM email_outbox
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`, models.OutboxStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	defer rows.Close()

	out := make([]*models.EmailOutbox, 0)
	for rows.Next() {
		m := &models.EmailOutbox{}
		err := rows.Scan(&m.ID, &m.UUID, &m.Kind, &m.Recipient, &m.Subject, &m.Body, &m.RefType, &m.RefUUID,
			&m.Status, &m.Attempts, &m.NextAttemptAt, &m.LastError, &m.SentAt, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent records a successful delivery
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_outbox SET status = $1, attempts = attempts + 1, sent_at = $2, last_error = NULL, updated_at = $2
		WHERE id = $3`, models.OutboxStatusSent, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	return nil
}

// MarkRetry records a failed attempt and schedules the next one
func (r *OutboxRepository) MarkRetry(ctx context.Context, id int64, next time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_outbox SET attempts = attempts + 1, next_attempt_at = $1, last_error = $2, updated_at = $3
		WHERE id = $4`, next.UTC(), lastErr, nowFunc(), id)
	if err != nil {
		return fmt.Errorf("failed to schedule email retry: %w", err)
	}
	return nil
}

// MarkFailed records the final failed attempt; the message is not retried again
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_outbox SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
		WHERE id = $4`, models.OutboxStatusFailed, lastErr, nowFunc(), id)
	if err != nil {
		return fmt.Errorf("failed to mark email failed: %w", err)
	}
	return nil
}

// CountPending returns the number of messages awaiting delivery
func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_outbox WHERE status = $1`, models.OutboxStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending emails: %w", err)
	}
	return n, nil
}
