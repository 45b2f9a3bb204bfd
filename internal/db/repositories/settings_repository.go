// settings_repository.go implements SettingsRepository over the singleton system_settings row
// that drives the first-run setup flow.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
)

// SettingsRepository handles the system_settings row
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SettingsRepository) WithTx(tx *sql.Tx) *SettingsRepository {
	return &SettingsRepository{db: tx}
}

const settingsQuery = `SELECT setup_completed, setup_token_hash, setup_completed_at FROM system_settings WHERE id = 1`

// Get loads the settings row. A missing row reads as a fresh install.
func (r *SettingsRepository) Get(ctx context.Context) (*models.SystemSettings, error) {
	return r.get(ctx, settingsQuery)
}

// GetForUpdate loads the settings row and locks it until the surrounding transaction ends.
func (r *SettingsRepository) GetForUpdate(ctx context.Context) (*models.SystemSettings, error) {
	return r.get(ctx, settingsQuery+` FOR UPDATE`)
}

func (r *SettingsRepository) get(ctx context.Context, query string) (*models.SystemSettings, error) {
	s := &models.SystemSettings{}
	err := r.db.QueryRowContext(ctx, query).Scan(&s.SetupCompleted, &s.SetupTokenHash, &s.SetupCompletedAt)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load system settings: %w", err)
	}
	return s, nil
}

// IsSetupCompleted checks if the initial setup has been completed
func (r *SettingsRepository) IsSetupCompleted(ctx context.Context) (bool, error) {
	s, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return s.SetupCompleted, nil
}

// SetSetupTokenHash stores the bcrypt hash of the setup token
func (r *SettingsRepository) SetSetupTokenHash(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE system_settings SET setup_token_hash = $1 WHERE id = 1`, hash)
	if err != nil {
		return fmt.Errorf("failed to store setup token: %w", err)
	}
	return nil
}

// SetSetupCompleted marks initial setup as completed and clears the setup token
func (r *SettingsRepository) SetSetupCompleted(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE system_settings SET
			setup_completed = true,
			setup_token_hash = NULL,
			setup_completed_at = $1
		WHERE id = 1`, nowFunc())
	if err != nil {
		return fmt.Errorf("failed to complete setup: %w", err)
	}
	return nil
}
