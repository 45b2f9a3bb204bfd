// Package repositories implements the data access layer (repository pattern) for the event registry.
// Each repository type encapsulates all database queries for a domain entity and accepts a DBTX so
// services can compose several repositories inside one transaction.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-registry/event-registry/internal/db/models"
)

const userColumns = baseColumns + `, email, password_hash, auth_provider, oidc_subject, display_name, last_login_at`

// UserRepository handles user database operations
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(scanFields(&u.BaseRecord,
		&u.Email, &u.PasswordHash, &u.AuthProvider, &u.OIDCSubject, &u.DisplayName, &u.LastLoginAt,
	)...)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, args ...interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Create inserts a new user stamped by actor
func (r *UserRepository) Create(ctx context.Context, u *models.User, actor models.Actor) error {
	u.StampCreate(actor, nowFunc())
	if u.AuthProvider == "" {
		u.AuthProvider = models.AuthProviderLocal
	}

	query := `INSERT INTO users (` + baseInsertColumns + `, email, password_hash, auth_provider, oidc_subject, display_name)
		VALUES (` + placeholders(1, baseInsertCount+5) + `) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, insertValues(&u.BaseRecord,
		u.Email, u.PasswordHash, u.AuthProvider, u.OIDCSubject, u.DisplayName,
	)...).Scan(&u.ID)
	if err != nil {
		return mapWriteError("create user", err)
	}
	return nil
}

// GetByUUID retrieves a user by UUID. Soft-deleted users are only returned when includeDeleted is set.
func (r *UserRepository) GetByUUID(ctx context.Context, uuid string, includeDeleted bool) (*models.User, error) {
	return r.getOne(ctx, `uuid = $1 AND `+deletedFilter("", includeDeleted), uuid)
}

// GetByEmail retrieves an active-or-inactive, non-deleted user by email (case-insensitive)
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `LOWER(email) = LOWER($1) AND is_deleted = false`, email)
}

// GetByOIDCSubject retrieves a user by OIDC subject identifier
func (r *UserRepository) GetByOIDCSubject(ctx context.Context, subject string) (*models.User, error) {
	return r.getOne(ctx, `oidc_subject = $1 AND is_deleted = false`, subject)
}

// Update writes profile fields and the active flag
func (r *UserRepository) Update(ctx context.Context, u *models.User, actor models.Actor) error {
	u.StampUpdate(actor, nowFunc())

	query := `UPDATE users SET email = $1, display_name = $2, is_active = $3, ` + baseUpdateSet(4) + `
		WHERE uuid = $7 AND is_deleted = false`

	args := append([]interface{}{u.Email, u.DisplayName, u.IsActive}, baseUpdateValues(&u.BaseRecord)...)
	args = append(args, u.UUID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError("update user", err)
	}
	return expectAffected(result)
}

// UpdatePassword replaces the password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, uuid, hash string, actor models.Actor) error {
	now := nowFunc()
	query := `UPDATE users SET password_hash = $1, updated_at = $2, updated_by = $3, updated_by_role = $4,
		version = version + 1 WHERE uuid = $5 AND is_deleted = false`

	result, err := r.db.ExecContext(ctx, query, hash, now, actor.UserRef(), actor.RoleRef(), uuid)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectAffected(result)
}

// UpdateLastLogin stamps the last successful login time
func (r *UserRepository) UpdateLastLogin(ctx context.Context, uuid string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE uuid = $2`, nowFunc(), uuid)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Delete soft-deletes a user
func (r *UserRepository) Delete(ctx context.Context, uuid string, actor models.Actor) error {
	return softDelete(ctx, r.db, "users", uuid, actor)
}

// List retrieves a paginated list of users, optionally filtered by an email/name search term
func (r *UserRepository) List(ctx context.Context, opts ListOptions, search string) ([]*models.User, int, error) {
	where := newWhere("", opts.IncludeDeleted)
	if search != "" {
		where.add(`(email ILIKE ? OR display_name ILIKE ?)`, "%"+search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+where.String(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, where.String(), where.next(), where.next()+1)
	rows, err := r.db.QueryContext(ctx, query, append(where.args, opts.limit(), opts.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// Count returns the number of non-deleted users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_deleted = false`).Scan(&total)
	return total, err
}

// GetOrCreateByOIDC finds the user for an OIDC subject, linking an existing account with the
// same email, or creates an OIDC-only account without a password.
func (r *UserRepository) GetOrCreateByOIDC(ctx context.Context, subject, email, name string) (*models.User, error) {
	user, err := r.GetByOIDCSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if user.Email != email || (name != "" && user.DisplayName != name) {
			user.Email = email
			if name != "" {
				user.DisplayName = name
			}
			if err := r.Update(ctx, user, models.SystemActor()); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	user, err = r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		_, err := r.db.ExecContext(ctx, `UPDATE users SET oidc_subject = $1 WHERE uuid = $2`, subject, user.UUID)
		if err != nil {
			return nil, fmt.Errorf("failed to link oidc subject: %w", err)
		}
		user.OIDCSubject = &subject
		return user, nil
	}

	user = &models.User{
		Email:        email,
		DisplayName:  name,
		AuthProvider: models.AuthProviderOIDC,
		OIDCSubject:  &subject,
	}
	if err := r.Create(ctx, user, models.SystemActor()); err != nil {
		return nil, err
	}
	return user, nil
}
