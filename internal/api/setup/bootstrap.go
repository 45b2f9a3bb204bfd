package setup

import (
	"context"
	"fmt"

	"github.com/event-registry/event-registry/internal/auth"
	"github.com/event-registry/event-registry/internal/db/models"
)

// SetupTokenPrefix marks setup tokens so they are recognisable in logs and shells.
const SetupTokenPrefix = "evr_setup"

// SettingsStore is the subset of the settings repository used at boot.
type SettingsStore interface {
	Get(ctx context.Context) (*models.SystemSettings, error)
	SetSetupTokenHash(ctx context.Context, hash string) error
}

// AdminCounter counts holders of a system role.
type AdminCounter interface {
	CountByRole(ctx context.Context, role string) (int, error)
}

// EnsureToken generates a setup token when setup is pending, no super admin exists, and no
// token has been issued yet. Only the bcrypt hash is stored. The raw token is returned
// once for the caller to show the operator; an empty string means nothing was generated.
func EnsureToken(ctx context.Context, settings SettingsStore, admins AdminCounter) (string, error) {
	s, err := settings.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to check setup status: %w", err)
	}
	if s.SetupCompleted {
		return "", nil
	}

	n, err := admins.CountByRole(ctx, models.SystemRoleSuperAdmin)
	if err != nil {
		return "", fmt.Errorf("failed to count super admins: %w", err)
	}
	if n > 0 {
		return "", nil
	}

	// Server restarted before setup completed; the operator still holds the first token.
	if s.SetupTokenHash != nil && *s.SetupTokenHash != "" {
		return "", nil
	}

	token, hash, err := auth.GenerateHashedToken(SetupTokenPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to generate setup token: %w", err)
	}
	if err := settings.SetSetupTokenHash(ctx, hash); err != nil {
		return "", fmt.Errorf("failed to store setup token hash: %w", err)
	}
	return token, nil
}
