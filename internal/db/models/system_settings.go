// Package models - system_settings.go defines the singleton row that tracks first-run setup.
package models

import "time"

// SystemSettings tracks whether the bootstrap super admin has been created.
type SystemSettings struct {
	SetupCompleted   bool
	SetupTokenHash   *string
	SetupCompletedAt *time.Time
}

// SetupStatus is the public view of setup progress.
type SetupStatus struct {
	SetupCompleted bool `json:"setup_completed"`
	SetupRequired  bool `json:"setup_required"`
	AdminExists    bool `json:"admin_configured"`
}
