// Package models - user.go defines the User account model. Local accounts carry a bcrypt
// password hash; OIDC-only accounts carry an issuer subject and no password.
package models

import "time"

// Auth providers recorded on User.AuthProvider.
const (
	AuthProviderLocal = "local"
	AuthProviderOIDC  = "oidc"
)

// User represents an account in the system
type User struct {
	BaseRecord
	Email        string     `json:"email" db:"email"`
	PasswordHash *string    `json:"-" db:"password_hash"`
	AuthProvider string     `json:"auth_provider" db:"auth_provider"`
	OIDCSubject  *string    `json:"-" db:"oidc_subject"`
	DisplayName  string     `json:"display_name" db:"display_name"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
