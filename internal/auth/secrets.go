// Package auth provides authentication primitives: password hashing, opaque random tokens,
// session JWTs, identity resolution, and the authorization policy.
// See internal/middleware/auth.go for the request-time logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TokenBytes is the length of the random part of opaque tokens in bytes
	TokenBytes = 32

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	// MinPasswordLength is enforced on registration and setup
	MinPasswordLength = 8
)

var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(storedHash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// GenerateToken returns a URL-safe random token. A non-empty prefix is joined with "_".
func GenerateToken(prefix string) (string, error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(randomBytes)
	if prefix != "" {
		token = prefix + "_" + token
	}
	return token, nil
}

// GenerateHashedToken returns a fresh token and its bcrypt hash. Only the hash is stored.
func GenerateHashedToken(prefix string) (token, hash string, err error) {
	token, err = GenerateToken(prefix)
	if err != nil {
		return "", "", err
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(token), BcryptCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash token: %w", err)
	}
	return token, string(hashBytes), nil
}

// ExtractAuthToken extracts the credential from an Authorization header of the form
// "<scheme> <token>". The scheme comparison is case-insensitive.
func ExtractAuthToken(header, scheme string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], scheme) {
		return "", fmt.Errorf("authorization header must start with '%s '", scheme)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("token is empty after %s prefix", scheme)
	}
	return token, nil
}
