// Package checksum handles SHA-256 digests attached to file records. Files live in external
// storage, so the registry never hashes bytes itself; it only normalizes the digest the
// client reports.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSHA256 is returned for a digest that is not 64 hex characters.
var ErrInvalidSHA256 = errors.New("sha256 must be 64 hex characters")

// NormalizeSHA256 trims and lower-cases a hex digest and checks its length.
func NormalizeSHA256(sum string) (string, error) {
	sum = strings.ToLower(strings.TrimSpace(sum))
	b, err := hex.DecodeString(sum)
	if err != nil || len(b) != sha256.Size {
		return "", ErrInvalidSHA256
	}
	return sum, nil
}
