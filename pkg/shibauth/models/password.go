package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// UnusablePassword returns a bcrypt hash of random bytes. No plaintext ever
// hashes to it in practice, so accounts created by the trusted-header flow
// cannot be logged into with a password. The hash is fixed at user creation
// and never rotated: session authentication hashes may be derived from it and
// must stay stable across logins.
func UnusablePassword() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate placeholder password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(raw)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash placeholder password: %w", err)
	}
	return string(hash), nil
}
