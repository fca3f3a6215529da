// Package secrets generates and checks shared secrets such as TOKEN_SECRET.
package secrets

import (
	"crypto/rand"
	"encoding/hex"

	dErrors "consent-ledger/pkg/domain-errors"
)

const (
	// Size is the number of random bytes in a generated secret.
	Size = 32
	// MinLength is the shortest secret CheckStrength accepts.
	MinLength = 16
)

// Generate returns Size random bytes, hex encoded.
func Generate() (string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return hex.EncodeToString(buf), nil
}

// CheckStrength rejects secrets too short to key an HMAC safely.
func CheckStrength(secret string) error {
	if len(secret) < MinLength {
		return dErrors.New(dErrors.CodeValidation, "secret must be at least 16 characters")
	}
	return nil
}
