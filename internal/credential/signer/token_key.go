package signer

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "consent-ledger/pkg/domain-errors"
)

const (
	tokenKeyInfo = "consent-ledger/token-credential/v1"
	tokenKeySize = 32
)

// TokenKey is the HMAC key for token credentials, derived from the
// configured shared secret so the raw secret never signs anything directly.
type TokenKey struct {
	key []byte
}

// NewTokenKey derives the HMAC key. An empty secret yields an unconfigured key.
func NewTokenKey(secret string) (*TokenKey, error) {
	if secret == "" {
		return &TokenKey{}, nil
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo))
	key := make([]byte, tokenKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return &TokenKey{key: key}, nil
}

// Bytes returns the derived key or a signing error when no secret was configured.
func (k *TokenKey) Bytes() ([]byte, error) {
	if k == nil || len(k.key) == 0 {
		return nil, dErrors.Wrap(ErrTokenSignerUnavailable, dErrors.CodeSigningFailed, "token signer is not configured")
	}
	return k.key, nil
}

func (k *TokenKey) Configured() bool {
	return k != nil && len(k.key) > 0
}
