// Package signer holds the process-wide credential signing material: a
// secp256k1 key for embedded proofs and a shared secret for token proofs.
// Both are read-only after construction and safe for concurrent use.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"consent-ledger/internal/identity"
	dErrors "consent-ledger/pkg/domain-errors"
)

var (
	ErrSignerUnavailable      = errors.New("signing key not configured")
	ErrTokenSignerUnavailable = errors.New("token secret not configured")
	ErrSigningTimeout         = errors.New("signing timed out")
)

// recoveryOffset shifts the recovery id into the {27, 28} range used by
// personal-message signatures.
const recoveryOffset = 27

// Signer produces recoverable signatures over 32-byte digests.
type Signer interface {
	Sign(ctx context.Context, digest []byte) ([]byte, error)
	Identity() (string, error)
}

// Secp256k1 signs with a local private key. The zero value (or one built
// from an empty key) is unconfigured and fails every call with ErrSignerUnavailable.
type Secp256k1 struct {
	key     *ecdsa.PrivateKey
	address identity.Address
}

// New parses a hex-encoded private key. An empty string yields an
// unconfigured signer so the service can still start and serve reads.
func New(privateKeyHex string) (*Secp256k1, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return &Secp256k1{}, nil
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return FromKey(key), nil
}

func FromKey(key *ecdsa.PrivateKey) *Secp256k1 {
	return &Secp256k1{key: key, address: identity.FromPublicKey(&key.PublicKey)}
}

func (s *Secp256k1) Sign(_ context.Context, digest []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, unavailable()
	}
	if len(digest) != crypto.DigestLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "digest must be 32 bytes")
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSigningFailed, "failed to sign credential digest")
	}
	sig[crypto.RecoveryIDOffset] += recoveryOffset
	return sig, nil
}

// Identity returns the signer's DID.
func (s *Secp256k1) Identity() (string, error) {
	if s == nil || s.key == nil {
		return "", unavailable()
	}
	return s.address.DID(), nil
}

// Address returns the signer's address and whether a key is configured.
func (s *Secp256k1) Address() (identity.Address, bool) {
	if s == nil || s.key == nil {
		return identity.Address{}, false
	}
	return s.address, true
}

// Recover returns the address that produced sig over digest. Recovery ids
// in either {0, 1} or {27, 28} are accepted.
func Recover(digest, sig []byte) (identity.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return identity.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= recoveryOffset {
		normalized[crypto.RecoveryIDOffset] -= recoveryOffset
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return identity.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return identity.FromPublicKey(pub), nil
}

func unavailable() error {
	return dErrors.Wrap(ErrSignerUnavailable, dErrors.CodeSigningFailed, "credential signer is not configured")
}
