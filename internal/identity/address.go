// Package identity models principals as public-key-derived addresses and
// their decentralized identifier (DID) forms.
package identity

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	dErrors "consent-ledger/pkg/domain-errors"
)

const (
	didPrefix          = "did:ethr:"
	verificationMethod = "#controller"
)

// Address is a 20-byte identity derived from a secp256k1 public key.
// Comparison is byte equality, so two hex renderings that differ only in
// letter case identify the same principal.
type Address common.Address

// Parse accepts a hex address in any letter case, with or without 0x.
// The zero address is rejected because no key derives to it in practice.
func Parse(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address format")
	}
	addr := Address(common.HexToAddress(s))
	if addr.IsZero() {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be zero")
	}
	return addr, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Address {
	addr, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromPublicKey derives the address of a secp256k1 public key.
func FromPublicKey(pub *ecdsa.PublicKey) Address {
	return Address(crypto.PubkeyToAddress(*pub))
}

// String returns the canonical lowercase hex form.
func (a Address) String() string {
	return strings.ToLower(common.Address(a).Hex())
}

// Checksum returns the EIP-55 mixed-case form.
func (a Address) Checksum() string {
	return common.Address(a).Hex()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// DID returns did:ethr:<checksummed address>.
func (a Address) DID() string {
	return didPrefix + a.Checksum()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseDID extracts the address from a did:ethr DID. A trailing fragment such
// as a verification method suffix is ignored.
func ParseDID(did string) (Address, error) {
	if len(did) < len(didPrefix) || !strings.EqualFold(did[:len(didPrefix)], didPrefix) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "unsupported DID method")
	}
	rest := did[len(didPrefix):]
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	return Parse(rest)
}

// SameDID compares two DIDs case-insensitively over their canonical form.
func SameDID(a, b string) bool {
	addrA, errA := ParseDID(a)
	addrB, errB := ParseDID(b)
	if errA != nil || errB != nil {
		return false
	}
	return addrA == addrB
}

// VerificationMethod returns the key reference used in embedded proofs.
func VerificationMethod(did string) string {
	return did + verificationMethod
}

// ControllerOf returns the DID part of a verification method reference.
func ControllerOf(method string) string {
	if i := strings.IndexByte(method, '#'); i >= 0 {
		return method[:i]
	}
	return method
}
