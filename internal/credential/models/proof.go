package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"consent-ledger/internal/credential/canonical"
)

// ProofType names the two supported proof encodings.
type ProofType string

const (
	ProofTypeEmbedded ProofType = "EcdsaSecp256k1RecoverySignature2020"
	ProofTypeToken    ProofType = "JwtProof2020"

	ProofPurposeAssertion = "assertionMethod"
)

// ErrUnknownProofType is returned when decoding a proof whose type is not
// one of the supported variants.
var ErrUnknownProofType = errors.New("unknown proof type")

// Proof is a closed set: *EmbeddedSignatureProof or *TokenProof. The
// unexported method keeps other packages from adding variants.
type Proof interface {
	Type() ProofType
	sealed()
}

// EmbeddedSignatureProof carries a recoverable secp256k1 signature over the
// canonical digest of the credential document.
type EmbeddedSignatureProof struct {
	Created            time.Time
	VerificationMethod string
	ProofPurpose       string
	Signature          []byte
}

func (*EmbeddedSignatureProof) Type() ProofType { return ProofTypeEmbedded }
func (*EmbeddedSignatureProof) sealed()         {}

type embeddedProofJSON struct {
	Type               ProofType `json:"type"`
	Created            string    `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	ProofValue         string    `json:"proofValue"`
}

func (p *EmbeddedSignatureProof) MarshalJSON() ([]byte, error) {
	return json.Marshal(embeddedProofJSON{
		Type:               ProofTypeEmbedded,
		Created:            canonical.FormatTime(p.Created),
		VerificationMethod: p.VerificationMethod,
		ProofPurpose:       p.ProofPurpose,
		ProofValue:         hexutil.Encode(p.Signature),
	})
}

func (p *EmbeddedSignatureProof) UnmarshalJSON(data []byte) error {
	var wire embeddedProofJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	created, err := canonical.ParseTime(wire.Created)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(wire.ProofValue)
	if err != nil {
		return fmt.Errorf("decode proof value: %w", err)
	}
	*p = EmbeddedSignatureProof{
		Created:            created,
		VerificationMethod: wire.VerificationMethod,
		ProofPurpose:       wire.ProofPurpose,
		Signature:          sig,
	}
	return nil
}

// TokenProof wraps a compact signed token; the token's own signature is the proof.
type TokenProof struct {
	JWT string
}

func (*TokenProof) Type() ProofType { return ProofTypeToken }
func (*TokenProof) sealed()         {}

type tokenProofJSON struct {
	Type ProofType `json:"type"`
	JWT  string    `json:"jwt"`
}

func (p *TokenProof) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenProofJSON{Type: ProofTypeToken, JWT: p.JWT})
}

func (p *TokenProof) UnmarshalJSON(data []byte) error {
	var wire tokenProofJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.JWT = wire.JWT
	return nil
}

// decodeProof resolves the variant once, at decode time.
func decodeProof(raw json.RawMessage) (Proof, error) {
	var head struct {
		Type ProofType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	switch head.Type {
	case ProofTypeEmbedded:
		p := &EmbeddedSignatureProof{}
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode embedded proof: %w", err)
		}
		return p, nil
	case ProofTypeToken:
		p := &TokenProof{}
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode token proof: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProofType, head.Type)
	}
}
