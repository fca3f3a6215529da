// Package models defines the credential document, its claims and its proof variants.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"consent-ledger/internal/credential/canonical"
	id "consent-ledger/pkg/domain"
)

const (
	ContextCredentialsV1 = "https://www.w3.org/2018/credentials/v1"

	TypeVerifiableCredential = "VerifiableCredential"
	TypeConsentCredential    = "BiometricConsentCredential"
)

// Subject claim keys fixed by the document layout. Extension claims may not reuse them.
const (
	ClaimSubjectID = "id"
	ClaimConsentID = "consentId"
	ClaimStudyID   = "studyId"
	ClaimGrantedAt = "grantedAt"
)

var reservedClaims = map[string]struct{}{
	ClaimSubjectID: {},
	ClaimConsentID: {},
	ClaimStudyID:   {},
	ClaimGrantedAt: {},
}

// IsReservedClaim reports whether key is part of the fixed subject layout.
func IsReservedClaim(key string) bool {
	_, ok := reservedClaims[key]
	return ok
}

// ErrMalformedCredential is returned when a credential document is structurally invalid.
var ErrMalformedCredential = errors.New("malformed credential")

// Claims is the structured payload attested by a credential.
type Claims struct {
	ConsentID id.ConsentID
	StudyID   id.StudyID
	GrantedAt time.Time
	Extra     map[string]any
}

// Credential is an attestation that a consent was granted. It is built once
// at grant time and never mutated; its serialized form is content-addressed.
type Credential struct {
	Context   []string
	ID        string
	Type      []string
	Issuer    string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt *time.Time
	Claims    Claims
	Proof     Proof
}

// Document returns the credential without its proof, in the shape that is signed.
func (c *Credential) Document() map[string]any {
	subject := make(map[string]any, len(c.Claims.Extra)+4)
	for k, v := range c.Claims.Extra {
		subject[k] = v
	}
	subject[ClaimSubjectID] = c.Subject
	subject[ClaimConsentID] = uint64(c.Claims.ConsentID)
	subject[ClaimStudyID] = uint64(c.Claims.StudyID)
	subject[ClaimGrantedAt] = canonical.FormatTime(c.Claims.GrantedAt)

	doc := map[string]any{
		"@context":          c.Context,
		"id":                c.ID,
		"type":              c.Type,
		"issuer":            c.Issuer,
		"issuanceDate":      canonical.FormatTime(c.IssuedAt),
		"credentialSubject": subject,
	}
	if c.ExpiresAt != nil {
		doc["expirationDate"] = canonical.FormatTime(*c.ExpiresAt)
	}
	return doc
}

// SigningPayload is the canonical encoding of Document.
func (c *Credential) SigningPayload() ([]byte, error) {
	return canonical.Marshal(c.Document())
}

// ExpiredAt reports whether the credential's validity window has closed at now.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

func (c *Credential) MarshalJSON() ([]byte, error) {
	doc := c.Document()
	if c.Proof != nil {
		doc["proof"] = c.Proof
	}
	return json.Marshal(doc)
}

type credentialJSON struct {
	Context           []string        `json:"@context"`
	ID                string          `json:"id"`
	Type              []string        `json:"type"`
	Issuer            string          `json:"issuer"`
	IssuanceDate      string          `json:"issuanceDate"`
	ExpirationDate    *string         `json:"expirationDate"`
	CredentialSubject map[string]any  `json:"credentialSubject"`
	Proof             json.RawMessage `json:"proof"`
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var wire credentialJSON
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if len(wire.Context) == 0 || len(wire.Type) == 0 || wire.ID == "" || wire.Issuer == "" {
		return fmt.Errorf("%w: missing required member", ErrMalformedCredential)
	}

	issuedAt, err := canonical.ParseTime(wire.IssuanceDate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	var expiresAt *time.Time
	if wire.ExpirationDate != nil {
		t, err := canonical.ParseTime(*wire.ExpirationDate)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
		}
		expiresAt = &t
	}

	subject, claims, err := decodeSubject(wire.CredentialSubject)
	if err != nil {
		return err
	}

	var proof Proof
	if len(wire.Proof) > 0 && !bytes.Equal(wire.Proof, []byte("null")) {
		proof, err = decodeProof(wire.Proof)
		if err != nil {
			return err
		}
	}

	*c = Credential{
		Context:   wire.Context,
		ID:        wire.ID,
		Type:      wire.Type,
		Issuer:    wire.Issuer,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Claims:    claims,
		Proof:     proof,
	}
	return nil
}

func decodeSubject(raw map[string]any) (string, Claims, error) {
	if raw == nil {
		return "", Claims{}, fmt.Errorf("%w: missing credentialSubject", ErrMalformedCredential)
	}
	subject, _ := raw[ClaimSubjectID].(string)
	if subject == "" {
		return "", Claims{}, fmt.Errorf("%w: missing subject id", ErrMalformedCredential)
	}
	consentID, err := uintClaim(raw, ClaimConsentID)
	if err != nil {
		return "", Claims{}, err
	}
	studyID, err := uintClaim(raw, ClaimStudyID)
	if err != nil {
		return "", Claims{}, err
	}
	grantedRaw, _ := raw[ClaimGrantedAt].(string)
	grantedAt, err := canonical.ParseTime(grantedRaw)
	if err != nil {
		return "", Claims{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	var extra map[string]any
	for k, v := range raw {
		if IsReservedClaim(k) {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return subject, Claims{
		ConsentID: id.ConsentID(consentID),
		StudyID:   id.StudyID(studyID),
		GrantedAt: grantedAt,
		Extra:     extra,
	}, nil
}

func uintClaim(raw map[string]any, key string) (uint64, error) {
	n, ok := raw[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrMalformedCredential, key)
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", ErrMalformedCredential, key)
	}
	return v, nil
}

// Encode returns the canonical serialization of a credential, proof included.
// This is the byte form stored behind a consent's credential reference.
func Encode(c *Credential) ([]byte, error) {
	return canonical.Marshal(c)
}

// Decode parses a credential document and resolves its proof variant.
func Decode(data []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
