// Package verifier checks credentials without consulting the ledger.
// Every failure is reported as false; an invalid credential is an expected
// outcome, not an error.
package verifier

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"consent-ledger/internal/credential/canonical"
	"consent-ledger/internal/credential/models"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/identity"
	"consent-ledger/pkg/requestcontext"
)

// Verifier holds the trust configuration. It is safe for concurrent use.
type Verifier struct {
	tokenKey *signer.TokenKey
	trusted  []string
}

type Option func(*Verifier)

// WithTokenKey enables verification of token proofs.
func WithTokenKey(key *signer.TokenKey) Option {
	return func(v *Verifier) {
		v.tokenKey = key
	}
}

// WithTrustedIssuers restricts accepted issuers. With no trusted issuers any
// issuer whose key produced the proof is accepted.
func WithTrustedIssuers(issuers ...string) Option {
	return func(v *Verifier) {
		for _, iss := range issuers {
			if iss != "" {
				v.trusted = append(v.trusted, iss)
			}
		}
	}
}

func New(opts ...Option) *Verifier {
	v := &Verifier{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify dispatches on the proof variant. The time of verification comes
// from the context clock.
func (v *Verifier) Verify(ctx context.Context, cred *models.Credential) bool {
	if cred == nil || cred.Proof == nil {
		return false
	}
	if !v.isTrusted(cred.Issuer) {
		return false
	}
	if cred.ExpiredAt(requestcontext.Now(ctx)) {
		return false
	}

	switch proof := cred.Proof.(type) {
	case *models.EmbeddedSignatureProof:
		return v.verifyEmbedded(cred, proof)
	case *models.TokenProof:
		return v.verifyTokenProof(ctx, cred, proof)
	default:
		return false
	}
}

func (v *Verifier) verifyEmbedded(cred *models.Credential, proof *models.EmbeddedSignatureProof) bool {
	if proof.ProofPurpose != models.ProofPurposeAssertion {
		return false
	}
	if !identity.SameDID(identity.ControllerOf(proof.VerificationMethod), cred.Issuer) {
		return false
	}
	declared, err := identity.ParseDID(cred.Issuer)
	if err != nil {
		return false
	}

	payload, err := cred.SigningPayload()
	if err != nil {
		return false
	}
	recovered, err := signer.Recover(canonical.Digest(payload), proof.Signature)
	if err != nil {
		return false
	}
	return recovered == declared
}

func (v *Verifier) verifyTokenProof(ctx context.Context, cred *models.Credential, proof *models.TokenProof) bool {
	claims, ok := v.VerifyToken(ctx, proof.JWT)
	if !ok {
		return false
	}
	return sameIssuer(claims.Issuer, cred.Issuer) &&
		claims.ID == cred.ID &&
		documentMatchesToken(cred, claims)
}

// documentMatchesToken requires every signed field of the wrapping document
// to equal its counterpart in the token payload.
func documentMatchesToken(cred *models.Credential, claims *models.TokenClaims) bool {
	if !sameIssuer(claims.Subject, cred.Subject) {
		return false
	}
	if claims.ConsentID != cred.Claims.ConsentID || claims.StudyID != cred.Claims.StudyID {
		return false
	}
	if claims.GrantedAt != canonical.FormatTime(cred.Claims.GrantedAt) {
		return false
	}
	if claims.IssuedAt == nil || !claims.IssuedAt.Equal(cred.IssuedAt) {
		return false
	}
	if cred.ExpiresAt != nil && (claims.ExpiresAt == nil || !claims.ExpiresAt.Equal(*cred.ExpiresAt)) {
		return false
	}
	return sameClaims(claims.Extra, cred.Claims.Extra)
}

func sameClaims(a, b map[string]any) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	ca, err := canonical.Marshal(a)
	if err != nil {
		return false
	}
	cb, err := canonical.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// VerifyToken checks a bare token credential and returns its claims.
// Only HS256 is accepted.
func (v *Verifier) VerifyToken(ctx context.Context, token string) (*models.TokenClaims, bool) {
	if token == "" {
		return nil, false
	}
	key, err := v.tokenKey.Bytes()
	if err != nil {
		return nil, false
	}

	claims := new(models.TokenClaims)
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if !v.isTrusted(claims.Issuer) {
		return nil, false
	}
	return claims, true
}

func (v *Verifier) isTrusted(issuer string) bool {
	if issuer == "" {
		return false
	}
	if len(v.trusted) == 0 {
		return true
	}
	return slices.ContainsFunc(v.trusted, func(t string) bool {
		return sameIssuer(t, issuer)
	})
}

// sameIssuer compares DIDs by address when both parse, else by exact string.
func sameIssuer(a, b string) bool {
	if identity.SameDID(a, b) {
		return true
	}
	return a == b
}
