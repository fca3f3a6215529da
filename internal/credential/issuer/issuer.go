// Package issuer builds consent credentials and attaches their proofs.
package issuer

import (
	"context"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"consent-ledger/internal/credential/canonical"
	"consent-ledger/internal/credential/models"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/identity"
	"consent-ledger/internal/platform/tracer"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/requestcontext"
)

const (
	credentialIDPrefix = "urn:uuid:"
	defaultTokenTTL    = 365 * 24 * time.Hour
)

// IssueRequest carries everything a credential attests to.
type IssueRequest struct {
	Subject   identity.Address
	ConsentID id.ConsentID
	StudyID   id.StudyID
	GrantedAt time.Time // zero means issuance time
	Claims    map[string]any
	ExpiresAt *time.Time
}

// Issuer mints embedded-proof credentials with the asymmetric signer and
// token credentials with the shared-secret key.
type Issuer struct {
	signer      signer.Signer
	tokenKey    *signer.TokenKey
	tokenIssuer string
	tokenTTL    time.Duration
	tracer      tracer.Tracer
}

type Option func(*Issuer)

// WithTokenKey enables IssueToken.
func WithTokenKey(key *signer.TokenKey) Option {
	return func(i *Issuer) {
		i.tokenKey = key
	}
}

// WithTokenIssuer sets the issuer named in token credentials. When unset the
// asymmetric signer's DID is used.
func WithTokenIssuer(issuer string) Option {
	return func(i *Issuer) {
		i.tokenIssuer = issuer
	}
}

// WithTokenTTL bounds tokens for consents that have no expiry of their own.
func WithTokenTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.tokenTTL = ttl
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(i *Issuer) {
		i.tracer = t
	}
}

func New(s signer.Signer, opts ...Option) *Issuer {
	i := &Issuer{
		signer:   s,
		tokenTTL: defaultTokenTTL,
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue builds a credential and signs the digest of its canonical document.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (cred *models.Credential, err error) {
	ctx, span := i.tracer.Start(ctx, tracer.SpanCredentialIssue,
		tracer.Uint64(tracer.AttrConsentID, uint64(req.ConsentID)),
		tracer.String(tracer.AttrProofType, string(models.ProofTypeEmbedded)),
	)
	defer func() { span.End(err) }()

	issuerDID, err := i.signer.Identity()
	if err != nil {
		return nil, err
	}
	cred, err = build(ctx, issuerDID, req)
	if err != nil {
		return nil, err
	}

	payload, err := cred.SigningPayload()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential claims cannot be serialized")
	}
	sig, err := i.signer.Sign(ctx, canonical.Digest(payload))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSigningFailed, "failed to sign credential")
	}

	cred.Proof = &models.EmbeddedSignatureProof{
		Created:            cred.IssuedAt,
		VerificationMethod: identity.VerificationMethod(issuerDID),
		ProofPurpose:       models.ProofPurposeAssertion,
		Signature:          sig,
	}
	return cred, nil
}

// IssueToken builds the same credential but proves it with an HS256 token
// whose payload repeats the claims plus iat, nbf and exp.
func (i *Issuer) IssueToken(ctx context.Context, req IssueRequest) (cred *models.Credential, err error) {
	_, span := i.tracer.Start(ctx, tracer.SpanCredentialIssueJWT,
		tracer.Uint64(tracer.AttrConsentID, uint64(req.ConsentID)),
		tracer.String(tracer.AttrProofType, string(models.ProofTypeToken)),
	)
	defer func() { span.End(err) }()

	key, err := i.tokenKey.Bytes()
	if err != nil {
		return nil, err
	}
	issuerName := i.tokenIssuer
	if issuerName == "" {
		if issuerName, err = i.signer.Identity(); err != nil {
			return nil, dErrors.Wrap(signer.ErrTokenSignerUnavailable, dErrors.CodeSigningFailed, "token issuer identity is not configured")
		}
	}

	cred, err = build(ctx, issuerName, req)
	if err != nil {
		return nil, err
	}
	if _, err := cred.SigningPayload(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential claims cannot be serialized")
	}

	exp := cred.IssuedAt.Add(i.tokenTTL)
	if cred.ExpiresAt != nil {
		exp = *cred.ExpiresAt
	}
	claims := models.TokenClaims{
		ConsentID: cred.Claims.ConsentID,
		StudyID:   cred.Claims.StudyID,
		GrantedAt: canonical.FormatTime(cred.Claims.GrantedAt),
		Extra:     cred.Claims.Extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cred.Issuer,
			Subject:   cred.Subject,
			ID:        cred.ID,
			IssuedAt:  jwt.NewNumericDate(cred.IssuedAt),
			NotBefore: jwt.NewNumericDate(cred.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSigningFailed, "failed to sign credential token")
	}

	cred.Proof = &models.TokenProof{JWT: token}
	return cred, nil
}

func build(ctx context.Context, issuerID string, req IssueRequest) (*models.Credential, error) {
	if req.Subject.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential subject is required")
	}
	if req.ConsentID.IsNil() || req.StudyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent and study ids are required")
	}
	for k := range req.Claims {
		if models.IsReservedClaim(k) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "claim key is reserved: "+k)
		}
	}

	credID, err := uuid.NewRandom()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate credential id")
	}

	now := canonical.Truncate(requestcontext.Now(ctx))
	grantedAt := now
	if !req.GrantedAt.IsZero() {
		grantedAt = canonical.Truncate(req.GrantedAt)
	}
	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		t := canonical.Truncate(*req.ExpiresAt)
		expiresAt = &t
	}
	var extra map[string]any
	if len(req.Claims) > 0 {
		extra = maps.Clone(req.Claims)
	}

	return &models.Credential{
		Context:   []string{models.ContextCredentialsV1},
		ID:        credentialIDPrefix + credID.String(),
		Type:      []string{models.TypeVerifiableCredential, models.TypeConsentCredential},
		Issuer:    issuerID,
		Subject:   req.Subject.DID(),
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Claims: models.Claims{
			ConsentID: req.ConsentID,
			StudyID:   req.StudyID,
			GrantedAt: grantedAt,
			Extra:     extra,
		},
	}, nil
}
