package verifier

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"consent-ledger/internal/credential/issuer"
	"consent-ledger/internal/credential/models"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/identity"
	"consent-ledger/pkg/requestcontext"
)

var participant = identity.MustParse("0x8617E340B3D01FA5F11F306F4090FD50E238070D")

type VerifierSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	signer   *signer.Secp256k1
	tokenKey *signer.TokenKey
	issuer   *issuer.Issuer
	verifier *Verifier
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	s.signer = signer.FromKey(key)
	s.tokenKey, err = signer.NewTokenKey("shared-secret")
	s.Require().NoError(err)
	s.issuer = issuer.New(s.signer, issuer.WithTokenKey(s.tokenKey))

	did, err := s.signer.Identity()
	s.Require().NoError(err)
	s.verifier = New(WithTokenKey(s.tokenKey), WithTrustedIssuers(did))
}

func (s *VerifierSuite) issue() *models.Credential {
	exp := s.now.Add(time.Hour)
	cred, err := s.issuer.Issue(s.ctx, issuer.IssueRequest{
		Subject:   participant,
		ConsentID: 11,
		StudyID:   4,
		Claims:    map[string]any{"modality": "voice", "sessions": 3},
		ExpiresAt: &exp,
	})
	s.Require().NoError(err)
	return cred
}

func (s *VerifierSuite) issueToken() *models.Credential {
	cred, err := s.issuer.IssueToken(s.ctx, issuer.IssueRequest{
		Subject:   participant,
		ConsentID: 11,
		StudyID:   4,
		Claims:    map[string]any{"modality": "voice"},
	})
	s.Require().NoError(err)
	return cred
}

func (s *VerifierSuite) TestEmbeddedRoundTrip() {
	cred := s.issue()
	s.True(s.verifier.Verify(s.ctx, cred))

	s.Run("survives serialization", func() {
		encoded, err := models.Encode(cred)
		s.Require().NoError(err)
		decoded, err := models.Decode(encoded)
		s.Require().NoError(err)
		s.True(s.verifier.Verify(s.ctx, decoded))
	})

	s.Run("issuer DID case does not matter", func() {
		c := s.issue()
		upper := New(WithTrustedIssuers(strings.ToLower(c.Issuer)))
		s.True(upper.Verify(s.ctx, c))
	})
}

func (s *VerifierSuite) TestEmbeddedTamperDetection() {
	tests := []struct {
		name   string
		mutate func(c *models.Credential)
	}{
		{"consent id", func(c *models.Credential) { c.Claims.ConsentID++ }},
		{"study id", func(c *models.Credential) { c.Claims.StudyID++ }},
		{"extension claim", func(c *models.Credential) { c.Claims.Extra["modality"] = "face" }},
		{"added claim", func(c *models.Credential) { c.Claims.Extra["extra"] = true }},
		{"subject", func(c *models.Credential) {
			c.Subject = identity.MustParse("0x52908400098527886E0F7030069857D2E4169EE7").DID()
		}},
		{"expiry removed", func(c *models.Credential) { c.ExpiresAt = nil }},
		{"issued at", func(c *models.Credential) { c.IssuedAt = c.IssuedAt.Add(time.Second) }},
		{"signature byte", func(c *models.Credential) {
			c.Proof.(*models.EmbeddedSignatureProof).Signature[10] ^= 0x01
		}},
		{"truncated signature", func(c *models.Credential) {
			p := c.Proof.(*models.EmbeddedSignatureProof)
			p.Signature = p.Signature[:40]
		}},
		{"wrong proof purpose", func(c *models.Credential) {
			c.Proof.(*models.EmbeddedSignatureProof).ProofPurpose = "authentication"
		}},
		{"foreign verification method", func(c *models.Credential) {
			c.Proof.(*models.EmbeddedSignatureProof).VerificationMethod = participant.DID() + "#controller"
		}},
		{"missing proof", func(c *models.Credential) { c.Proof = nil }},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			cred := s.issue()
			tt.mutate(cred)
			s.False(s.verifier.Verify(s.ctx, cred))
		})
	}

	serialized := []struct {
		name string
		edit func(doc string) string
	}{
		{"sub-second granted at", func(doc string) string {
			return strings.Replace(doc, `"grantedAt":"2026-06-01T10:00:00Z"`, `"grantedAt":"2026-06-01T10:00:00.9Z"`, 1)
		}},
		{"extra top-level member", func(doc string) string {
			return strings.Replace(doc, `{"@context"`, `{"evidence":"unsigned","@context"`, 1)
		}},
	}
	for _, tt := range serialized {
		s.Run(tt.name, func() {
			encoded, err := models.Encode(s.issue())
			s.Require().NoError(err)
			edited := tt.edit(string(encoded))
			s.Require().NotEqual(string(encoded), edited)

			decoded, err := models.Decode([]byte(edited))
			if err != nil {
				s.ErrorIs(err, models.ErrMalformedCredential)
				return
			}
			s.False(s.verifier.Verify(s.ctx, decoded))
		})
	}
}

func (s *VerifierSuite) TestSingleByteChangeInSerializedClaims() {
	encoded, err := models.Encode(s.issue())
	s.Require().NoError(err)

	tampered := strings.Replace(string(encoded), `"modality":"voice"`, `"modality":"voicf"`, 1)
	s.Require().NotEqual(string(encoded), tampered)

	decoded, err := models.Decode([]byte(tampered))
	s.Require().NoError(err)
	s.False(s.verifier.Verify(s.ctx, decoded))
}

func (s *VerifierSuite) TestIssuerTrust() {
	cred := s.issue()

	s.Run("untrusted issuer", func() {
		other := New(WithTrustedIssuers(participant.DID()))
		s.False(other.Verify(s.ctx, cred))
	})

	s.Run("self-consistent credential from another key", func() {
		key, err := crypto.GenerateKey()
		s.Require().NoError(err)
		rogue := issuer.New(signer.FromKey(key))
		forged, err := rogue.Issue(s.ctx, issuer.IssueRequest{Subject: participant, ConsentID: 11, StudyID: 4})
		s.Require().NoError(err)

		s.False(s.verifier.Verify(s.ctx, forged), "issuer not in trusted set")
		s.True(New().Verify(s.ctx, forged), "without a trust set only key consistency is checked")
	})

	s.Run("issuer swapped to a different DID", func() {
		c := s.issue()
		key, _ := crypto.GenerateKey()
		c.Issuer = identity.FromPublicKey(&key.PublicKey).DID()
		s.False(New().Verify(s.ctx, c))
	})
}

func (s *VerifierSuite) TestExpiredCredential() {
	cred := s.issue()
	later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
	s.False(s.verifier.Verify(later, cred))
}

func (s *VerifierSuite) TestTokenRoundTrip() {
	cred := s.issueToken()
	s.True(s.verifier.Verify(s.ctx, cred))

	proof := cred.Proof.(*models.TokenProof)
	claims, ok := s.verifier.VerifyToken(s.ctx, proof.JWT)
	s.Require().True(ok)
	s.Equal(cred.ID, claims.ID)
	s.Equal(cred.Issuer, claims.Issuer)
	s.Equal(participant.DID(), claims.Subject)
	s.EqualValues(11, claims.ConsentID)
	s.EqualValues(4, claims.StudyID)
	s.Equal("voice", claims.Extra["modality"])
	s.NotNil(claims.NotBefore)
	s.NotNil(claims.ExpiresAt)
}

func (s *VerifierSuite) TestTokenFailures() {
	s.Run("credential issuer mismatch", func() {
		cred := s.issueToken()
		cred.Issuer = participant.DID()
		s.False(New(WithTokenKey(s.tokenKey)).Verify(s.ctx, cred))
	})

	s.Run("credential id mismatch", func() {
		cred := s.issueToken()
		cred.ID = "urn:uuid:00000000-0000-0000-0000-000000000000"
		s.False(s.verifier.Verify(s.ctx, cred))
	})

	s.Run("serialized document rewritten around a valid token", func() {
		encoded, err := models.Encode(s.issueToken())
		s.Require().NoError(err)

		tampered := strings.Replace(string(encoded), `"consentId":11`, `"consentId":99`, 1)
		tampered = strings.Replace(tampered, `"modality":"voice"`, `"modality":"face"`, 1)
		s.Require().NotEqual(string(encoded), tampered)

		decoded, err := models.Decode([]byte(tampered))
		s.Require().NoError(err)
		s.False(s.verifier.Verify(s.ctx, decoded))
	})

	documentEdits := []struct {
		name   string
		mutate func(c *models.Credential)
	}{
		{"document consent id", func(c *models.Credential) { c.Claims.ConsentID = 99 }},
		{"document study id", func(c *models.Credential) { c.Claims.StudyID = 99 }},
		{"document subject", func(c *models.Credential) {
			c.Subject = identity.MustParse("0x52908400098527886E0F7030069857D2E4169EE7").DID()
		}},
		{"document granted at", func(c *models.Credential) { c.Claims.GrantedAt = c.Claims.GrantedAt.Add(time.Hour) }},
		{"document issued at", func(c *models.Credential) { c.IssuedAt = c.IssuedAt.Add(-time.Hour) }},
		{"document extension claim", func(c *models.Credential) { c.Claims.Extra["modality"] = "face" }},
		{"document claim added", func(c *models.Credential) { c.Claims.Extra["scope"] = "all" }},
		{"document claims dropped", func(c *models.Credential) { c.Claims.Extra = nil }},
		{"document expiry extended", func(c *models.Credential) {
			exp := s.now.Add(1000 * 24 * time.Hour)
			c.ExpiresAt = &exp
		}},
	}
	for _, tt := range documentEdits {
		s.Run(tt.name, func() {
			cred := s.issueToken()
			tt.mutate(cred)
			s.False(s.verifier.Verify(s.ctx, cred))
		})
	}

	s.Run("numeric extension claims survive serialization", func() {
		cred, err := s.issuer.IssueToken(s.ctx, issuer.IssueRequest{
			Subject:   participant,
			ConsentID: 11,
			StudyID:   4,
			Claims:    map[string]any{"sessions": 3, "ratio": 0.25},
		})
		s.Require().NoError(err)
		encoded, err := models.Encode(cred)
		s.Require().NoError(err)
		decoded, err := models.Decode(encoded)
		s.Require().NoError(err)
		s.True(s.verifier.Verify(s.ctx, decoded))
	})

	s.Run("different secret", func() {
		cred := s.issueToken()
		otherKey, _ := signer.NewTokenKey("another-secret")
		s.False(New(WithTokenKey(otherKey)).Verify(s.ctx, cred))
	})

	s.Run("no secret configured", func() {
		cred := s.issueToken()
		s.False(New().Verify(s.ctx, cred))
	})

	s.Run("tampered payload", func() {
		cred := s.issueToken()
		proof := cred.Proof.(*models.TokenProof)
		parts := strings.Split(proof.JWT, ".")
		parts[1] = parts[1][:len(parts[1])-2] + "AA"
		_, ok := s.verifier.VerifyToken(s.ctx, strings.Join(parts, "."))
		s.False(ok)
	})

	s.Run("expired token", func() {
		cred := s.issueToken()
		proof := cred.Proof.(*models.TokenProof)
		later := requestcontext.WithTime(context.Background(), s.now.Add(400*24*time.Hour))
		_, ok := s.verifier.VerifyToken(later, proof.JWT)
		s.False(ok)
	})

	s.Run("empty token", func() {
		_, ok := s.verifier.VerifyToken(s.ctx, "")
		s.False(ok)
	})
}

func (s *VerifierSuite) TestTokenAlgorithmConfusion() {
	key, err := s.tokenKey.Bytes()
	s.Require().NoError(err)
	did, _ := s.signer.Identity()

	claims := models.TokenClaims{
		ConsentID: 11,
		StudyID:   4,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    did,
			IssuedAt:  jwt.NewNumericDate(s.now),
			ExpiresAt: jwt.NewNumericDate(s.now.Add(time.Hour)),
		},
	}

	s.Run("HS512 with the same key", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(key)
		s.Require().NoError(err)
		_, ok := s.verifier.VerifyToken(s.ctx, token)
		s.False(ok)
	})

	s.Run("unsigned token", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		s.Require().NoError(err)
		_, ok := s.verifier.VerifyToken(s.ctx, token)
		s.False(ok)
	})

	s.Run("HS256 is accepted", func() {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		s.Require().NoError(err)
		_, ok := s.verifier.VerifyToken(s.ctx, token)
		s.True(ok)
	})
}

func (s *VerifierSuite) TestUnknownProofTypeNeverReachesVerifier() {
	encoded, err := models.Encode(s.issue())
	s.Require().NoError(err)

	var doc map[string]any
	s.Require().NoError(json.Unmarshal(encoded, &doc))
	doc["proof"].(map[string]any)["type"] = "Ed25519Signature2020"
	data, err := json.Marshal(doc)
	s.Require().NoError(err)

	_, err = models.Decode(data)
	s.ErrorIs(err, models.ErrUnknownProofType)
}
