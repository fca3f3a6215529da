package models

import (
	"github.com/golang-jwt/jwt/v5"

	id "consent-ledger/pkg/domain"
)

// TokenClaims is the payload of a token credential. Registered claims carry
// iss (issuer DID), sub (participant DID), jti (credential id), iat, nbf and exp.
type TokenClaims struct {
	ConsentID id.ConsentID   `json:"consentId"`
	StudyID   id.StudyID     `json:"studyId"`
	GrantedAt string         `json:"grantedAt"`
	Extra     map[string]any `json:"claims,omitempty"`
	jwt.RegisteredClaims
}
