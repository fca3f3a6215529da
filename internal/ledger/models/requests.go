package models

import (
	"strings"
	"time"

	"consent-ledger/pkg/platform/validation"
)

// Credential formats accepted by GrantRequest.
const (
	FormatEmbedded = "embedded"
	FormatToken    = "token"
)

type CreateStudyRequest struct {
	MetadataRef string `json:"metadata_ref" validate:"max=256"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=4000"`
}

func (r *CreateStudyRequest) Normalize() {
	if r == nil {
		return
	}
	r.MetadataRef = strings.TrimSpace(r.MetadataRef)
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

type UpdateStudyRequest struct {
	MetadataRef *string `json:"metadata_ref" validate:"omitempty,max=256"`
	Title       *string `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
}

func (r *UpdateStudyRequest) Normalize() {
	if r == nil {
		return
	}
	for _, f := range []*string{r.MetadataRef, r.Title, r.Description} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

func (r *UpdateStudyRequest) ToUpdate() StudyUpdate {
	return StudyUpdate{MetadataRef: r.MetadataRef, Title: r.Title, Description: r.Description}
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type RequestConsentRequest struct {
	Participant string     `json:"participant" validate:"required,notblank"`
	DocumentRef string     `json:"document_ref" validate:"required,notblank,max=256"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (r *RequestConsentRequest) Normalize() {
	if r == nil {
		return
	}
	r.Participant = strings.TrimSpace(r.Participant)
	r.DocumentRef = strings.TrimSpace(r.DocumentRef)
	if r.ExpiresAt != nil && r.ExpiresAt.IsZero() {
		r.ExpiresAt = nil
	}
}

// GrantRequest is the participant's credential builder: which proof format
// to mint and which extension claims to embed.
type GrantRequest struct {
	Format string         `json:"format" validate:"omitempty,oneof=embedded token"`
	Claims map[string]any `json:"claims"`
}

func (r *GrantRequest) Normalize() {
	if r == nil {
		return
	}
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "" {
		r.Format = FormatEmbedded
	}
}

// Validate bounds the extension claims embedded in the credential.
func (r *GrantRequest) Validate() error {
	if err := validation.CheckCount("claims", len(r.Claims), validation.MaxClaims); err != nil {
		return err
	}
	return validation.CheckKeysLength("claims", r.Claims, validation.MaxClaimKeyLength)
}

type UpdatePermissionRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

// MaxPermissionKeyLength bounds permission keys taken from URLs.
const MaxPermissionKeyLength = 64

// ValidPermissionKey reports whether key is a non-empty token of letters,
// digits, underscores, dots, colons or dashes.
func ValidPermissionKey(key string) bool {
	if key == "" || len(key) > MaxPermissionKeyLength {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == ':', r == '-':
		default:
			return false
		}
	}
	return true
}
