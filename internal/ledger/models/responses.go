package models

import (
	"time"
)

type StudyResponse struct {
	ID          uint64    `json:"id"`
	Owner       string    `json:"owner"`
	MetadataRef string    `json:"metadata_ref"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"active"`
}

func NewStudyResponse(s *Study) StudyResponse {
	return StudyResponse{
		ID:          uint64(s.ID),
		Owner:       s.Owner.String(),
		MetadataRef: s.MetadataRef,
		Title:       s.Title,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		Active:      s.Active,
	}
}

type StudyListResponse struct {
	Studies []StudyResponse `json:"studies"`
}

// ConsentResponse reports both the stored status and the status observed at
// the time of the request.
type ConsentResponse struct {
	ID            uint64     `json:"id"`
	StudyID       uint64     `json:"study_id"`
	Participant   string     `json:"participant"`
	DocumentRef   string     `json:"document_ref"`
	CredentialRef string     `json:"credential_ref,omitempty"`
	Status        Status     `json:"status"`
	StoredStatus  Status     `json:"stored_status"`
	RequestedAt   time.Time  `json:"requested_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Supersedes    uint64     `json:"supersedes,omitempty"`
}

func NewConsentResponse(c *Consent, now time.Time) ConsentResponse {
	return ConsentResponse{
		ID:            uint64(c.ID),
		StudyID:       uint64(c.StudyID),
		Participant:   c.Participant.String(),
		DocumentRef:   c.DocumentRef,
		CredentialRef: c.CredentialRef,
		Status:        c.StatusAt(now),
		StoredStatus:  c.Status,
		RequestedAt:   c.RequestedAt,
		RespondedAt:   c.RespondedAt,
		ExpiresAt:     c.ExpiresAt,
		Supersedes:    uint64(c.Supersedes),
	}
}

type ConsentListResponse struct {
	Consents []ConsentResponse `json:"consents"`
}

func NewConsentListResponse(consents []*Consent, now time.Time) ConsentListResponse {
	resp := ConsentListResponse{Consents: make([]ConsentResponse, 0, len(consents))}
	for _, c := range consents {
		resp.Consents = append(resp.Consents, NewConsentResponse(c, now))
	}
	return resp
}

type StatusResponse struct {
	StudyID     uint64 `json:"study_id"`
	Participant string `json:"participant"`
	ConsentID   uint64 `json:"consent_id,omitempty"`
	Status      Status `json:"status"`
}

func NewStatusResponse(s *ConsentStatus) StatusResponse {
	return StatusResponse{
		StudyID:     uint64(s.StudyID),
		Participant: s.Participant.String(),
		ConsentID:   uint64(s.ConsentID),
		Status:      s.Status,
	}
}

type PermissionResponse struct {
	ConsentID uint64 `json:"consent_id"`
	Key       string `json:"key"`
	Granted   bool   `json:"granted"`
}

type PermissionListResponse struct {
	ConsentID   uint64               `json:"consent_id"`
	Permissions []PermissionResponse `json:"permissions"`
}

func NewPermissionListResponse(consentID uint64, perms []Permission) PermissionListResponse {
	resp := PermissionListResponse{ConsentID: consentID, Permissions: make([]PermissionResponse, 0, len(perms))}
	for _, p := range perms {
		resp.Permissions = append(resp.Permissions, PermissionResponse{ConsentID: consentID, Key: p.Key, Granted: p.Granted})
	}
	return resp
}
