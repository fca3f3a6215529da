package models

import (
	"time"

	"consent-ledger/internal/identity"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
)

// Study is a research project that requests consent from participants.
// ID and Owner never change after creation.
type Study struct {
	ID          id.StudyID
	Owner       identity.Address
	MetadataRef string
	Title       string
	Description string
	CreatedAt   time.Time
	Active      bool
}

// NewStudy creates an active Study with domain invariant checks. The ID is
// assigned by the store.
func NewStudy(owner identity.Address, metadataRef, title, description string, now time.Time) (*Study, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "study owner required")
	}
	if now.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creation time required")
	}
	return &Study{
		Owner:       owner,
		MetadataRef: metadataRef,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		Active:      true,
	}, nil
}

func (s *Study) OwnedBy(caller identity.Address) bool {
	return s.Owner == caller
}

// StudyUpdate lists the owner-mutable descriptive fields. Nil leaves a field unchanged.
type StudyUpdate struct {
	MetadataRef *string
	Title       *string
	Description *string
}

func (u StudyUpdate) IsEmpty() bool {
	return u.MetadataRef == nil && u.Title == nil && u.Description == nil
}

// Apply writes the non-nil fields onto s.
func (u StudyUpdate) Apply(s *Study) {
	if u.MetadataRef != nil {
		s.MetadataRef = *u.MetadataRef
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
}
