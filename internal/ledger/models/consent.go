package models

import (
	"time"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/expiry"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
)

// Status is the lifecycle state of a consent.
//
// Only Pending, Granted and Revoked are ever stored. None is the answer for a
// (study, participant) pair with no record, and Expired is derived at read
// time from a stored Granted plus a passed deadline.
type Status string

const (
	StatusNone    Status = "none"
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// IsStored reports whether s may appear in persisted state.
func (s Status) IsStored() bool {
	return s == StatusPending || s == StatusGranted || s == StatusRevoked
}

func (s Status) String() string { return string(s) }

// Consent is a participant's response record to one study's request.
//
// CredentialRef is set exactly when the consent has reached Granted, and is
// retained after revocation. Supersedes names the consent that the
// (study, participant) index pointed at before this one was requested.
type Consent struct {
	ID            id.ConsentID
	Participant   identity.Address
	StudyID       id.StudyID
	DocumentRef   string
	CredentialRef string
	Status        Status
	RequestedAt   time.Time
	RespondedAt   *time.Time
	ExpiresAt     *time.Time
	Supersedes    id.ConsentID
}

// NewConsent creates a pending consent. The ID is assigned by the store.
func NewConsent(studyID id.StudyID, participant identity.Address, documentRef string, expiresAt *time.Time, supersedes id.ConsentID, now time.Time) (*Consent, error) {
	if studyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "study ID required")
	}
	if participant.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "participant required")
	}
	if now.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request time required")
	}
	if expiresAt != nil && expiresAt.IsZero() {
		expiresAt = nil
	}
	return &Consent{
		Participant: participant,
		StudyID:     studyID,
		DocumentRef: documentRef,
		Status:      StatusPending,
		RequestedAt: now,
		ExpiresAt:   expiresAt,
		Supersedes:  supersedes,
	}, nil
}

// StatusAt reports the status observed at now without changing stored state.
func (c *Consent) StatusAt(now time.Time) Status {
	if c.Status == StatusGranted && expiry.IsLapsed(now, c.ExpiresAt) {
		return StatusExpired
	}
	return c.Status
}

func (c *Consent) IsParticipant(caller identity.Address) bool {
	return c.Participant == caller
}

// CanGrant checks the stored state and request deadline for a grant at now.
func (c *Consent) CanGrant(now time.Time) error {
	if c.Status != StatusPending {
		return WrongState(c.ID, c.Status, StatusPending)
	}
	if !expiry.CanGrant(now, c.ExpiresAt) {
		return ConsentRequestExpired(c.ID)
	}
	return nil
}

// Grant moves a pending consent to Granted with its credential reference.
func (c *Consent) Grant(credentialRef string, now time.Time) error {
	if err := c.CanGrant(now); err != nil {
		return err
	}
	if credentialRef == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential reference required to grant")
	}
	c.Status = StatusGranted
	c.CredentialRef = credentialRef
	c.RespondedAt = &now
	return nil
}

// Revoke moves a granted consent to Revoked. Permissions and the credential
// reference are kept as history.
func (c *Consent) Revoke(now time.Time) error {
	if c.Status != StatusGranted {
		return WrongState(c.ID, c.Status, StatusGranted)
	}
	c.Status = StatusRevoked
	c.RespondedAt = &now
	return nil
}

// RequireGranted guards permission mutation and lookup: the stored status
// must be Granted.
func (c *Consent) RequireGranted() error {
	if c.Status != StatusGranted {
		return WrongState(c.ID, c.Status, StatusGranted)
	}
	return nil
}

// Permission is one data-use grant nested under a consent. Position records
// the order in which keys were first introduced.
type Permission struct {
	ConsentID id.ConsentID
	Key       string
	Granted   bool
	Position  int
	UpdatedAt time.Time
}

// ConsentStatus answers a status query for a (study, participant) pair.
// ConsentID is zero when Status is None.
type ConsentStatus struct {
	StudyID     id.StudyID
	Participant identity.Address
	ConsentID   id.ConsentID
	Status      Status
}
