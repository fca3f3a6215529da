package testutil

import (
	"time"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	id "consent-ledger/pkg/domain"
)

// TestAddresses are fixed, well-formed identities for deterministic tests.
var TestAddresses = struct {
	Owner       identity.Address
	Participant identity.Address
	Stranger    identity.Address
}{
	Owner:       identity.MustParse("0x52908400098527886E0F7030069857D2E4169EE7"),
	Participant: identity.MustParse("0x8617E340B3D01FA5F11F306F4090FD50E238070D"),
	Stranger:    identity.MustParse("0xde709f2102306220921060314715629080e2fb77"),
}

// TestTime is a fixed clock reading, truncated to seconds like credential timestamps.
var TestTime = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

// StudyBuilder provides a fluent interface for building test studies.
type StudyBuilder struct {
	study *models.Study
}

func NewStudyBuilder() *StudyBuilder {
	return &StudyBuilder{
		study: &models.Study{
			Owner:       TestAddresses.Owner,
			MetadataRef: "sha256-" + zeroHex,
			Title:       "Gait analysis",
			Description: "Walking pattern study",
			CreatedAt:   TestTime,
			Active:      true,
		},
	}
}

func (b *StudyBuilder) WithOwner(owner identity.Address) *StudyBuilder {
	b.study.Owner = owner
	return b
}

func (b *StudyBuilder) Inactive() *StudyBuilder {
	b.study.Active = false
	return b
}

func (b *StudyBuilder) Build() *models.Study {
	s := *b.study
	return &s
}

// ConsentBuilder provides a fluent interface for building test consents.
type ConsentBuilder struct {
	consent *models.Consent
}

func NewConsentBuilder(studyID id.StudyID) *ConsentBuilder {
	return &ConsentBuilder{
		consent: &models.Consent{
			StudyID:     studyID,
			Participant: TestAddresses.Participant,
			DocumentRef: "sha256-" + zeroHex,
			Status:      models.StatusPending,
			RequestedAt: TestTime,
		},
	}
}

func (b *ConsentBuilder) WithParticipant(p identity.Address) *ConsentBuilder {
	b.consent.Participant = p
	return b
}

func (b *ConsentBuilder) ExpiresAt(t time.Time) *ConsentBuilder {
	b.consent.ExpiresAt = &t
	return b
}

// Granted marks the consent granted at TestTime with the given credential reference.
func (b *ConsentBuilder) Granted(credentialRef string) *ConsentBuilder {
	at := TestTime
	b.consent.Status = models.StatusGranted
	b.consent.CredentialRef = credentialRef
	b.consent.RespondedAt = &at
	return b
}

func (b *ConsentBuilder) Build() *models.Consent {
	c := *b.consent
	return &c
}

const zeroHex = "0000000000000000000000000000000000000000000000000000000000000000"
