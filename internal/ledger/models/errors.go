package models

import (
	"errors"
	"fmt"

	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
)

// Precondition kinds. Each is wrapped in a coded domain error so callers can
// match the kind with errors.Is and the category with dErrors.HasCode.
var (
	ErrNotOwner              = errors.New("caller is not the study owner")
	ErrNotParticipant        = errors.New("caller is not the consent participant")
	ErrStudyInactive         = errors.New("study is not active")
	ErrStudyNotFound         = errors.New("study not found")
	ErrConsentNotFound       = errors.New("consent not found")
	ErrWrongState            = errors.New("consent is not in the required state")
	ErrConsentRequestExpired = errors.New("consent request has expired")
)

func NotOwner(studyID id.StudyID) error {
	return dErrors.Wrap(ErrNotOwner, dErrors.CodeForbidden,
		fmt.Sprintf("caller is not the owner of study %s", studyID))
}

func NotParticipant(consentID id.ConsentID) error {
	return dErrors.Wrap(ErrNotParticipant, dErrors.CodeForbidden,
		fmt.Sprintf("caller is not the participant of consent %s", consentID))
}

func StudyInactive(studyID id.StudyID) error {
	return dErrors.Wrap(ErrStudyInactive, dErrors.CodeInvalidState,
		fmt.Sprintf("study %s is not active", studyID))
}

func StudyNotFound(studyID id.StudyID) error {
	return dErrors.Wrap(ErrStudyNotFound, dErrors.CodeNotFound,
		fmt.Sprintf("study %s not found", studyID))
}

func ConsentNotFound(consentID id.ConsentID) error {
	return dErrors.Wrap(ErrConsentNotFound, dErrors.CodeNotFound,
		fmt.Sprintf("consent %s not found", consentID))
}

func WrongState(consentID id.ConsentID, have, want Status) error {
	return dErrors.Wrap(ErrWrongState, dErrors.CodeInvalidState,
		fmt.Sprintf("consent %s is %s, operation requires %s", consentID, have, want))
}

func ConsentRequestExpired(consentID id.ConsentID) error {
	return dErrors.Wrap(ErrConsentRequestExpired, dErrors.CodeExpired,
		fmt.Sprintf("consent request %s has expired", consentID))
}
