// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strconv"

	dErrors "consent-ledger/pkg/domain-errors"
)

// Ledger handles are sequential integers starting at 1. Zero is reserved and
// means "no record".
type (
	StudyID   uint64
	ConsentID uint64
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseStudyID(s string) (StudyID, error) {
	id, err := parseHandle(s, "study ID")
	return StudyID(id), err
}

func ParseConsentID(s string) (ConsentID, error) {
	id, err := parseHandle(s, "consent ID")
	return ConsentID(id), err
}

func (id StudyID) String() string   { return strconv.FormatUint(uint64(id), 10) }
func (id ConsentID) String() string { return strconv.FormatUint(uint64(id), 10) }

func (id StudyID) IsNil() bool   { return id == 0 }
func (id ConsentID) IsNil() bool { return id == 0 }

// parseHandle is the shared validation logic.
// Zero is allowed here so store lookups can return a proper "not found".
func parseHandle(s, label string) (uint64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
