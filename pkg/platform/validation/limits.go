package validation

import (
	"fmt"

	dErrors "consent-ledger/pkg/domain-errors"
)

// Body limits
const (
	// MaxBodySize bounds JSON request bodies.
	MaxBodySize = 64 * 1024

	// MaxDocumentSize bounds raw uploads to the content-addressed store.
	MaxDocumentSize = 4 << 20
)

// Claim limits for credential extension claims.
const (
	MaxClaims          = 32
	MaxClaimKeyLength  = 64
	MaxTrustedIssuers  = 16
	MaxDocumentRefSize = 256
)

// CheckCount validates that a collection does not exceed the maximum count.
func CheckCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckKeysLength validates every key of a map.
func CheckKeysLength[V any](fieldName string, values map[string]V, max int) error {
	for k := range values {
		if k == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must not contain an empty key", fieldName))
		}
		if len(k) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s key exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
