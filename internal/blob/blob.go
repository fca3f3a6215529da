// Package blob is a content-addressed byte store. Identifiers are derived
// from the bytes, so a Get can always check what it returns.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"consent-ledger/pkg/platform/sentinel"
)

const contentIDPrefix = "sha256-"

// ContentID is "sha256-" followed by the lowercase hex SHA-256 of the bytes.
type ContentID string

// Compute returns the content identifier of data.
func Compute(data []byte) ContentID {
	sum := sha256.Sum256(data)
	return ContentID(contentIDPrefix + hex.EncodeToString(sum[:]))
}

// ParseContentID validates the textual form of a content identifier.
func ParseContentID(s string) (ContentID, error) {
	s = strings.TrimSpace(s)
	digest, ok := strings.CutPrefix(s, contentIDPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("%w: content id %q", sentinel.ErrInvalidInput, s)
	}
	if _, err := hex.DecodeString(digest); err != nil || strings.ToLower(digest) != digest {
		return "", fmt.Errorf("%w: content id %q", sentinel.ErrInvalidInput, s)
	}
	return ContentID(s), nil
}

func (c ContentID) String() string { return string(c) }

func (c ContentID) key() []byte { return []byte("blob:" + string(c)) }

// Store is a put/get service keyed by content identifier. Get returns
// sentinel.ErrNotFound for unknown ids and sentinel.ErrCorrupted when the
// stored bytes no longer hash to the id.
type Store interface {
	Put(ctx context.Context, data []byte) (ContentID, error)
	Get(ctx context.Context, cid ContentID) ([]byte, error)
}

func verify(cid ContentID, data []byte) ([]byte, error) {
	if Compute(data) != cid {
		return nil, fmt.Errorf("%w: %s", sentinel.ErrCorrupted, cid)
	}
	return data, nil
}
