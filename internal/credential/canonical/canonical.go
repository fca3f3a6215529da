// Package canonical is the single serialization routine shared by credential
// issuance and verification. Both sides must produce byte-identical output
// for the same document, so nothing else in the module serializes signed
// payloads.
//
// Canonical form:
//   - object members sorted bytewise by key, arrays kept in order
//   - no insignificant whitespace, no HTML escaping
//   - absent members omitted, explicit nulls kept
//   - numbers re-emitted exactly as their first JSON literal
//   - timestamps as RFC 3339 UTC at whole-second precision (see FormatTime)
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

// Marshal returns the canonical encoding of v. Struct field order and Go
// number types do not affect the result: v is first encoded, then decoded
// into generic JSON values with number literals preserved, then re-encoded.
func Marshal(v any) ([]byte, error) {
	first, err := encode(v)
	if err != nil {
		return nil, err
	}
	generic, err := decode(first)
	if err != nil {
		return nil, err
	}
	return encode(generic)
}

// Normalize decodes canonical-compatible JSON into generic values, keeping
// number literals as json.Number.
func Normalize(data []byte) (any, error) {
	return decode(data)
}

// Digest returns the domain-separated hash that signers sign:
// the EIP-191 personal message hash of keccak256(payload).
func Digest(payload []byte) []byte {
	return accounts.TextHash(crypto.Keccak256(payload))
}

// FormatTime renders t the way every signed timestamp is rendered.
func FormatTime(t time.Time) string {
	return Truncate(t).Format(time.RFC3339)
}

// Truncate drops sub-second precision and normalizes to UTC.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ParseTime parses a timestamp produced by FormatTime. Any other rendering
// of the same instant is rejected, so a parsed value always formats back to s.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	if FormatTime(t) != s {
		return time.Time{}, fmt.Errorf("parse timestamp %q: not in canonical form", s)
	}
	return Truncate(t), nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canonical decode: trailing data")
	}
	return out, nil
}
