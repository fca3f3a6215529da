// Package tracer is a small tracing port so ledger and credential code can
// emit spans without importing OpenTelemetry directly.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const instrumentationName = "consent-ledger"

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

func Uint64(key string, value uint64) Attribute { return Attribute{Key: key, Value: value} }

func Float64(key string, value float64) Attribute { return Attribute{Key: key, Value: value} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashIdentity returns a short SHA-256 prefix of an identity so traces can be
// correlated without exporting participant addresses.
func HashIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanLedgerRequest      = "ledger.request_consent"
	SpanLedgerGrant        = "ledger.grant_consent"
	SpanLedgerRevoke       = "ledger.revoke_consent"
	SpanCredentialIssue    = "credential.issue"
	SpanCredentialIssueJWT = "credential.issue_token"
)

// Attribute keys.
const (
	AttrStudyID     = "study_id"
	AttrConsentID   = "consent_id"
	AttrParticipant = "participant_hash"
	AttrProofType   = "proof_type"
	AttrContentID   = "content_id"
)

// Event names.
const (
	EventCredentialStored = "credential.stored"
	EventAuditEmitted     = "audit.emitted"
)
