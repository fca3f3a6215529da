package audit

import "time"

// Event is emitted from ledger logic to capture key transitions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	// Actor is the authenticated address that performed the action.
	Actor string `json:"actor"`
	// Subject is the address the event is about: the participant for consent
	// events and the owner for study events.
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	StudyID   uint64 `json:"study_id,omitempty"`
	ConsentID uint64 `json:"consent_id,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Category routes events to retention tiers.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategoryOperations Category = "operations"
)

type AuditEvent string

const (
	EventStudyCreated       AuditEvent = "study_created"
	EventStudyUpdated       AuditEvent = "study_updated"
	EventStudyActiveChanged AuditEvent = "study_activation_changed"
	EventConsentRequested   AuditEvent = "consent_requested"
	EventConsentGranted     AuditEvent = "consent_granted"
	EventConsentRevoked     AuditEvent = "consent_revoked"
	EventPermissionUpdated  AuditEvent = "permission_updated"
)

var complianceEvents = map[AuditEvent]struct{}{
	EventConsentRequested:  {},
	EventConsentGranted:    {},
	EventConsentRevoked:    {},
	EventPermissionUpdated: {},
}

// Category reports the retention tier for the event. Unknown events fall back
// to operations.
func (e AuditEvent) Category() Category {
	if _, ok := complianceEvents[e]; ok {
		return CategoryCompliance
	}
	return CategoryOperations
}
