package models

// Audit event actions describe which ledger transition occurred.
const (
	AuditActionStudyCreated       = "study_created"
	AuditActionStudyUpdated       = "study_updated"
	AuditActionStudyActiveChanged = "study_activation_changed"
	AuditActionConsentRequested   = "consent_requested"
	AuditActionConsentGranted     = "consent_granted"
	AuditActionConsentRevoked     = "consent_revoked"
	AuditActionPermissionUpdated  = "permission_updated"
)

// Audit event decisions record the outcome of the action.
const (
	AuditDecisionActivated   = "activated"
	AuditDecisionDeactivated = "deactivated"
	AuditDecisionPending     = "pending"
	AuditDecisionGranted     = "granted"
	AuditDecisionRevoked     = "revoked"
	AuditDecisionAllowed     = "allowed"
	AuditDecisionDenied      = "denied"
)

// Audit event reasons explain why the action was taken.
const (
	AuditReasonOwnerInitiated       = "owner_initiated"
	AuditReasonParticipantInitiated = "participant_initiated"
	AuditReasonSupersedesRequest    = "supersedes_request"
)
