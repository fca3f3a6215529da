package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"consent-ledger/internal/blob"
	credmodels "consent-ledger/internal/credential/models"
	"consent-ledger/internal/credential/issuer"
	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	"consent-ledger/internal/platform/tracer"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/audit"
	"consent-ledger/pkg/platform/sentinel"
	"consent-ledger/pkg/platform/validation"
)

// RequestConsentInput carries a parsed consent request.
type RequestConsentInput struct {
	StudyID     id.StudyID
	Participant identity.Address
	DocumentRef string
	ExpiresAt   *time.Time
}

// GrantResult is the granted consent with the credential that attests to it.
type GrantResult struct {
	Consent    *models.Consent
	Credential *credmodels.Credential
}

// RequestConsent opens a pending consent for a participant. The pairing
// index moves to the new consent; the one it replaced stays readable by id
// and is linked through Supersedes.
func (s *Service) RequestConsent(ctx context.Context, caller identity.Address, in RequestConsentInput) (_ *models.Consent, err error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if in.Participant.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "participant is required")
	}
	if in.DocumentRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document reference is required")
	}
	if err := validation.CheckStringLength("document_ref", in.DocumentRef, validation.MaxDocumentRefSize); err != nil {
		return nil, err
	}
	ctx, at := now(ctx)
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerRequest,
		tracer.Uint64(tracer.AttrStudyID, uint64(in.StudyID)),
		tracer.String(tracer.AttrParticipant, tracer.HashIdentity(in.Participant.String())),
	)
	defer func() { span.End(err) }()

	var consent *models.Consent
	err = s.tx.RunInTx(ctx, StudyKey(in.StudyID), func(ctx context.Context, store Store) error {
		study, err := loadStudy(ctx, store, in.StudyID)
		if err != nil {
			return err
		}
		if !study.OwnedBy(caller) {
			return models.NotOwner(in.StudyID)
		}
		if !study.Active {
			return models.StudyInactive(in.StudyID)
		}

		prior, err := store.FindConsentIDByPair(ctx, in.StudyID, in.Participant)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent index")
		}

		c, err := models.NewConsent(in.StudyID, in.Participant, in.DocumentRef, in.ExpiresAt, prior, at)
		if err != nil {
			return err
		}
		if err := store.CreateConsent(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
		}
		consent = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := models.AuditReasonOwnerInitiated
	if !consent.Supersedes.IsNil() {
		reason = models.AuditReasonSupersedesRequest
	}
	s.emitAudit(ctx, audit.Event{
		Actor:     caller.String(),
		Subject:   consent.Participant.String(),
		Action:    models.AuditActionConsentRequested,
		StudyID:   uint64(consent.StudyID),
		ConsentID: uint64(consent.ID),
		Decision:  models.AuditDecisionPending,
		Reason:    reason,
	})
	if s.metrics != nil {
		s.metrics.IncrementConsentsRequested()
	}
	s.log(ctx, slog.LevelInfo, "consent requested",
		"study_id", consent.StudyID, "consent_id", consent.ID, "supersedes", consent.Supersedes)
	return consent, nil
}

// GrantConsent issues a credential for a pending consent, stores it in the
// blob store and records its content id. Any failure before the final write
// leaves the consent Pending.
func (s *Service) GrantConsent(ctx context.Context, caller identity.Address, consentID id.ConsentID, req *models.GrantRequest) (_ *GrantResult, err error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if req == nil {
		req = &models.GrantRequest{}
	}
	req.Normalize()
	if req.Format != models.FormatEmbedded && req.Format != models.FormatToken {
		return nil, dErrors.New(dErrors.CodeValidation, "format must be embedded or token")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, at := now(ctx)
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerGrant,
		tracer.Uint64(tracer.AttrConsentID, uint64(consentID)),
		tracer.String(tracer.AttrProofType, req.Format),
	)
	defer func() {
		span.End(err)
		if s.metrics == nil {
			return
		}
		if err != nil {
			s.metrics.IncrementGrantFailure(errorCode(err))
			return
		}
		s.metrics.ObserveGrantLatency(time.Since(start))
	}()

	var result GrantResult
	err = s.tx.RunInTx(ctx, ConsentKey(consentID), func(ctx context.Context, store Store) error {
		consent, err := loadConsent(ctx, store, consentID)
		if err != nil {
			return err
		}
		if !consent.IsParticipant(caller) {
			return models.NotParticipant(consentID)
		}
		if err := consent.CanGrant(at); err != nil {
			return err
		}

		issueReq := issuer.IssueRequest{
			Subject:   consent.Participant,
			ConsentID: consent.ID,
			StudyID:   consent.StudyID,
			GrantedAt: at,
			Claims:    req.Claims,
			ExpiresAt: consent.ExpiresAt,
		}
		var cred *credmodels.Credential
		if req.Format == models.FormatToken {
			cred, err = s.issuer.IssueToken(ctx, issueReq)
		} else {
			cred, err = s.issuer.Issue(ctx, issueReq)
		}
		if err != nil {
			return err
		}

		doc, err := credmodels.Encode(cred)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential")
		}
		cid, err := s.blobs.Put(ctx, doc)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
		}
		span.AddEvent(tracer.EventCredentialStored, tracer.String(tracer.AttrContentID, cid.String()))

		if err := consent.Grant(cid.String(), at); err != nil {
			return err
		}
		if err := store.UpdateConsent(ctx, consent); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update consent")
		}
		result = GrantResult{Consent: consent, Credential: cred}
		return nil
	})
	if err != nil {
		s.log(ctx, slog.LevelWarn, "consent grant rejected", "consent_id", consentID, "error", err)
		return nil, err
	}

	s.emitAudit(ctx, audit.Event{
		Actor:     caller.String(),
		Subject:   caller.String(),
		Action:    models.AuditActionConsentGranted,
		StudyID:   uint64(result.Consent.StudyID),
		ConsentID: uint64(consentID),
		Decision:  models.AuditDecisionGranted,
		Reason:    models.AuditReasonParticipantInitiated,
		Detail:    result.Consent.CredentialRef,
	})
	if s.metrics != nil {
		s.metrics.IncrementConsentsGranted(req.Format)
	}
	s.log(ctx, slog.LevelInfo, "consent granted",
		"study_id", result.Consent.StudyID, "consent_id", consentID, "credential_ref", result.Consent.CredentialRef)
	return &result, nil
}

// RevokeConsent withdraws a granted consent. Permissions and the credential
// reference are kept.
func (s *Service) RevokeConsent(ctx context.Context, caller identity.Address, consentID id.ConsentID) (_ *models.Consent, err error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	ctx, at := now(ctx)
	ctx, span := s.tracer.Start(ctx, tracer.SpanLedgerRevoke, tracer.Uint64(tracer.AttrConsentID, uint64(consentID)))
	defer func() { span.End(err) }()

	var consent *models.Consent
	err = s.tx.RunInTx(ctx, ConsentKey(consentID), func(ctx context.Context, store Store) error {
		c, err := loadConsent(ctx, store, consentID)
		if err != nil {
			return err
		}
		if !c.IsParticipant(caller) {
			return models.NotParticipant(consentID)
		}
		if err := c.Revoke(at); err != nil {
			return err
		}
		if err := store.UpdateConsent(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update consent")
		}
		consent = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, audit.Event{
		Actor:     caller.String(),
		Subject:   caller.String(),
		Action:    models.AuditActionConsentRevoked,
		StudyID:   uint64(consent.StudyID),
		ConsentID: uint64(consentID),
		Decision:  models.AuditDecisionRevoked,
		Reason:    models.AuditReasonParticipantInitiated,
	})
	if s.metrics != nil {
		s.metrics.IncrementConsentsRevoked()
	}
	s.log(ctx, slog.LevelInfo, "consent revoked", "study_id", consent.StudyID, "consent_id", consentID)
	return consent, nil
}

// GetConsent returns the stored record. Callers derive the observed status
// with StatusAt.
func (s *Service) GetConsent(ctx context.Context, consentID id.ConsentID) (*models.Consent, error) {
	return loadConsent(ctx, s.store, consentID)
}

// GetConsentStatus answers for a (study, participant) pair through the
// pairing index. No record reads as None; a lapsed grant reads as Expired.
func (s *Service) GetConsentStatus(ctx context.Context, studyID id.StudyID, participant identity.Address) (*models.ConsentStatus, error) {
	_, at := now(ctx)
	status := &models.ConsentStatus{StudyID: studyID, Participant: participant, Status: models.StatusNone}

	consentID, err := s.store.FindConsentIDByPair(ctx, studyID, participant)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return status, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent index")
	}
	if consentID.IsNil() {
		return status, nil
	}
	consent, err := loadConsent(ctx, s.store, consentID)
	if err != nil {
		return nil, err
	}
	status.ConsentID = consent.ID
	status.Status = consent.StatusAt(at)
	return status, nil
}

// ListConsentsByStudy returns every consent of an existing study, including
// superseded ones, ordered by id.
func (s *Service) ListConsentsByStudy(ctx context.Context, studyID id.StudyID) ([]*models.Consent, error) {
	if _, err := loadStudy(ctx, s.store, studyID); err != nil {
		return nil, err
	}
	consents, err := s.store.ListConsentsByStudy(ctx, studyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

func (s *Service) ListConsentsByParticipant(ctx context.Context, participant identity.Address) ([]*models.Consent, error) {
	if participant.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "participant is required")
	}
	consents, err := s.store.ListConsentsByParticipant(ctx, participant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return consents, nil
}

// GetCredential loads the credential document recorded at grant time.
func (s *Service) GetCredential(ctx context.Context, consentID id.ConsentID) (*credmodels.Credential, error) {
	consent, err := loadConsent(ctx, s.store, consentID)
	if err != nil {
		return nil, err
	}
	if consent.CredentialRef == "" {
		return nil, models.WrongState(consentID, consent.Status, models.StatusGranted)
	}
	cid, err := blob.ParseContentID(consent.CredentialRef)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored credential reference is malformed")
	}
	doc, err := s.blobs.Get(ctx, cid)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "credential document not found")
		case errors.Is(err, sentinel.ErrCorrupted):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential document is corrupted")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read credential document")
		}
	}
	cred, err := credmodels.Decode(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode credential document")
	}
	return cred, nil
}
