package service

import (
	"context"
	"errors"
	"log/slog"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/expiry"
	"consent-ledger/internal/ledger/models"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/audit"
	"consent-ledger/pkg/platform/sentinel"
)

func validateKey(key string) error {
	if !models.ValidPermissionKey(key) {
		return dErrors.New(dErrors.CodeValidation, "permission key must be 1-64 characters of letters, digits, '_', '.', ':' or '-'")
	}
	return nil
}

// UpdatePermission upserts one data-use grant under a granted consent.
func (s *Service) UpdatePermission(ctx context.Context, caller identity.Address, consentID id.ConsentID, key string, granted bool) (*models.Permission, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	ctx, at := now(ctx)

	var (
		perm    *models.Permission
		studyID id.StudyID
	)
	err := s.tx.RunInTx(ctx, ConsentKey(consentID), func(ctx context.Context, store Store) error {
		consent, err := loadConsent(ctx, store, consentID)
		if err != nil {
			return err
		}
		if !consent.IsParticipant(caller) {
			return models.NotParticipant(consentID)
		}
		if err := consent.RequireGranted(); err != nil {
			return err
		}
		if err := store.SetPermission(ctx, consentID, key, granted, at); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save permission")
		}
		p, err := store.GetPermission(ctx, consentID, key)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read permission")
		}
		perm = p
		studyID = consent.StudyID
		return nil
	})
	if err != nil {
		return nil, err
	}

	decision := models.AuditDecisionDenied
	if granted {
		decision = models.AuditDecisionAllowed
	}
	s.emitAudit(ctx, audit.Event{
		Actor:     caller.String(),
		Subject:   caller.String(),
		Action:    models.AuditActionPermissionUpdated,
		StudyID:   uint64(studyID),
		ConsentID: uint64(consentID),
		Decision:  decision,
		Reason:    models.AuditReasonParticipantInitiated,
		Detail:    key,
	})
	if s.metrics != nil {
		s.metrics.IncrementPermissionUpdates()
	}
	s.log(ctx, slog.LevelDebug, "permission updated", "consent_id", consentID, "key", key, "granted", granted)
	return perm, nil
}

// CheckPermission requires a stored Granted status. A lapsed grant denies
// every key, as does a key that was never set.
func (s *Service) CheckPermission(ctx context.Context, consentID id.ConsentID, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, at := now(ctx)

	consent, err := loadConsent(ctx, s.store, consentID)
	if err != nil {
		return false, err
	}
	if err := consent.RequireGranted(); err != nil {
		return false, err
	}

	allowed, err := s.permissionValue(ctx, consentID, key)
	if err != nil {
		return false, err
	}
	if expiry.IsLapsed(at, consent.ExpiresAt) {
		allowed = false
	}
	if s.metrics != nil {
		s.metrics.ObservePermissionCheck(allowed)
	}
	return allowed, nil
}

func (s *Service) permissionValue(ctx context.Context, consentID id.ConsentID, key string) (bool, error) {
	perm, err := s.store.GetPermission(ctx, consentID, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read permission")
	}
	return perm.Granted, nil
}

// ListPermissions returns the consent's permissions in the order their keys
// were first introduced. Revoked consents keep theirs as history.
func (s *Service) ListPermissions(ctx context.Context, consentID id.ConsentID) ([]models.Permission, error) {
	if _, err := loadConsent(ctx, s.store, consentID); err != nil {
		return nil, err
	}
	perms, err := s.store.ListPermissions(ctx, consentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permissions")
	}
	return perms, nil
}
