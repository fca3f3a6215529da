package service

import (
	"context"
	"log/slog"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/audit"
)

// CreateStudy registers an active study owned by caller.
func (s *Service) CreateStudy(ctx context.Context, caller identity.Address, req *models.CreateStudyRequest) (*models.Study, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if req == nil {
		req = &models.CreateStudyRequest{}
	}
	ctx, at := now(ctx)

	study, err := models.NewStudy(caller, req.MetadataRef, req.Title, req.Description, at)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateStudy(ctx, study); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save study")
	}

	s.emitAudit(ctx, audit.Event{
		Actor:    caller.String(),
		Subject:  caller.String(),
		Action:   models.AuditActionStudyCreated,
		StudyID:  uint64(study.ID),
		Decision: models.AuditDecisionActivated,
		Reason:   models.AuditReasonOwnerInitiated,
	})
	if s.metrics != nil {
		s.metrics.IncrementStudiesCreated()
	}
	s.log(ctx, slog.LevelInfo, "study created", "study_id", study.ID, "owner", caller.String())
	return study, nil
}

// UpdateStudy changes the owner-mutable descriptive fields.
func (s *Service) UpdateStudy(ctx context.Context, caller identity.Address, studyID id.StudyID, update models.StudyUpdate) (*models.Study, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	ctx, _ = now(ctx)

	var updated *models.Study
	err := s.tx.RunInTx(ctx, StudyKey(studyID), func(ctx context.Context, store Store) error {
		study, err := loadStudy(ctx, store, studyID)
		if err != nil {
			return err
		}
		if !study.OwnedBy(caller) {
			return models.NotOwner(studyID)
		}
		if update.IsEmpty() {
			updated = study
			return nil
		}
		update.Apply(study)
		if err := store.UpdateStudy(ctx, study); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update study")
		}
		updated = study
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !update.IsEmpty() {
		s.emitAudit(ctx, audit.Event{
			Actor:   caller.String(),
			Subject: updated.Owner.String(),
			Action:  models.AuditActionStudyUpdated,
			StudyID: uint64(studyID),
			Reason:  models.AuditReasonOwnerInitiated,
		})
	}
	return updated, nil
}

// SetStudyActive toggles whether the study accepts new consent requests.
// Setting the current value succeeds without a write.
func (s *Service) SetStudyActive(ctx context.Context, caller identity.Address, studyID id.StudyID, active bool) (*models.Study, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	ctx, _ = now(ctx)

	var (
		result  *models.Study
		changed bool
	)
	err := s.tx.RunInTx(ctx, StudyKey(studyID), func(ctx context.Context, store Store) error {
		study, err := loadStudy(ctx, store, studyID)
		if err != nil {
			return err
		}
		if !study.OwnedBy(caller) {
			return models.NotOwner(studyID)
		}
		result = study
		if study.Active == active {
			return nil
		}
		study.Active = active
		if err := store.UpdateStudy(ctx, study); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update study")
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		decision := models.AuditDecisionDeactivated
		if active {
			decision = models.AuditDecisionActivated
		}
		s.emitAudit(ctx, audit.Event{
			Actor:    caller.String(),
			Subject:  result.Owner.String(),
			Action:   models.AuditActionStudyActiveChanged,
			StudyID:  uint64(studyID),
			Decision: decision,
			Reason:   models.AuditReasonOwnerInitiated,
		})
		if s.metrics != nil {
			s.metrics.IncrementStudyActiveChanged(active)
		}
		s.log(ctx, slog.LevelInfo, "study activation changed", "study_id", studyID, "active", active)
	}
	return result, nil
}

func (s *Service) GetStudy(ctx context.Context, studyID id.StudyID) (*models.Study, error) {
	return loadStudy(ctx, s.store, studyID)
}

// ListStudies returns every study ordered by id.
func (s *Service) ListStudies(ctx context.Context) ([]*models.Study, error) {
	studies, err := s.store.ListStudies(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list studies")
	}
	return studies, nil
}
