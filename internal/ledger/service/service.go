// Package service is the consent ledger: the state machine for studies and
// consents, permission sub-grants and credential issuance on grant.
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
	"consent-ledger/internal/ledger/metrics"
	"consent-ledger/internal/ledger/models"
	"consent-ledger/internal/platform/tracer"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/audit"
	"consent-ledger/pkg/platform/sentinel"
	"consent-ledger/pkg/requestcontext"
)

// Store defines the persistence interface for the ledger.
// Error Contract:
// - Lookups return sentinel.ErrNotFound when the entity does not exist
// - CreateStudy and CreateConsent assign the next id, starting at 1
// - CreateConsent also points the (study, participant) index at the new consent
type Store interface {
	CreateStudy(ctx context.Context, study *models.Study) error
	GetStudy(ctx context.Context, studyID id.StudyID) (*models.Study, error)
	ListStudies(ctx context.Context) ([]*models.Study, error)
	UpdateStudy(ctx context.Context, study *models.Study) error

	CreateConsent(ctx context.Context, consent *models.Consent) error
	GetConsent(ctx context.Context, consentID id.ConsentID) (*models.Consent, error)
	UpdateConsent(ctx context.Context, consent *models.Consent) error
	FindConsentIDByPair(ctx context.Context, studyID id.StudyID, participant identity.Address) (id.ConsentID, error)
	ListConsentsByStudy(ctx context.Context, studyID id.StudyID) ([]*models.Consent, error)
	ListConsentsByParticipant(ctx context.Context, participant identity.Address) ([]*models.Consent, error)

	SetPermission(ctx context.Context, consentID id.ConsentID, key string, granted bool, now time.Time) error
	GetPermission(ctx context.Context, consentID id.ConsentID, key string) (*models.Permission, error)
	ListPermissions(ctx context.Context, consentID id.ConsentID) ([]models.Permission, error)
}

// CredentialIssuer mints the credential attached to a grant.
type CredentialIssuer interface {
	Issue(ctx context.Context, req issuer.IssueRequest) (*credmodels.Credential, error)
	IssueToken(ctx context.Context, req issuer.IssueRequest) (*credmodels.Credential, error)
}

type Option func(*Service)

// Service applies ledger transitions. Mutations of one study or consent are
// linearized through LedgerTx; reads go straight to the store.
type Service struct {
	store   Store
	tx      LedgerTx
	issuer  CredentialIssuer
	blobs   blob.Store
	auditor *audit.Logger
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  tracer.Tracer
}

// New builds a Service. Without WithTx, mutations are serialized in process
// with a sharded mutex over store.
func New(store Store, credIssuer CredentialIssuer, blobs blob.Store, opts ...Option) *Service {
	svc := &Service{
		store:  store,
		issuer: credIssuer,
		blobs:  blobs,
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.tx == nil {
		var txOpts []ShardedTxOption
		if svc.metrics != nil {
			txOpts = append(txOpts, WithLockWaitObserver(svc.metrics.ObserveLockWait))
		}
		svc.tx = NewShardedTx(store, txOpts...)
	}
	return svc
}

// WithTx replaces the in-process lock with another LedgerTx, such as a
// database transaction runner.
func WithTx(tx LedgerTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditor(a *audit.Logger) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// now pins one clock reading for a whole operation.
func now(ctx context.Context) (context.Context, time.Time) {
	t := requestcontext.Now(ctx).UTC()
	return requestcontext.WithTime(ctx, t), t
}

func requireCaller(caller identity.Address) error {
	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing caller identity")
	}
	return nil
}

func loadStudy(ctx context.Context, store Store, studyID id.StudyID) (*models.Study, error) {
	if studyID.IsNil() {
		return nil, models.StudyNotFound(studyID)
	}
	study, err := store.GetStudy(ctx, studyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.StudyNotFound(studyID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read study")
	}
	return study, nil
}

func loadConsent(ctx context.Context, store Store, consentID id.ConsentID) (*models.Consent, error) {
	if consentID.IsNil() {
		return nil, models.ConsentNotFound(consentID)
	}
	consent, err := store.GetConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ConsentNotFound(consentID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
	}
	return consent, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	s.auditor.Record(ctx, event)
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		args = append(args, "request_id", reqID)
	}
	s.logger.Log(ctx, level, msg, args...)
}

func errorCode(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return string(de.Code)
	}
	return string(dErrors.CodeInternal)
}
