// Package handler exposes the consent ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	credmodels "consent-ledger/internal/credential/models"
	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	"consent-ledger/internal/ledger/service"
	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/httputil"
	"consent-ledger/pkg/requestcontext"
)

// Service is the ledger surface the handler drives.
type Service interface {
	CreateStudy(ctx context.Context, caller identity.Address, req *models.CreateStudyRequest) (*models.Study, error)
	UpdateStudy(ctx context.Context, caller identity.Address, studyID id.StudyID, update models.StudyUpdate) (*models.Study, error)
	SetStudyActive(ctx context.Context, caller identity.Address, studyID id.StudyID, active bool) (*models.Study, error)
	GetStudy(ctx context.Context, studyID id.StudyID) (*models.Study, error)
	ListStudies(ctx context.Context) ([]*models.Study, error)

	RequestConsent(ctx context.Context, caller identity.Address, in service.RequestConsentInput) (*models.Consent, error)
	GrantConsent(ctx context.Context, caller identity.Address, consentID id.ConsentID, req *models.GrantRequest) (*service.GrantResult, error)
	RevokeConsent(ctx context.Context, caller identity.Address, consentID id.ConsentID) (*models.Consent, error)
	GetConsent(ctx context.Context, consentID id.ConsentID) (*models.Consent, error)
	GetConsentStatus(ctx context.Context, studyID id.StudyID, participant identity.Address) (*models.ConsentStatus, error)
	ListConsentsByStudy(ctx context.Context, studyID id.StudyID) ([]*models.Consent, error)
	ListConsentsByParticipant(ctx context.Context, participant identity.Address) ([]*models.Consent, error)
	GetCredential(ctx context.Context, consentID id.ConsentID) (*credmodels.Credential, error)

	UpdatePermission(ctx context.Context, caller identity.Address, consentID id.ConsentID, key string, granted bool) (*models.Permission, error)
	CheckPermission(ctx context.Context, consentID id.ConsentID, key string) (bool, error)
	ListPermissions(ctx context.Context, consentID id.ConsentID) ([]models.Permission, error)
}

type Handler struct {
	ledger Service
	logger *slog.Logger
}

func New(ledger Service, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes. requireCaller guards every mutation.
func (h *Handler) Register(r chi.Router, requireCaller func(http.Handler) http.Handler) {
	r.Get("/studies", h.handleListStudies)
	r.Get("/studies/{studyID}", h.handleGetStudy)
	r.Get("/studies/{studyID}/consents", h.handleListStudyConsents)
	r.Get("/studies/{studyID}/participants/{address}/status", h.handleConsentStatus)
	r.Get("/participants/{address}/consents", h.handleListParticipantConsents)
	r.Get("/consents/{consentID}", h.handleGetConsent)
	r.Get("/consents/{consentID}/permissions", h.handleListPermissions)
	r.Get("/consents/{consentID}/permissions/{key}", h.handleCheckPermission)
	r.Get("/consents/{consentID}/credential", h.handleGetCredential)

	r.Group(func(r chi.Router) {
		r.Use(requireCaller)
		r.Post("/studies", h.handleCreateStudy)
		r.Patch("/studies/{studyID}", h.handleUpdateStudy)
		r.Put("/studies/{studyID}/active", h.handleSetActive)
		r.Post("/studies/{studyID}/consents", h.handleRequestConsent)
		r.Post("/consents/{consentID}/grant", h.handleGrant)
		r.Post("/consents/{consentID}/revoke", h.handleRevoke)
		r.Put("/consents/{consentID}/permissions/{key}", h.handleUpdatePermission)
	})
}

// caller reads the identity RequireCaller placed in the context.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Address, bool) {
	ctx := r.Context()
	addr, ok := requestcontext.Caller(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing caller identity"))
		return identity.Address{}, false
	}
	return addr, true
}

func (h *Handler) studyID(w http.ResponseWriter, r *http.Request) (id.StudyID, bool) {
	studyID, err := id.ParseStudyID(chi.URLParam(r, "studyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return studyID, true
}

func (h *Handler) consentID(w http.ResponseWriter, r *http.Request) (id.ConsentID, bool) {
	consentID, err := id.ParseConsentID(chi.URLParam(r, "consentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return consentID, true
}

func (h *Handler) address(w http.ResponseWriter, r *http.Request) (identity.Address, bool) {
	addr, err := identity.Parse(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return identity.Address{}, false
	}
	return addr, true
}

// fail logs at a level matching the error and writes the response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) || dErrors.HasCode(err, dErrors.CodeSigningFailed) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}
