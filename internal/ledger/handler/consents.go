package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consent-ledger/internal/identity"
	"consent-ledger/internal/ledger/models"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/httputil"
	"consent-ledger/pkg/requestcontext"
)

// GrantResponse returns the granted consent with its credential document.
type GrantResponse struct {
	Consent    models.ConsentResponse `json:"consent"`
	Credential any                    `json:"credential"`
}

type CheckPermissionResponse struct {
	ConsentID uint64 `json:"consent_id"`
	Key       string `json:"key"`
	Allowed   bool   `json:"allowed"`
}

func parseParticipant(raw string) (identity.Address, error) {
	addr, err := identity.Parse(raw)
	if err != nil {
		return identity.Address{}, dErrors.Wrap(err, dErrors.CodeValidation, "participant must be a hex address")
	}
	return addr, nil
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	consent, err := h.ledger.GetConsent(ctx, consentID)
	if err != nil {
		h.fail(w, r, "failed to get consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewConsentResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) handleListParticipantConsents(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.address(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	consents, err := h.ledger.ListConsentsByParticipant(ctx, participant)
	if err != nil {
		h.fail(w, r, "failed to list participant consents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewConsentListResponse(consents, requestcontext.Now(ctx)))
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.GrantRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.ledger.GrantConsent(ctx, caller, consentID, req)
	if err != nil {
		h.fail(w, r, "failed to grant consent", err)
		return
	}
	h.logger.InfoContext(ctx, "consent granted",
		"request_id", requestcontext.RequestID(ctx),
		"consent_id", consentID,
		"format", req.Format,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, GrantResponse{
		Consent:    models.NewConsentResponse(result.Consent, requestcontext.Now(ctx)),
		Credential: result.Credential,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	consent, err := h.ledger.RevokeConsent(ctx, caller, consentID)
	if err != nil {
		h.fail(w, r, "failed to revoke consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewConsentResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	cred, err := h.ledger.GetCredential(r.Context(), consentID)
	if err != nil {
		h.fail(w, r, "failed to get credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cred)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	perms, err := h.ledger.ListPermissions(r.Context(), consentID)
	if err != nil {
		h.fail(w, r, "failed to list permissions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewPermissionListResponse(uint64(consentID), perms))
}

func (h *Handler) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.UpdatePermissionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	perm, err := h.ledger.UpdatePermission(ctx, caller, consentID, chi.URLParam(r, "key"), *req.Granted)
	if err != nil {
		h.fail(w, r, "failed to update permission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.PermissionResponse{
		ConsentID: uint64(consentID),
		Key:       perm.Key,
		Granted:   perm.Granted,
	})
}

func (h *Handler) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	consentID, ok := h.consentID(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	allowed, err := h.ledger.CheckPermission(r.Context(), consentID, key)
	if err != nil {
		h.fail(w, r, "failed to check permission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CheckPermissionResponse{
		ConsentID: uint64(consentID),
		Key:       key,
		Allowed:   allowed,
	})
}
