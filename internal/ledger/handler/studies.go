package handler

import (
	"net/http"

	"consent-ledger/internal/ledger/models"
	"consent-ledger/internal/ledger/service"
	"consent-ledger/pkg/platform/httputil"
	"consent-ledger/pkg/requestcontext"
)

func (h *Handler) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.CreateStudyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	study, err := h.ledger.CreateStudy(ctx, caller, req)
	if err != nil {
		h.fail(w, r, "failed to create study", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.NewStudyResponse(study))
}

func (h *Handler) handleListStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := h.ledger.ListStudies(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list studies", err)
		return
	}
	resp := models.StudyListResponse{Studies: make([]models.StudyResponse, 0, len(studies))}
	for _, s := range studies {
		resp.Studies = append(resp.Studies, models.NewStudyResponse(s))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}
	study, err := h.ledger.GetStudy(r.Context(), studyID)
	if err != nil {
		h.fail(w, r, "failed to get study", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStudyResponse(study))
}

func (h *Handler) handleUpdateStudy(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.UpdateStudyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	study, err := h.ledger.UpdateStudy(ctx, caller, studyID, req.ToUpdate())
	if err != nil {
		h.fail(w, r, "failed to update study", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStudyResponse(study))
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.SetActiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	study, err := h.ledger.SetStudyActive(ctx, caller, studyID, *req.Active)
	if err != nil {
		h.fail(w, r, "failed to set study activation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStudyResponse(study))
}

func (h *Handler) handleRequestConsent(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RequestConsentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	participant, err := parseParticipant(req.Participant)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	consent, err := h.ledger.RequestConsent(ctx, caller, service.RequestConsentInput{
		StudyID:     studyID,
		Participant: participant,
		DocumentRef: req.DocumentRef,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.fail(w, r, "failed to request consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.NewConsentResponse(consent, requestcontext.Now(ctx)))
}

func (h *Handler) handleListStudyConsents(w http.ResponseWriter, r *http.Request) {
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	consents, err := h.ledger.ListConsentsByStudy(ctx, studyID)
	if err != nil {
		h.fail(w, r, "failed to list study consents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewConsentListResponse(consents, requestcontext.Now(ctx)))
}

func (h *Handler) handleConsentStatus(w http.ResponseWriter, r *http.Request) {
	studyID, ok := h.studyID(w, r)
	if !ok {
		return
	}
	participant, ok := h.address(w, r)
	if !ok {
		return
	}
	status, err := h.ledger.GetConsentStatus(r.Context(), studyID, participant)
	if err != nil {
		h.fail(w, r, "failed to get consent status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStatusResponse(status))
}
