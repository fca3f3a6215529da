// Package handler exposes credential verification and the document store over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"consent-ledger/internal/blob"
	"consent-ledger/internal/credential/models"
	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/httputil"
	"consent-ledger/pkg/platform/middleware/request"
	"consent-ledger/pkg/platform/sentinel"
	"consent-ledger/pkg/platform/validation"
	"consent-ledger/pkg/requestcontext"
)

const (
	kindCredential = "credential"
	kindToken      = "token"
)

// Verifier checks credentials and bare tokens.
type Verifier interface {
	Verify(ctx context.Context, cred *models.Credential) bool
	VerifyToken(ctx context.Context, token string) (*models.TokenClaims, bool)
}

type Handler struct {
	verifier Verifier
	blobs    blob.Store
	metrics  *Metrics
	logger   *slog.Logger
}

type Option func(*Handler)

func WithMetrics(m *Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(verifier Verifier, blobs blob.Store, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{verifier: verifier, blobs: blobs, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required,notblank"`
}

type VerifyTokenResponse struct {
	Valid  bool                `json:"valid"`
	Claims *models.TokenClaims `json:"claims,omitempty"`
}

type DocumentResponse struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

// Register mounts the routes. Document writes require a caller.
func (h *Handler) Register(r chi.Router, requireCaller func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(request.BodyLimit(validation.MaxDocumentSize))
		r.Post("/credentials/verify", h.handleVerify)
		r.Post("/credentials/verify-token", h.handleVerifyToken)
		r.With(requireCaller).Post("/documents", h.handlePutDocument)
	})
	r.Get("/documents/{cid}", h.handleGetDocument)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	cred, err := models.Decode(body)
	if err != nil {
		h.logger.DebugContext(ctx, "undecodable credential",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential document"))
		return
	}

	valid := h.verifier.Verify(ctx, cred)
	h.observe(ctx, kindCredential, valid, "credential_id", cred.ID)
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Valid: valid})
}

func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyTokenRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	claims, valid := h.verifier.VerifyToken(ctx, req.Token)
	h.observe(ctx, kindToken, valid)
	httputil.WriteJSON(w, http.StatusOK, VerifyTokenResponse{Valid: valid, Claims: claims})
}

func (h *Handler) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if len(body) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "document body is empty"))
		return
	}

	cid, err := h.blobs.Put(ctx, body)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to store document",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document"))
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveDocument(len(body))
	}
	httputil.WriteJSON(w, http.StatusCreated, DocumentResponse{CID: cid.String(), Size: len(body)})
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := blob.ParseContentID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid content id"))
		return
	}

	data, err := h.blobs.Get(ctx, cid)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "document not found"))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to read document",
			"request_id", requestcontext.RequestID(ctx),
			"cid", cid,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read document"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", `"`+cid.String()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
				Error:            "request_too_large",
				ErrorDescription: "request body exceeds the document size limit",
			})
			return nil, false
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return nil, false
	}
	return body, true
}

// observe records the outcome. Failures are logged at debug only.
func (h *Handler) observe(ctx context.Context, kind string, valid bool, attrs ...any) {
	if h.metrics != nil {
		h.metrics.ObserveVerification(kind, valid)
	}
	if !valid {
		h.logger.DebugContext(ctx, "verification failed",
			append([]any{"request_id", requestcontext.RequestID(ctx), "kind", kind}, attrs...)...,
		)
	}
}
