package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"consent-ledger/internal/blob"
	"consent-ledger/internal/credential/issuer"
	"consent-ledger/internal/credential/models"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/credential/verifier"
	"consent-ledger/pkg/platform/httputil"
	"consent-ledger/pkg/platform/middleware/metadata"
	"consent-ledger/pkg/platform/middleware/request"
	"consent-ledger/pkg/platform/validation"
	"consent-ledger/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	server  *httptest.Server
	issuer  *issuer.Issuer
	metrics *Metrics
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	tokenKey, err := signer.NewTokenKey("handler-secret")
	s.Require().NoError(err)
	s.issuer = issuer.New(signer.FromKey(key), issuer.WithTokenKey(tokenKey))
	s.metrics = NewMetrics(prometheus.NewRegistry())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(verifier.New(verifier.WithTokenKey(tokenKey)), blob.NewMemory(), logger, WithMetrics(s.metrics))

	r := chi.NewRouter()
	r.Use(request.RequestTime)
	h.Register(r, metadata.NewMiddleware(metadata.Config{}, logger).RequireCaller)
	s.server = httptest.NewServer(r)
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) post(path string, body []byte, withCaller bool) *http.Response {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(body))
	s.Require().NoError(err)
	if withCaller {
		req.Header.Set(metadata.CallerHeader, testutil.TestAddresses.Owner.String())
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *HandlerSuite) get(path string) *http.Response {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *HandlerSuite) issue() *models.Credential {
	cred, err := s.issuer.Issue(context.Background(), issuer.IssueRequest{
		Subject:   testutil.TestAddresses.Participant,
		ConsentID: 7,
		StudyID:   2,
		Claims:    map[string]any{"modality": "eeg"},
	})
	s.Require().NoError(err)
	return cred
}

func decodeBody[T any](s *HandlerSuite, resp *http.Response) T {
	var out T
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *HandlerSuite) TestVerifyCredential() {
	raw, err := models.Encode(s.issue())
	s.Require().NoError(err)

	resp := s.post("/credentials/verify", raw, false)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.True(decodeBody[VerifyResponse](s, resp).Valid)

	tampered := bytes.Replace(raw, []byte(`"eeg"`), []byte(`"mri"`), 1)
	s.Require().NotEqual(raw, tampered)
	resp = s.post("/credentials/verify", tampered, false)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.False(decodeBody[VerifyResponse](s, resp).Valid)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Verifications.WithLabelValues(kindCredential, "valid")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Verifications.WithLabelValues(kindCredential, "invalid")))
}

func (s *HandlerSuite) TestVerifyRejectsMalformedDocument() {
	resp := s.post("/credentials/verify", []byte(`{"proof":{"type":"Unknown"}}`), false)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("bad_request", decodeBody[httputil.ErrorResponse](s, resp).Error)
}

func (s *HandlerSuite) TestVerifyToken() {
	cred, err := s.issuer.IssueToken(context.Background(), issuer.IssueRequest{
		Subject:   testutil.TestAddresses.Participant,
		ConsentID: 9,
		StudyID:   3,
	})
	s.Require().NoError(err)
	proof, ok := cred.Proof.(*models.TokenProof)
	s.Require().True(ok)

	body, err := json.Marshal(VerifyTokenRequest{Token: proof.JWT})
	s.Require().NoError(err)
	resp := s.post("/credentials/verify-token", body, false)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	out := decodeBody[VerifyTokenResponse](s, resp)
	s.True(out.Valid)
	s.Require().NotNil(out.Claims)
	s.EqualValues(9, out.Claims.ConsentID)

	resp = s.post("/credentials/verify-token", []byte(`{"token":"not-a-jwt"}`), false)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	out = decodeBody[VerifyTokenResponse](s, resp)
	s.False(out.Valid)
	s.Nil(out.Claims)

	resp = s.post("/credentials/verify-token", []byte(`{}`), false)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation_failed", decodeBody[httputil.ErrorResponse](s, resp).Error)
}

func (s *HandlerSuite) TestDocuments() {
	doc := []byte("participant information sheet v3")

	resp := s.post("/documents", doc, false)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.post("/documents", doc, true)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	stored := decodeBody[DocumentResponse](s, resp)
	s.Equal(blob.Compute(doc).String(), stored.CID)
	s.Equal(len(doc), stored.Size)

	resp = s.get("/documents/" + stored.CID)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(doc, got)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.DocumentsPut))
}

func (s *HandlerSuite) TestDocumentErrors() {
	resp := s.get("/documents/" + blob.Compute([]byte("missing")).String())
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.get("/documents/sha256-zz")
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.post("/documents", nil, true)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.post("/documents", []byte(strings.Repeat("a", validation.MaxDocumentSize+1)), true)
	s.Equal(http.StatusRequestEntityTooLarge, resp.StatusCode)
}
