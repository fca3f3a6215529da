package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"consent-ledger/internal/platform/config"
	"consent-ledger/pkg/platform/middleware/metadata"
	"consent-ledger/pkg/testutil"
)

type AppSuite struct {
	suite.Suite
	app    *app
	server *httptest.Server
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)

	cfg := config.Server{
		Environment:     "test",
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
		TxTimeout:       time.Second,
		Blob:            config.BlobConfig{Backend: config.BlobBadger},
		Signer: config.SignerConfig{
			PrivateKey:  hex.EncodeToString(crypto.FromECDSA(key)),
			Timeout:     time.Second,
			TokenSecret: "app-test-secret",
			TokenTTL:    time.Hour,
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.app, err = newApp(context.Background(), cfg, log, prometheus.NewRegistry())
	s.Require().NoError(err)
	s.server = httptest.NewServer(s.app.handler)
}

func (s *AppSuite) TearDownTest() {
	s.server.Close()
	s.NoError(s.app.close(context.Background()))
}

func (s *AppSuite) call(method, path, body string) *http.Response {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(metadata.CallerHeader, testutil.TestAddresses.Owner.String())
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *AppSuite) TestOpsEndpoints() {
	resp := s.call(http.MethodGet, "/health/ready", "")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.call(http.MethodGet, "/metrics", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "consent_ledger_audit_queue_depth")
}

func (s *AppSuite) TestWiredLedger() {
	resp := s.call(http.MethodPost, "/studies", `{"title":"Gait analysis"}`)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("X-Request-ID"))

	resp = s.call(http.MethodPost, "/studies", `<xml/>`)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/studies", bytes.NewReader([]byte(`{}`)))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(metadata.CallerHeader, testutil.TestAddresses.Owner.String())
	plain, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer plain.Body.Close()
	s.Equal(http.StatusUnsupportedMediaType, plain.StatusCode)
}

func (s *AppSuite) TestDocumentsUseConfiguredBackend() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/documents", strings.NewReader("consent form"))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(metadata.CallerHeader, testutil.TestAddresses.Owner.String())
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var out struct {
		CID string `json:"cid"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.True(strings.HasPrefix(out.CID, "sha256-"))
}
