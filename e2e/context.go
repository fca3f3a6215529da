package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"

	"consent-ledger/internal/blob"
	credhandler "consent-ledger/internal/credential/handler"
	"consent-ledger/internal/credential/issuer"
	"consent-ledger/internal/credential/signer"
	"consent-ledger/internal/credential/verifier"
	ledgerhandler "consent-ledger/internal/ledger/handler"
	"consent-ledger/internal/ledger/service"
	"consent-ledger/internal/ledger/store"
	"consent-ledger/pkg/platform/middleware/metadata"
	"consent-ledger/pkg/platform/middleware/request"
)

const tokenSecret = "e2e-token-secret-0123456789abcdef"

// TestContext holds state for a single scenario
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	// Identities by role name ("owner", "participant", ...).
	Identities map[string]string

	StudyID    uint64
	ConsentID  uint64
	Credential json.RawMessage
	Document   string

	server *httptest.Server
}

// NewTestContext targets BASE_URL when set, otherwise an in-process server
// backed by the memory store.
func NewTestContext() (*TestContext, error) {
	tc := &TestContext{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Identities: map[string]string{
			"owner":       "0x52908400098527886E0F7030069857D2E4169EE7",
			"participant": "0x8617E340B3D01FA5F11F306F4090FD50E238070D",
			"stranger":    "0xde709f2102306220921060314715629080e2fb77",
		},
	}
	if base := os.Getenv("BASE_URL"); base != "" {
		tc.BaseURL = strings.TrimRight(base, "/")
		return tc, nil
	}

	srv, err := newInProcessServer()
	if err != nil {
		return nil, err
	}
	tc.server = srv
	tc.BaseURL = srv.URL
	return tc, nil
}

func newInProcessServer() (*httptest.Server, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	tokenKey, err := signer.NewTokenKey(tokenSecret)
	if err != nil {
		return nil, fmt.Errorf("token key: %w", err)
	}
	s := signer.FromKey(key)
	did, err := s.Identity()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blobs := blob.NewMemory()
	ledger := service.New(store.New(), issuer.New(s, issuer.WithTokenKey(tokenKey)), blobs,
		service.WithLogger(logger),
	)
	v := verifier.New(verifier.WithTokenKey(tokenKey), verifier.WithTrustedIssuers(did))
	meta := metadata.NewMiddleware(metadata.Config{}, logger)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	ledgerhandler.New(ledger, logger).Register(r, meta.RequireCaller)
	credhandler.New(v, blobs, logger).Register(r, meta.RequireCaller)
	return httptest.NewServer(r), nil
}

// Close stops the in-process server, if any.
func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
	}
}

// Address resolves a role name to its address.
func (tc *TestContext) Address(role string) (string, error) {
	addr, ok := tc.Identities[role]
	if !ok {
		return "", fmt.Errorf("unknown identity %q", role)
	}
	return addr, nil
}

// Do sends a request as the named role; an empty role sends no caller header.
func (tc *TestContext) Do(method, path, role string, body any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		addr, err := tc.Address(role)
		if err != nil {
			return err
		}
		req.Header.Set(metadata.CallerHeader, addr)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// GetResponseField extracts a dotted path from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	for _, part := range strings.Split(field, ".") {
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
		data, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
	}

	return data, nil
}

// GetLastResponseStatus returns 0 before any request.
func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}
