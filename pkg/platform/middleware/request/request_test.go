package request

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consent-ledger/pkg/requestcontext"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.RequestID(r.Context())
	}))

	t.Run("generates a UUID when absent", func(t *testing.T) {
		w := serve(handler, httptest.NewRequest(http.MethodGet, "/studies", nil))
		assert.Len(t, captured, 36)
		assert.Equal(t, captured, w.Header().Get("X-Request-ID"))
	})

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"plain", "grant-42", true},
		{"dots and underscores", "trace.span_1", true},
		{"at max length", strings.Repeat("a", MaxRequestIDLength), true},
		{"over max length", strings.Repeat("a", MaxRequestIDLength+1), false},
		{"newline", "ok\ninjected", false},
		{"space", "has space", false},
		{"quote", `has"quote`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/studies", nil)
			req.Header.Set("X-Request-ID", tt.header)
			w := serve(handler, req)

			if tt.keep {
				assert.Equal(t, tt.header, captured)
				return
			}
			assert.NotEqual(t, tt.header, captured)
			assert.Len(t, w.Header().Get("X-Request-ID"), 36)
		})
	}
}

func TestRequestTimePinsClock(t *testing.T) {
	var first, second time.Time
	handler := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(2 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	serve(handler, httptest.NewRequest(http.MethodPost, "/consents/1/grant", nil))

	assert.False(t, first.IsZero())
	assert.Equal(t, first, second)
	assert.Equal(t, time.UTC, first.Location())
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/studies", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestLoggerSkipsHealthyProbes(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/studies" {
			w.WriteHeader(http.StatusCreated)
		}
	}))

	serve(handler, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, logs.String())

	serve(handler, httptest.NewRequest(http.MethodPost, "/studies", nil))
	assert.Contains(t, logs.String(), `"status":201`)
	assert.Contains(t, logs.String(), `"remote_addr_prefix":"unknown"`)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method      string
		contentType string
		want        int
	}{
		{http.MethodPost, "application/json", http.StatusNoContent},
		{http.MethodPost, "application/json; charset=utf-8", http.StatusNoContent},
		{http.MethodPost, "", http.StatusNoContent},
		{http.MethodPut, "text/plain", http.StatusUnsupportedMediaType},
		{http.MethodGet, "text/plain", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/studies", nil)
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		assert.Equal(t, tt.want, serve(handler, req).Code, "%s %q", tt.method, tt.contentType)
	}
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	ok := serve(handler, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(strings.Repeat("x", 16))))
	assert.Equal(t, http.StatusOK, ok.Code)

	tooBig := serve(handler, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(strings.Repeat("x", 17))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, tooBig.Code)
}

func TestLatencyUsesRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(m))
	r.Get("/consents/{consentID}", func(w http.ResponseWriter, _ *http.Request) {})

	serve(r, httptest.NewRequest(http.MethodGet, "/consents/1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/consents/2", nil))

	count := promtest.CollectAndCount(m.EndpointLatency)
	require.Equal(t, 1, count)
}
