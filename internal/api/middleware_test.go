package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiksha/internal/types"
)

func TestRequestIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-Id"))
}

func TestRequestIDMiddleware_PropagatesIncoming(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-Id", "upstream_77")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "upstream_77", seen)
	assert.Equal(t, "upstream_77", rr.Header().Get("X-Request-Id"))
}

func TestOrganizationMiddleware_StoresTenant(t *testing.T) {
	var seen string
	handler := OrganizationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetOrganizationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(orgHeader, "org_1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "org_1", seen)
}

func TestOrganizationMiddleware_RejectsMissingHeader(t *testing.T) {
	handler := OrganizationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without tenant context")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), string(types.ErrCodePermissionOrgMismatch))
}

func TestRecoverer_ConvertsPanicTo500(t *testing.T) {
	var logBuf bytes.Buffer
	s := &Server{Logger: slog.New(slog.NewTextHandler(&logBuf, nil))}

	handler := s.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), string(types.ErrCodeInternalUnexpected))
	assert.NotContains(t, rr.Body.String(), "boom", "panic value must not leak to the client")
	assert.Contains(t, logBuf.String(), "panic recovered")
}

func TestRequestLogger_RedactsSensitiveHeaders(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	handler := RequestLogger(logger, []string{"Authorization"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer s3cret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	logged := logBuf.String()
	assert.Contains(t, logged, "REDACTED")
	assert.NotContains(t, logged, "s3cret-token")
	assert.Contains(t, logged, "status=200")
}

func TestRequestLogger_LogsErrorLevelFor5xx(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	handler := RequestLogger(logger, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Contains(t, logBuf.String(), "level=ERROR")
	assert.Contains(t, logBuf.String(), "status=502")
}

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string                    { return p.name }
func (p stubProbe) Check(ctx context.Context) error { return p.err }

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := &Server{HealthProbes: []HealthProbe{stubProbe{name: "database"}, stubProbe{name: "sqs"}}}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.HandleHealth(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rr.Body.String(), "database")
}

func TestHandleHealth_UnhealthyProbeYields503(t *testing.T) {
	s := &Server{HealthProbes: []HealthProbe{
		stubProbe{name: "database"},
		stubProbe{name: "sqs", err: errors.New("dial timeout")},
	}}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.HandleHealth(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "dial timeout"))
}

func TestHandleHealth_NoProbes(t *testing.T) {
	s := &Server{}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.HandleHealth(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
