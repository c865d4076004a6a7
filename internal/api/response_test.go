package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiksha/internal/types"
)

func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestError_AppErrorMapsStatusAndDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req_42"))
	rr := httptest.NewRecorder()

	Error(rr, req, types.NewAppErrorWithDetails(types.ErrCodeConflictJobState,
		"job is no longer cancellable", nil,
		map[string]any{"status": "COMPLETED"}))

	assert.Equal(t, http.StatusConflict, rr.Code)
	resp := decodeErrorBody(t, rr)
	assert.Equal(t, string(types.ErrCodeConflictJobState), resp.Error.Code)
	assert.Equal(t, "req_42", resp.Error.RequestID)
	assert.Equal(t, "COMPLETED", resp.Error.Details["status"])
}

func TestError_WrappedAppErrorIsUnwrapped(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	inner := types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	Error(rr, req, errors.Join(errors.New("handler context"), inner))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestError_GenericErrorHidesDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	Error(rr, req, errors.New("pgx: connection refused to 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decodeErrorBody(t, rr)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"type":"GENERAL","surprise":true}`))
	rr := httptest.NewRecorder()

	var dst CreateJobRequest
	err := DecodeJSON(rr, req, &dst)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
	assert.Contains(t, appErr.Message, "unknown field")
}

func TestDecodeJSON_RejectsEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(""))
	rr := httptest.NewRecorder()

	var dst CreateJobRequest
	err := DecodeJSON(rr, req, &dst)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "must not be empty")
}

func TestDecodeJSON_RejectsMultipleValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"type":"GENERAL"} {"type":"GENERAL"}`))
	rr := httptest.NewRecorder()

	var dst CreateJobRequest
	err := DecodeJSON(rr, req, &dst)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "single JSON object")
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	huge := `{"type":"` + strings.Repeat("a", maxRequestBodySize+1) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(huge))
	rr := httptest.NewRecorder()

	var dst CreateJobRequest
	err := DecodeJSON(rr, req, &dst)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "1MB")
}

func TestDecodeJSON_TypeMismatchNamesField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"type":123}`))
	rr := httptest.NewRecorder()

	var dst CreateJobRequest
	err := DecodeJSON(rr, req, &dst)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "type", appErr.Details["field"])
}

func TestValidator_FieldPathsAreLowercased(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(CreateJobRequest{CreatedBy: strings.Repeat("x", 200)})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
	assert.Equal(t, "required", appErr.Details["type"])
	assert.Equal(t, "max", appErr.Details["createdby"])
}
