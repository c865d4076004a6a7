package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"shiksha/internal/types"
)

// Request bodies above this size are rejected before decoding.
const maxRequestBodySize = 1 << 20

// APIResponse wraps every successful payload.
type APIResponse struct {
	Data any `json:"data,omitempty"`
}

// APIErrorResponse wraps every error payload.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing shape of a failure. RequestID lets support
// correlate a client report with the server-side log line.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// errCodeValidationInvalidJSON is local to the API chassis: malformed input
// never reaches the domain layers, so the domain error set does not carry it.
const errCodeValidationInvalidJSON types.ErrorCode = "validation_invalid_json"

// JSON writes data with the given status. A marshal failure degrades to a
// 500 error envelope rather than a half-written body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to marshal response",
			RequestID: types.GetRequestID(r.Context()),
		}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error maps err onto the wire. An AppError anywhere in the chain supplies
// the status code and the structured detail; anything else is reported as a
// bare 500 so internal messages never reach the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: types.GetRequestID(r.Context()),
	}
	status := http.StatusInternalServerError

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
		status = appErr.HTTPStatus()
	}

	JSON(w, r, status, APIErrorResponse{Error: detail})
}

// DecodeJSON reads the body into dst under the size cap, rejecting unknown
// fields and trailing values. All violations surface as
// "validation_invalid_json" AppErrors, which render as 400s.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return badJSON("request body must contain a single JSON object", nil)
	}
	return nil
}

func badJSON(msg string, cause error) *types.AppError {
	return types.NewAppError(errCodeValidationInvalidJSON, msg, cause)
}

// mapDecodeError classifies a json.Decoder failure into a client-actionable
// message. The decoder reports unknown fields only as a formatted string, so
// that case is matched on the message prefix.
func mapDecodeError(err error) *types.AppError {
	var (
		maxBytesErr *http.MaxBytesError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return badJSON("request body must not exceed 1MB", err)
	case errors.As(err, &syntaxErr):
		return badJSON("malformed JSON in request body", err)
	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(
			errCodeValidationInvalidJSON,
			"invalid value for field",
			err,
			map[string]any{"field": typeErr.Field, "expected": typeErr.Type.String()},
		)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		name := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return badJSON("unknown field in request body: "+name, err)
	case errors.Is(err, io.EOF):
		return badJSON("request body must not be empty", err)
	default:
		return badJSON("invalid JSON in request body", err)
	}
}
