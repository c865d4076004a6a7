package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode categorizes an application error. The prefix of a code
// (validation_, permission_, not_found_, conflict_, upstream_, internal_)
// determines its HTTP status, so new codes pick their prefix deliberately.
type ErrorCode string

// Error codes are closed: handlers and services use these constants, never
// ad-hoc strings, so clients can match on them.
const (
	// Validation (400)
	ErrCodeValidationMissingField    ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJobType  ErrorCode = "validation_invalid_job_type"
	ErrCodeValidationInvalidChannel  ErrorCode = "validation_invalid_channel"
	ErrCodeValidationNoRecipients    ErrorCode = "validation_no_recipients"
	ErrCodeValidationNoChannels      ErrorCode = "validation_no_channels"
	ErrCodeValidationScheduleTooSoon ErrorCode = "validation_schedule_too_soon"
	ErrCodeValidationInvalidPayload  ErrorCode = "validation_invalid_payload"
	ErrCodeValidationInvalidPeriod   ErrorCode = "validation_invalid_period"

	// Permission (403)
	ErrCodePermissionOrgMismatch ErrorCode = "permission_organization_mismatch"

	// Not Found (404)
	ErrCodeNotFoundJob ErrorCode = "not_found_job"
	ErrCodeNotFoundOrg ErrorCode = "not_found_organization"

	// Conflict (409)
	ErrCodeConflictJobState   ErrorCode = "conflict_job_state"
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamEmail       ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamSMS         ErrorCode = "upstream_sms_provider_unavailable"
	ErrCodeUpstreamWhatsApp    ErrorCode = "upstream_whatsapp_provider_unavailable"
	ErrCodeUpstreamPush        ErrorCode = "upstream_push_provider_unavailable"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"

	// Delivery-specific
	ErrCodeRecipientBlocked   ErrorCode = "recipient_blocked"
	ErrCodeDestinationMissing ErrorCode = "destination_missing"
)

// HTTPStatus maps the code to a response status by prefix. Rate limiting is
// the one upstream code that surfaces as 429 instead of 502. Unknown codes
// fall back to 500.
func (c ErrorCode) HTTPStatus() int {
	if c == ErrCodeUpstreamRateLimited {
		return http.StatusTooManyRequests
	}
	for _, m := range statusByPrefix {
		if strings.HasPrefix(string(c), m.prefix) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

var statusByPrefix = []struct {
	prefix string
	status int
}{
	{"validation_", http.StatusBadRequest},
	{"permission_", http.StatusForbidden},
	{"not_found_", http.StatusNotFound},
	{"conflict_", http.StatusConflict},
	{"upstream_", http.StatusBadGateway},
	{"internal_", http.StatusInternalServerError},
}

// AppError carries a code, a client-safe message, structured details, and
// the wrapped cause. Everything the service returns across a package
// boundary is an AppError; the raw cause stays server-side.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy with details merged over the existing ones.
// The receiver is not mutated; shared sentinel errors stay immutable.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	clone := *e
	clone.Details = merged
	return &clone
}

// NewAppError wraps err (which may be nil) under a coded, client-safe message.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails is NewAppError plus structured detail fields that
// render in the API error envelope.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}
