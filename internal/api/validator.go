package api

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"shiksha/internal/types"
)

// Validator wraps go-playground/validator and translates its field errors
// into the AppError taxonomy so handlers never leak validator internals.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct validates a request DTO against its struct tags. On failure
// it returns a 400 AppError whose details map each offending field (JSON-ish
// lowercased path) to the failed rule.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the DTO itself is broken, not the input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
		"request failed validation", err, details)
}

// fieldPath strips the top-level struct name from the validator namespace and
// lowercases it: "CreateJobRequest.Payload.Message" becomes "payload.message".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}
