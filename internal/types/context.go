package types

import "context"

// Context Keys
type contextKey string

const (
	orgIDKey     contextKey = "organization_id"
	requestIDKey contextKey = "request_id"
)

// WithOrganizationID stores the tenant ID in the context. Set by the API
// middleware from the trusted organization header.
func WithOrganizationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, orgIDKey, id)
}

// GetOrganizationID retrieves the tenant ID from the context.
func GetOrganizationID(ctx context.Context) string {
	id, _ := ctx.Value(orgIDKey).(string)
	return id
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
