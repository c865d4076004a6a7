// Package config defines the global configuration structure for the platform's
// job and notification subsystem. Configuration is loaded once at process
// initialization (Lambda cold start or API boot) and is immutable thereafter.
// It follows 12-Factor App principles by strictly separating code from
// configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"shiksha/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"shiksha-jobs"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Providers ProviderConfig
	Billing   BillingConfig
	Dispatch  DispatchConfig
	Sweep     SweepConfig
}

// ServerConfig holds HTTP server configuration for the API binary.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-south-1"`

	// Resource Identifiers
	JobQueueURL   string `envconfig:"SQS_JOB_QUEUE" validate:"required,url"`
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ProviderConfig holds delivery-provider credentials and sender identities.
type ProviderConfig struct {
	ResendAPIKey   SecretString `envconfig:"RESEND_API_KEY" validate:"required"`
	EmailFrom      string       `envconfig:"EMAIL_FROM_ADDRESS" default:"noreply@shiksha.cloud"`
	EmailFromName  string       `envconfig:"EMAIL_FROM_NAME" default:"Shiksha"`
	Fast2SMSAPIKey SecretString `envconfig:"FAST2SMS_API_KEY" validate:"required"`
	SMSSenderID    string       `envconfig:"SMS_SENDER_ID" default:"SHIKSH"`
	WhatsAppToken  SecretString `envconfig:"WHATSAPP_ACCESS_TOKEN" validate:"required"`
	WhatsAppPhone  string       `envconfig:"WHATSAPP_PHONE_NUMBER_ID" validate:"required"`
	FCMServerKey   SecretString `envconfig:"FCM_SERVER_KEY"`
}

// BillingConfig holds Stripe integration credentials for usage export.
type BillingConfig struct {
	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY"`
}

// DispatchConfig holds notification dispatch tuning parameters.
type DispatchConfig struct {
	// PerSendTimeout bounds each provider call so one hung send cannot
	// stall the whole job.
	PerSendTimeout time.Duration `envconfig:"DISPATCH_SEND_TIMEOUT" default:"10s"`

	// MinScheduleLead is the minimum lead time for deferred jobs.
	MinScheduleLead time.Duration `envconfig:"DISPATCH_MIN_SCHEDULE_LEAD" default:"2m"`
}

// SweepConfig holds entity-sweep and maintenance tuning parameters.
type SweepConfig struct {
	// PaymentReviewWindow is how long a submitted payment may sit in
	// PENDING before the sweep marks it FAILED.
	PaymentReviewWindow time.Duration `envconfig:"SWEEP_PAYMENT_REVIEW_WINDOW" default:"72h"`

	// SendRetention is how long notification_sends rows stay hot before
	// the archive task exports and deletes them.
	SendRetention time.Duration `envconfig:"SWEEP_SEND_RETENTION" default:"2160h"` // 90 days

	// ArchiveBatchSize bounds rows per archive export batch.
	ArchiveBatchSize int `envconfig:"SWEEP_ARCHIVE_BATCH_SIZE" default:"5000"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
