package types

import (
	"encoding/json"
	"time"
)

// ScheduledJob is the durable record of a deferred or in-flight notification job.
// Status transitions are guarded by conditional updates in the repository layer;
// the struct itself carries no transition logic.
type ScheduledJob struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Type           JobType   `json:"type" db:"type"`
	Status         JobStatus `json:"status" db:"status"`

	// Payload holds the JobPayload JSONB contract between intake and runner.
	// Kept raw here so the repository never needs to understand its schema.
	Payload json.RawMessage `json:"payload" db:"payload"`

	// Result is populated on terminal transition: a DispatchResult for
	// COMPLETED, an error summary for FAILED.
	Result json.RawMessage `json:"result,omitempty" db:"result"`

	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// JobPayload is the schema stored in the scheduled_jobs.payload JSONB column.
// This is the CRITICAL contract between the intake API and the job runner.
type JobPayload struct {
	Recipients   []Recipient `json:"recipients"`
	Channels     []Channel   `json:"channels"`
	Subject      string      `json:"subject,omitempty"`
	Message      string      `json:"message"`
	TemplateType string      `json:"template_type,omitempty"`
}

// Recipient carries everything needed to personalize and deliver one
// notification: the student context plus per-channel destinations.
type Recipient struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Grade       string `json:"grade,omitempty"`
	Section     string `json:"section,omitempty"`

	ParentName     string `json:"parent_name,omitempty"`
	ParentEmail    string `json:"parent_email,omitempty"`
	ParentPhone    string `json:"parent_phone,omitempty"`
	ParentWhatsApp string `json:"parent_whatsapp,omitempty"`
	DeviceToken    string `json:"device_token,omitempty"`

	// Fee-reminder context for placeholder substitution.
	AmountDue float64 `json:"amount_due,omitempty"`
	DueDate   string  `json:"due_date,omitempty"`
}

// Destination returns the recipient's address for the given channel,
// or "" when the recipient has no destination on that channel.
func (r Recipient) Destination(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return r.ParentEmail
	case ChannelSMS:
		return r.ParentPhone
	case ChannelWhatsApp:
		if r.ParentWhatsApp != "" {
			return r.ParentWhatsApp
		}
		return r.ParentPhone
	case ChannelPush:
		return r.DeviceToken
	default:
		return ""
	}
}

// NotificationSend is the per-attempt delivery record: one row per
// (recipient, channel) pair, written synchronously during dispatch.
// Units and cost are captured at send time so billing never re-derives them.
type NotificationSend struct {
	ID             string     `json:"id" db:"id"`
	JobID          *string    `json:"job_id,omitempty" db:"job_id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	RecipientID    string     `json:"recipient_id" db:"recipient_id"`
	Channel        Channel    `json:"channel" db:"channel"`
	Status         SendStatus `json:"status" db:"status"`

	Units     int   `json:"units" db:"units"`
	CostPaise int64 `json:"cost_paise" db:"cost_paise"`

	SentAt            time.Time `json:"sent_at" db:"sent_at"`
	ErrorDetail       string    `json:"error_detail,omitempty" db:"error_detail"`
	ProviderMessageID string    `json:"provider_message_id,omitempty" db:"provider_message_id"`
}

// DispatchResult aggregates the outcome of one dispatch operation.
// Serialized into scheduled_jobs.result on job completion.
type DispatchResult struct {
	SentCount      int   `json:"sent_count"`
	FailedCount    int   `json:"failed_count"`
	TotalCostPaise int64 `json:"total_cost_paise"`
}

// SendResult is the outcome of a single provider send call.
type SendResult struct {
	ProviderMessageID string
	Status            SendStatus
	FailureReason     string
	Retryable         bool
}

// ChannelUsage is the per-channel slice of a billing summary.
type ChannelUsage struct {
	Units     int64 `json:"units"`
	CostPaise int64 `json:"cost_paise"`
}

// BillingSummary is the tenant-facing usage report for one billing period.
// All fields are zero-valued when the organization has no activity.
type BillingSummary struct {
	OrganizationID string    `json:"organization_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`

	Email    ChannelUsage `json:"email"`
	SMS      ChannelUsage `json:"sms"`
	WhatsApp ChannelUsage `json:"whatsapp"`
	Push     ChannelUsage `json:"push"`

	TotalStorageMB float64 `json:"total_storage_mb"`
	TotalCostPaise int64   `json:"total_cost_paise"`
}

// Usage returns a pointer to the ChannelUsage slot for the given channel,
// or nil for an unknown channel.
func (b *BillingSummary) Usage(ch Channel) *ChannelUsage {
	switch ch {
	case ChannelEmail:
		return &b.Email
	case ChannelSMS:
		return &b.SMS
	case ChannelWhatsApp:
		return &b.WhatsApp
	case ChannelPush:
		return &b.Push
	default:
		return nil
	}
}

// Organization is the tenant record as seen by this subsystem: identity,
// notification timezone, and billing linkage. Ownership of the full profile
// lives elsewhere in the platform.
type Organization struct {
	ID               string     `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	Timezone         string     `json:"timezone" db:"timezone"`
	BillingEmail     string     `json:"billing_email" db:"billing_email"`
	StripeCustomerID string     `json:"-" db:"stripe_customer_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	DeletedAt        *time.Time `json:"-" db:"deleted_at"`
}

// SweepRun tracks one execution of a sweep rule or maintenance task.
type SweepRun struct {
	ID         int64           `json:"id" db:"id"`
	RuleName   string          `json:"rule_name" db:"rule_name"`
	StartedAt  time.Time       `json:"started_at" db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at" db:"finished_at"`
	Status     SweepRunStatus  `json:"status" db:"status"`
	ItemsCount int64           `json:"items_count" db:"items_count"`
	Error      string          `json:"error,omitempty" db:"error"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}
