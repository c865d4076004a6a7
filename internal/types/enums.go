package types

// JobStatus represents the lifecycle state of a scheduled job.
// These values MUST match the CHECK constraint in the scheduled_jobs table.
type JobStatus string

const (
	JobStatusScheduled  JobStatus = "SCHEDULED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobType identifies the kind of work a scheduled job performs.
type JobType string

const (
	JobTypeFeeReminder     JobType = "FEE_REMINDER"
	JobTypeExamReminder    JobType = "EXAM_REMINDER"
	JobTypeNoticeBroadcast JobType = "NOTICE_BROADCAST"
	JobTypeGeneral         JobType = "GENERAL"
)

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelPush     Channel = "PUSH"
)

// AllChannels is the complete set of deliverable channels, in rate-card order.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush}

// SendStatus enumerates the states of a single notification send attempt.
type SendStatus string

const (
	SendStatusPending   SendStatus = "PENDING"
	SendStatusSent      SendStatus = "SENT"
	SendStatusDelivered SendStatus = "DELIVERED"
	SendStatusFailed    SendStatus = "FAILED"
)

// FeeStatus represents the payment state of a student fee record.
type FeeStatus string

const (
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusUnpaid  FeeStatus = "UNPAID"
	FeeStatusOverdue FeeStatus = "OVERDUE"
)

// PaymentStatus represents the review state of a submitted fee payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// ExamStatus represents the lifecycle state of an exam.
// Derived states (UPCOMING, LIVE, COMPLETED) are maintained by the sweeper;
// CANCELLED is operator-set and never overwritten by a sweep.
type ExamStatus string

const (
	ExamStatusScheduled ExamStatus = "SCHEDULED"
	ExamStatusUpcoming  ExamStatus = "UPCOMING"
	ExamStatusLive      ExamStatus = "LIVE"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusCancelled ExamStatus = "CANCELLED"
)

// NoticeStatus represents the publication state of a notice.
type NoticeStatus string

const (
	NoticeStatusDraft     NoticeStatus = "DRAFT"
	NoticeStatusPublished NoticeStatus = "PUBLISHED"
	NoticeStatusExpired   NoticeStatus = "EXPIRED"
)

// SweepTaskType routes an EventBridge maintenance payload to its handler.
// The sweep-runner worker multiplexes on this value.
type SweepTaskType string

const (
	SweepTaskEntitySweep   SweepTaskType = "entity_sweep"
	SweepTaskArchiveSends  SweepTaskType = "archive_sends"
	SweepTaskExportBilling SweepTaskType = "export_billing"
)

// SweepRunStatus records the outcome of a single sweep-rule execution.
type SweepRunStatus string

const (
	SweepRunCompleted SweepRunStatus = "completed"
	SweepRunFailed    SweepRunStatus = "failed"
)
