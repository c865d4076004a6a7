package types

import "time"

// JobMessage is the SQS payload that wakes the notify-worker for one job.
// It intentionally carries identity only: the worker re-reads the job row
// so a stale message can never dispatch a cancelled or already-run job.
type JobMessage struct {
	JobID          string `json:"job_id"`
	OrganizationID string `json:"organization_id"`

	// TraceID correlates the original intake request with worker logs.
	TraceID string `json:"trace_id"`

	// Attempt counts re-publish hops. A job deferred beyond the SQS delay
	// ceiling re-enters the queue with Attempt incremented each hop.
	Attempt int `json:"attempt"`
}

// SweepTaskPayload is the EventBridge input for the sweep-runner worker.
// TaskType selects the handler; the remaining fields scope it.
type SweepTaskPayload struct {
	TaskType SweepTaskType `json:"task_type"`

	// Rule restricts an entity_sweep to a single named rule. Empty runs all.
	Rule string `json:"rule,omitempty"`

	// Period overrides the billing period for export_billing (month start,
	// UTC). Zero means the previous calendar month.
	Period time.Time `json:"period,omitempty"`
}
