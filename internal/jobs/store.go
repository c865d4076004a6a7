// Package jobs owns the scheduled-job lifecycle: creation and validation,
// guarded status transitions, and the worker-side runner that claims,
// due-checks, dispatches, and finalizes jobs.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"shiksha/internal/types"
)

// JobDB is the slice of the job repository the store needs.
// Implemented by db.JobRepository.
type JobDB interface {
	Create(ctx context.Context, job *types.ScheduledJob) error
	Get(ctx context.Context, id string) (*types.ScheduledJob, error)
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*types.ScheduledJob, error)
	Transition(ctx context.Context, id string, from, to types.JobStatus, result json.RawMessage, now time.Time) (bool, error)
	GetStatus(ctx context.Context, id string) (types.JobStatus, error)
}

// Store validates and persists scheduled jobs.
type Store struct {
	db              JobDB
	clock           types.Clock
	minScheduleLead time.Duration
	idGen           func() string
}

// NewStore creates a Store. minScheduleLead is the minimum distance into the
// future a deferred job's schedule time must be.
func NewStore(db JobDB, clock types.Clock, minScheduleLead time.Duration) *Store {
	return &Store{
		db:              db,
		clock:           clock,
		minScheduleLead: minScheduleLead,
		idGen:           uuid.NewString,
	}
}

// validTypes mirrors the job_type check constraint on scheduled_jobs.
var validTypes = map[types.JobType]bool{
	types.JobTypeFeeReminder:     true,
	types.JobTypeExamReminder:    true,
	types.JobTypeNoticeBroadcast: true,
	types.JobTypeGeneral:         true,
}

// Create persists a new job in SCHEDULED status. A zero scheduledAt means
// the caller will dispatch immediately; a non-zero one must be at least
// minScheduleLead in the future.
func (s *Store) Create(ctx context.Context, orgID string, jobType types.JobType, payload types.JobPayload, scheduledAt time.Time, createdBy string) (*types.ScheduledJob, error) {
	if orgID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "organization id is required", nil)
	}
	if !validTypes[jobType] {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJobType, "unknown job type", nil,
			map[string]any{"job_type": string(jobType)})
	}
	if len(payload.Recipients) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNoRecipients, "payload has no recipients", nil)
	}
	if len(payload.Channels) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNoChannels, "payload has no channels", nil)
	}
	for _, ch := range payload.Channels {
		if !validChannel(ch) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidChannel, "unknown channel", nil,
				map[string]any{"channel": string(ch)})
		}
	}

	now := s.clock.Now()
	if scheduledAt.IsZero() {
		scheduledAt = now
	} else if scheduledAt.Before(now.Add(s.minScheduleLead)) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationScheduleTooSoon,
			"scheduled time must be further in the future", nil,
			map[string]any{"min_lead": s.minScheduleLead.String()})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "payload not serializable", err)
	}

	job := &types.ScheduledJob{
		ID:             s.idGen(),
		OrganizationID: orgID,
		Type:           jobType,
		Status:         types.JobStatusScheduled,
		Payload:        raw,
		ScheduledAt:    scheduledAt,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns one job by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.ScheduledJob, error) {
	return s.db.Get(ctx, id)
}

// ListByOrg returns an organization's jobs, newest first.
func (s *Store) ListByOrg(ctx context.Context, orgID string, limit int) ([]*types.ScheduledJob, error) {
	return s.db.ListByOrg(ctx, orgID, limit)
}

// Cancel moves a job from SCHEDULED to CANCELLED. A job that has already
// been claimed, finished, or cancelled cannot be cancelled: the guard misses
// and the current status is reported in the conflict error.
func (s *Store) Cancel(ctx context.Context, id string) error {
	ok, err := s.db.Transition(ctx, id, types.JobStatusScheduled, types.JobStatusCancelled, nil, s.clock.Now())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	current, err := s.db.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	return types.NewAppErrorWithDetails(types.ErrCodeConflictJobState,
		"job is no longer cancellable", nil,
		map[string]any{"status": string(current)})
}

func validChannel(ch types.Channel) bool {
	for _, known := range types.AllChannels {
		if ch == known {
			return true
		}
	}
	return false
}
