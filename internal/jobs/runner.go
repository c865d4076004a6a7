package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shiksha/internal/types"
)

// Publisher re-enqueues a JobMessage when a job is not yet due.
// Implemented by queue.JobPublisher.
type Publisher interface {
	Publish(ctx context.Context, msg types.JobMessage, delay time.Duration) error
}

// Dispatcher fans a job's payload out to its recipients and channels.
// Implemented by notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *types.ScheduledJob, payload types.JobPayload) (*types.DispatchResult, error)
}

// Runner drives one job through its worker-side lifecycle: claim, due-check,
// dispatch, finalize. Every phase tolerates re-delivery of the same message;
// the conditional-update guard in the repository is what makes a twin
// delivery harmless.
type Runner struct {
	db        JobDB
	publisher Publisher
	dispatch  Dispatcher
	clock     types.Clock
	logger    types.Logger
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(db JobDB, publisher Publisher, dispatch Dispatcher, clock types.Clock, logger types.Logger) *Runner {
	return &Runner{
		db:        db,
		publisher: publisher,
		dispatch:  dispatch,
		clock:     clock,
		logger:    logger,
	}
}

// jobResult is the JSON blob stored in scheduled_jobs.result at finalization.
type jobResult struct {
	SentCount      int    `json:"sent_count"`
	FailedCount    int    `json:"failed_count"`
	TotalCostPaise int64  `json:"total_cost_paise"`
	Error          string `json:"error,omitempty"`
}

// Process handles one JobMessage receipt. A nil return removes the message
// from the queue; an error return lets SQS redeliver it.
func (r *Runner) Process(ctx context.Context, msg types.JobMessage) error {
	logger := r.logger.With("job_id", msg.JobID, "trace_id", msg.TraceID, "attempt", msg.Attempt)

	job, err := r.db.Get(ctx, msg.JobID)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundJob {
			// The row is gone; redelivering the message cannot help.
			logger.Warn("job message references missing job, dropping")
			return nil
		}
		return err
	}

	// Claim. A guard miss means someone else got here first: a twin delivery
	// racing us, or the job was cancelled while the message was in flight.
	claimed, err := r.db.Transition(ctx, job.ID, types.JobStatusScheduled, types.JobStatusProcessing, nil, r.clock.Now())
	if err != nil {
		return err
	}
	if !claimed {
		status, err := r.db.GetStatus(ctx, job.ID)
		if err != nil {
			return err
		}
		switch {
		case status == types.JobStatusProcessing:
			// A previous receipt claimed but died before finalizing. Resume:
			// the dispatcher claims each (recipient, channel) pair before
			// calling the provider, so pairs the dead receipt already
			// recorded are skipped rather than sent again.
			logger.Warn("resuming job already in processing")
		case status.Terminal():
			logger.Info("job already finalized, dropping message", "status", string(status))
			return nil
		default:
			return types.NewAppErrorWithDetails(types.ErrCodeConflictConcurrent,
				"job claim failed with non-terminal status", nil,
				map[string]any{"status": string(status)})
		}
	}

	// Due-check. SQS caps DelaySeconds at 15 minutes, so a far-future job
	// hops through the queue: each receipt re-publishes with the remaining
	// delay until the schedule time arrives.
	now := r.clock.Now()
	if remaining := job.ScheduledAt.Sub(now); remaining > 0 {
		if claimed {
			// Give the claim back so the next hop can take it.
			if _, err := r.db.Transition(ctx, job.ID, types.JobStatusProcessing, types.JobStatusScheduled, nil, now); err != nil {
				return err
			}
		}
		delay := remaining
		if delay > 900*time.Second {
			delay = 900 * time.Second
		}
		logger.Info("job not yet due, re-publishing", "remaining", remaining.String(), "delay", delay.String())
		return r.publisher.Publish(ctx, msg, delay)
	}

	var payload types.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		logger.Error("job payload unparseable", "error", err.Error())
		return r.finalize(ctx, job.ID, types.JobStatusFailed, jobResult{Error: "payload unparseable: " + err.Error()}, logger)
	}
	if len(payload.Recipients) == 0 {
		// Permanent: retrying an empty payload can never succeed.
		return r.finalize(ctx, job.ID, types.JobStatusFailed, jobResult{Error: "payload has no recipients"}, logger)
	}

	result, dispatchErr := r.dispatch.Dispatch(ctx, job, payload)
	if dispatchErr != nil && result == nil {
		return dispatchErr
	}

	outcome := jobResult{
		SentCount:      result.SentCount,
		FailedCount:    result.FailedCount,
		TotalCostPaise: result.TotalCostPaise,
	}
	if dispatchErr != nil {
		outcome.Error = dispatchErr.Error()
	}

	// COMPLETED iff at least one send went out; a fan-out where every single
	// attempt failed is a job failure, and permanent: the sends are already
	// recorded, so redelivery would double-send nothing and fix nothing.
	status := types.JobStatusCompleted
	if result.SentCount == 0 {
		status = types.JobStatusFailed
		if outcome.Error == "" {
			outcome.Error = "all delivery attempts failed"
		}
	}
	return r.finalize(ctx, job.ID, status, outcome, logger)
}

func (r *Runner) finalize(ctx context.Context, jobID string, status types.JobStatus, outcome jobResult, logger types.Logger) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	ok, err := r.db.Transition(ctx, jobID, types.JobStatusProcessing, status, raw, r.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		// A twin delivery finalized first. Its result row stands.
		logger.Warn("finalize guard miss, job already finalized")
		return nil
	}

	logger.Info("job finalized",
		"status", string(status),
		"sent", outcome.SentCount,
		"failed", outcome.FailedCount,
		"cost_paise", outcome.TotalCostPaise,
	)
	return nil
}
