package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"shiksha/internal/queue"
	"shiksha/internal/types"
)

// defaultListLimit and maxListLimit bound GET /v1/jobs page sizes.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// JobService is the intake slice of the job store.
// Implemented by jobs.Store.
type JobService interface {
	Create(ctx context.Context, orgID string, jobType types.JobType, payload types.JobPayload, scheduledAt time.Time, createdBy string) (*types.ScheduledJob, error)
	Get(ctx context.Context, id string) (*types.ScheduledJob, error)
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*types.ScheduledJob, error)
	Cancel(ctx context.Context, id string) error
}

// JobExecutor runs one job end to end: claim, dispatch, finalize.
// Implemented by jobs.Runner, shared with the queue worker so the immediate
// path and the deferred path obey the same lifecycle guards.
type JobExecutor interface {
	Process(ctx context.Context, msg types.JobMessage) error
}

// JobEnqueuer publishes a job message for deferred execution.
// Implemented by queue.JobPublisher.
type JobEnqueuer interface {
	Publish(ctx context.Context, msg types.JobMessage, delay time.Duration) error
}

// CreateJobRequest is the request body for POST /v1/jobs.
//
// A nil ScheduledAt selects the immediate path: the job is created and
// dispatched synchronously, and the response carries the delivery result.
// A set ScheduledAt defers the job onto the queue.
type CreateJobRequest struct {
	Type        string           `json:"type" validate:"required"`
	Payload     types.JobPayload `json:"payload" validate:"required"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	CreatedBy   string           `json:"created_by,omitempty" validate:"omitempty,max=100"`
}

// JobHandler serves the scheduled-job intake and status endpoints.
type JobHandler struct {
	jobs      JobService
	executor  JobExecutor
	enqueuer  JobEnqueuer
	validator *Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewJobHandler creates a JobHandler with the provided dependencies.
func NewJobHandler(jobs JobService, executor JobExecutor, enqueuer JobEnqueuer, v *Validator, clock types.Clock, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		jobs:      jobs,
		executor:  executor,
		enqueuer:  enqueuer,
		validator: v,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the job routes on the provided chi.Router.
func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Cancel)
		})
	})
}

// Create handles POST /v1/jobs.
//
// Immediate jobs (no scheduled_at) are created and executed in-request: the
// executor claims the row, fans out deliveries, and finalizes it, so the 201
// response already carries the terminal status and result. Deferred jobs are
// created in SCHEDULED status and a queue message is published with a delay
// covering as much of the wait as the queue allows; the worker re-publishes
// for longer waits.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	var req CreateJobRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		Error(w, r, err)
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	job, err := h.jobs.Create(r.Context(), orgID, types.JobType(req.Type), req.Payload, scheduledAt, req.CreatedBy)
	if err != nil {
		Error(w, r, err)
		return
	}

	msg := types.JobMessage{
		JobID:          job.ID,
		OrganizationID: orgID,
		TraceID:        types.GetRequestID(r.Context()),
	}

	if req.ScheduledAt == nil {
		if err := h.executor.Process(r.Context(), msg); err != nil {
			Error(w, r, err)
			return
		}
		// Re-read for the terminal status and stored result.
		job, err = h.jobs.Get(r.Context(), job.ID)
		if err != nil {
			Error(w, r, err)
			return
		}
		JSON(w, r, http.StatusCreated, APIResponse{Data: job})
		return
	}

	delay := queue.DelayUntil(job.ScheduledAt, h.clock.Now())
	if err := h.enqueuer.Publish(r.Context(), msg, delay); err != nil {
		// The row exists and stays SCHEDULED; a later requeue can pick it up,
		// but the caller should know the enqueue failed.
		h.logger.Error("job created but enqueue failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusCreated, APIResponse{Data: job})
}

// Get handles GET /v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.fetchOwned(r, chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: job})
}

// List handles GET /v1/jobs. Accepts an optional limit query parameter.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				"limit must be a positive integer", nil,
				map[string]any{"limit": raw}))
			return
		}
		limit = n
		if limit > maxListLimit {
			limit = maxListLimit
		}
	}

	jobs, err := h.jobs.ListByOrg(r.Context(), orgID, limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: jobs})
}

// Cancel handles DELETE /v1/jobs/{id}. Only SCHEDULED jobs can be cancelled;
// a job that has been claimed or finished yields a 409 with its current status.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.fetchOwned(r, id); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.jobs.Cancel(r.Context(), id); err != nil {
		Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// fetchOwned loads a job and enforces that it belongs to the caller's tenant.
func (h *JobHandler) fetchOwned(r *http.Request, id string) (*types.ScheduledJob, error) {
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != types.GetOrganizationID(r.Context()) {
		return nil, types.NewAppError(types.ErrCodePermissionOrgMismatch,
			"job belongs to a different organization", nil)
	}
	return job, nil
}
