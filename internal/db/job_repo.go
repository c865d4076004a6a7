package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"shiksha/internal/types"
)

// JobRepository provides data access for the scheduled_jobs table.
// Lifecycle transitions go exclusively through Transition, which applies an
// optimistic guard (UPDATE ... WHERE status = expected) so two concurrent
// workers can never both advance the same job.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, organization_id, type, status, payload, result,
	scheduled_at, created_by, created_at, updated_at`

// Create inserts a new scheduled job row. The caller supplies the fully
// populated job (ID, status, timestamps); this method performs no defaulting.
func (r *JobRepository) Create(ctx context.Context, job *types.ScheduledJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO scheduled_jobs
		 (id, organization_id, type, status, payload, scheduled_at, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		job.ID,
		job.OrganizationID,
		string(job.Type),
		string(job.Status),
		[]byte(job.Payload),
		job.ScheduledAt,
		job.CreatedBy,
		job.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create scheduled job", err)
	}
	return nil
}

// Get returns a single job by ID, or ErrCodeNotFoundJob if no row exists.
func (r *JobRepository) Get(ctx context.Context, id string) (*types.ScheduledJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = $1`,
		id,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "scheduled job not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query scheduled job", err)
	}
	return job, nil
}

// ListByOrg returns jobs for an organization, newest first, bounded by limit.
// A zero or negative limit defaults to 50.
func (r *JobRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*types.ScheduledJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs
		 WHERE organization_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		orgID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scheduled jobs", err)
	}
	defer rows.Close()

	var jobs []*types.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan scheduled job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating scheduled jobs", err)
	}
	return jobs, nil
}

// Transition performs the guarded status transition in a single conditional
// update and reports whether the guard matched.
//
// SQL pattern:
//
//	UPDATE scheduled_jobs
//	SET status = $3, result = COALESCE($4, result), updated_at = $5
//	WHERE id = $1 AND status = $2
//
// RowsAffected is 1 when the row was in the expected state and has been
// advanced, 0 when another worker got there first (or the job is in a
// different state entirely). The caller decides what a miss means.
func (r *JobRepository) Transition(ctx context.Context, id string, from, to types.JobStatus, result json.RawMessage, now time.Time) (bool, error) {
	var resultArg any
	if result != nil {
		resultArg = []byte(result)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE scheduled_jobs
		 SET status = $3, result = COALESCE($4, result), updated_at = $5
		 WHERE id = $1 AND status = $2`,
		id,
		string(from),
		string(to),
		resultArg,
		now,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to transition scheduled job", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetStatus returns just the current status of a job. Used by the runner to
// resolve a guard miss without re-reading the full payload.
func (r *JobRepository) GetStatus(ctx context.Context, id string) (types.JobStatus, error) {
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT status FROM scheduled_jobs WHERE id = $1`,
		id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundJob, "scheduled job not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to query job status", err)
	}
	return types.JobStatus(status), nil
}

// scanJob scans one scheduled_jobs row from a pgx.Row or pgx.Rows.
func scanJob(row pgx.Row) (*types.ScheduledJob, error) {
	var (
		job     types.ScheduledJob
		jobType string
		status  string
		payload []byte
		result  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&jobType,
		&status,
		&payload,
		&result,
		&job.ScheduledAt,
		&job.CreatedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Type = types.JobType(jobType)
	job.Status = types.JobStatus(status)
	job.Payload = payload
	job.Result = result
	return &job, nil
}
