package db

import (
	"context"
	"time"

	"shiksha/internal/types"
)

// SweepLockRepository provides distributed locking via the sweep_locks table.
// The locking mechanism uses INSERT ... ON CONFLICT DO UPDATE to atomically
// acquire a lock, ensuring only one worker execution runs a given sweep task
// within a time window.
type SweepLockRepository struct {
	db DBTX
}

// NewSweepLockRepository creates a new SweepLockRepository backed by the
// given database connection (pool or transaction).
func NewSweepLockRepository(db DBTX) *SweepLockRepository {
	return &SweepLockRepository{db: db}
}

// Acquire attempts to insert a lock row. Returns true if acquired, false if
// the lock already exists and has not expired. The lockID is typically
// "task_type:timestamp_hour" (e.g., "entity_sweep:2026-08-31T03").
//
// SQL pattern:
//
//	INSERT INTO sweep_locks (id, worker_id, locked_at, expires_at)
//	VALUES ($1, $2, $3, $4)
//	ON CONFLICT (id) DO UPDATE
//	  SET worker_id = EXCLUDED.worker_id,
//	      locked_at = EXCLUDED.locked_at,
//	      expires_at = EXCLUDED.expires_at
//	  WHERE sweep_locks.expires_at < $3
//
// The expires_at is computed as a concrete time.Time in Go to avoid
// PostgreSQL interval parsing incompatibilities with Go's duration format.
// If the existing row has expired, the UPDATE succeeds and the caller
// acquires the lock; if it is still active, zero rows are affected.
func (r *SweepLockRepository) Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO sweep_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE sweep_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire sweep lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SweepRunRepository provides data access for the sweep_runs table.
// Sweep run entries track the execution of sweep rules and maintenance
// tasks for operational visibility and debugging.
type SweepRunRepository struct {
	db DBTX
}

// NewSweepRunRepository creates a new SweepRunRepository backed by the given
// database connection (pool or transaction).
func NewSweepRunRepository(db DBTX) *SweepRunRepository {
	return &SweepRunRepository{db: db}
}

// Start inserts a new sweep_runs row with status 'running' and returns the
// auto-generated BIGSERIAL ID. The caller uses this ID to later call Finish
// with the outcome.
func (r *SweepRunRepository) Start(ctx context.Context, ruleName string, now time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO sweep_runs (rule_name, started_at, status)
		 VALUES ($1, $2, 'running')
		 RETURNING id`,
		ruleName,
		now,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start sweep run entry", err)
	}
	return id, nil
}

// Finish updates the sweep_runs row with the final status, affected-row
// count, and optional error message. If runErr is non-nil, its message is
// stored in the error column.
func (r *SweepRunRepository) Finish(ctx context.Context, id int64, status types.SweepRunStatus, items int64, runErr error, now time.Time) error {
	var errMsg *string
	if runErr != nil {
		s := runErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE sweep_runs
		 SET finished_at = $2, status = $3, items_count = $4, error = $5
		 WHERE id = $1`,
		id,
		now,
		string(status),
		items,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish sweep run entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "sweep run entry not found", nil)
	}
	return nil
}
