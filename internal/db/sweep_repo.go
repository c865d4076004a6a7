package db

import (
	"context"
	"time"

	"shiksha/internal/types"
)

// SweepRepository provides the bulk status updates executed by the entity
// sweeper. Every method is a single conditional UPDATE: the WHERE clause
// excludes rows already in the target state, so re-running a sweep with the
// same clock input affects zero additional rows.
type SweepRepository struct {
	db DBTX
}

// NewSweepRepository creates a new SweepRepository backed by the given
// database connection (pool or transaction).
func NewSweepRepository(db DBTX) *SweepRepository {
	return &SweepRepository{db: db}
}

// MarkFeesOverdue flips UNPAID fees whose due date has passed to OVERDUE.
//
// SQL:
//
//	UPDATE fees SET status = 'OVERDUE', updated_at = $1
//	WHERE status = 'UNPAID' AND due_date < $1
//
// PAID and already-OVERDUE rows are untouched.
func (r *SweepRepository) MarkFeesOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE fees SET status = 'OVERDUE', updated_at = $1
		 WHERE status = 'UNPAID' AND due_date < $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark overdue fees", err)
	}
	return tag.RowsAffected(), nil
}

// FailStalePayments marks PENDING fee payments older than the cutoff as
// FAILED. The cutoff is now minus the configured review window; payments a
// reviewer never confirmed within the window are treated as abandoned.
func (r *SweepRepository) FailStalePayments(ctx context.Context, cutoff, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE fee_payments SET status = 'FAILED', updated_at = $2
		 WHERE status = 'PENDING' AND created_at < $1`,
		cutoff,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire stale payments", err)
	}
	return tag.RowsAffected(), nil
}

// CompleteFinishedExams moves exams whose end time has passed to COMPLETED.
// CANCELLED exams are never touched by any exam sweep.
func (r *SweepRepository) CompleteFinishedExams(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET status = 'COMPLETED', updated_at = $1
		 WHERE end_time < $1
		   AND status NOT IN ('COMPLETED', 'CANCELLED')`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to complete finished exams", err)
	}
	return tag.RowsAffected(), nil
}

// MarkLiveExams moves exams currently inside their time window to LIVE.
// Runs after CompleteFinishedExams so a just-ended exam can never regress.
func (r *SweepRepository) MarkLiveExams(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET status = 'LIVE', updated_at = $1
		 WHERE start_time <= $1 AND end_time >= $1
		   AND status NOT IN ('LIVE', 'COMPLETED', 'CANCELLED')`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark live exams", err)
	}
	return tag.RowsAffected(), nil
}

// MarkUpcomingExams moves every exam that has not started yet to UPCOMING.
// Runs after CompleteFinishedExams and MarkLiveExams, so a future-start row
// can only hold a pre-start status; excluding UPCOMING keeps the sweep
// idempotent and CANCELLED is never touched.
func (r *SweepRepository) MarkUpcomingExams(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET status = 'UPCOMING', updated_at = $1
		 WHERE start_time > $1
		   AND status NOT IN ('UPCOMING', 'CANCELLED')`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark upcoming exams", err)
	}
	return tag.RowsAffected(), nil
}

// ListOrganizations returns the active tenants with their notification
// timezones, for sweeps whose cutoff is tenant-local.
func (r *SweepRepository) ListOrganizations(ctx context.Context) ([]types.Organization, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, COALESCE(timezone, 'Asia/Kolkata')
		 FROM organizations
		 WHERE deleted_at IS NULL`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list organizations", err)
	}
	defer rows.Close()

	var orgs []types.Organization
	for rows.Next() {
		var o types.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Timezone); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan organization", err)
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating organizations", err)
	}
	return orgs, nil
}

// ExpireNotices marks PUBLISHED notices for one organization as EXPIRED when
// their expiry date falls strictly before the supplied cutoff. The caller
// computes the cutoff as local midnight in the organization's timezone, so a
// notice expiring "today" stays visible until the tenant's day actually ends.
func (r *SweepRepository) ExpireNotices(ctx context.Context, orgID string, cutoff, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notices SET status = 'EXPIRED', updated_at = $3
		 WHERE organization_id = $1
		   AND status = 'PUBLISHED'
		   AND expires_at < $2`,
		orgID,
		cutoff,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire notices", err)
	}
	return tag.RowsAffected(), nil
}
