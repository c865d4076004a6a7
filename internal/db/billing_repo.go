package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"shiksha/internal/types"
)

// BillingRepository provides the read-side aggregations behind the billing
// summary: per-channel usage from notification_sends and storage consumption
// from uploaded documents.
type BillingRepository struct {
	db DBTX
}

// NewBillingRepository creates a new BillingRepository backed by the given
// database connection (pool or transaction).
func NewBillingRepository(db DBTX) *BillingRepository {
	return &BillingRepository{db: db}
}

// ChannelUsage sums units and cost per channel for one organization over a
// half-open period [start, end). Only successful attempts (SENT, DELIVERED)
// are billable; FAILED and PENDING rows are excluded.
//
// SQL:
//
//	SELECT channel, COALESCE(SUM(units), 0), COALESCE(SUM(cost_paise), 0)
//	FROM notification_sends
//	WHERE organization_id = $1
//	  AND status IN ('SENT', 'DELIVERED')
//	  AND sent_at >= $2 AND sent_at < $3
//	GROUP BY channel
//
// Channels with no rows are simply absent from the map; the aggregator
// zero-fills them.
func (r *BillingRepository) ChannelUsage(ctx context.Context, orgID string, start, end time.Time) (map[types.Channel]types.ChannelUsage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT channel, COALESCE(SUM(units), 0), COALESCE(SUM(cost_paise), 0)
		 FROM notification_sends
		 WHERE organization_id = $1
		   AND status IN ('SENT', 'DELIVERED')
		   AND sent_at >= $2 AND sent_at < $3
		 GROUP BY channel`,
		orgID,
		start,
		end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query channel usage", err)
	}
	defer rows.Close()

	usage := make(map[types.Channel]types.ChannelUsage)
	for rows.Next() {
		var (
			channel string
			u       types.ChannelUsage
		)
		if err := rows.Scan(&channel, &u.Units, &u.CostPaise); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan channel usage", err)
		}
		usage[types.Channel(channel)] = u
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating channel usage", err)
	}
	return usage, nil
}

// StorageBytes returns the organization's total stored bytes across student
// documents and notice attachments. Zero when the tenant has uploaded nothing.
func (r *BillingRepository) StorageBytes(ctx context.Context, orgID string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT SUM(size_bytes) FROM student_documents WHERE organization_id = $1), 0)
		      + COALESCE((SELECT SUM(size_bytes) FROM notice_attachments WHERE organization_id = $1), 0)`,
		orgID,
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to query storage usage", err)
	}
	return total, nil
}

// OrganizationBilling returns the billing identity for one organization:
// its Stripe customer ID and billing email. Used by the usage exporter.
func (r *BillingRepository) OrganizationBilling(ctx context.Context, orgID string) (*types.Organization, error) {
	var o types.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, name, COALESCE(timezone, 'Asia/Kolkata'),
		        COALESCE(billing_email, ''), COALESCE(stripe_customer_id, '')
		 FROM organizations
		 WHERE id = $1 AND deleted_at IS NULL`,
		orgID,
	).Scan(&o.ID, &o.Name, &o.Timezone, &o.BillingEmail, &o.StripeCustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query organization billing identity", err)
	}
	return &o, nil
}
