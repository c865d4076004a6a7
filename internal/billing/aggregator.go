package billing

import (
	"context"
	"fmt"
	"time"

	"shiksha/internal/types"
)

// UsageDB is the slice of the billing repository the aggregator needs.
// Implemented by db.BillingRepository.
type UsageDB interface {
	ChannelUsage(ctx context.Context, orgID string, start, end time.Time) (map[types.Channel]types.ChannelUsage, error)
	StorageBytes(ctx context.Context, orgID string) (int64, error)
}

// Aggregator builds billing summaries for an organization over a period.
type Aggregator struct {
	db     UsageDB
	logger types.Logger
}

// NewAggregator creates an Aggregator over the given repository.
func NewAggregator(db UsageDB, logger types.Logger) *Aggregator {
	return &Aggregator{db: db, logger: logger}
}

// Summary aggregates per-channel usage over [periodStart, periodEnd) plus
// current storage consumption. An organization with no sends in the period
// gets an all-zero summary, not an error.
func (a *Aggregator) Summary(ctx context.Context, orgID string, periodStart, periodEnd time.Time) (*types.BillingSummary, error) {
	if !periodEnd.After(periodStart) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPeriod, "period end must be after period start", nil)
	}

	usage, err := a.db.ChannelUsage(ctx, orgID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("aggregate channel usage for %s: %w", orgID, err)
	}

	summary := &types.BillingSummary{
		OrganizationID: orgID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
	}
	for channel, u := range usage {
		slot := summary.Usage(channel)
		if slot == nil {
			a.logger.Warn("usage row for unknown channel skipped",
				"organization_id", orgID,
				"channel", string(channel),
			)
			continue
		}
		*slot = u
		summary.TotalCostPaise += u.CostPaise
	}

	storageBytes, err := a.db.StorageBytes(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("aggregate storage for %s: %w", orgID, err)
	}
	summary.TotalStorageMB = float64(storageBytes) / (1024 * 1024)

	return summary, nil
}

// MonthPeriod returns the half-open UTC interval covering the calendar month
// containing t. Billing exports run against the previous month's period.
func MonthPeriod(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}
