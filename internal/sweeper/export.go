package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shiksha/internal/types"
)

// OrgLister enumerates active organizations for tenant-scoped tasks.
// Implemented by db.SweepRepository.
type OrgLister interface {
	ListOrganizations(ctx context.Context) ([]types.Organization, error)
}

// UsageExporter pushes one organization's usage for a period to the billing
// provider. Implemented by billing.StripeExporter.
type UsageExporter interface {
	ExportUsage(ctx context.Context, orgID string, period time.Time) (int, error)
}

// BillingExportService runs the monthly usage export across all tenants.
type BillingExportService struct {
	orgs     OrgLister
	exporter UsageExporter
	logger   *slog.Logger
}

// NewBillingExportService wires a BillingExportService.
func NewBillingExportService(orgs OrgLister, exporter UsageExporter, logger *slog.Logger) *BillingExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingExportService{orgs: orgs, exporter: exporter, logger: logger}
}

// ExportPreviousMonth exports each organization's usage for the calendar
// month before the one containing now. Per-tenant failures are logged and
// skipped; the Stripe idempotency keys make the next run safe to repeat for
// tenants that failed. Returns the number of organizations exported and an
// error only if every single export failed.
func (s *BillingExportService) ExportPreviousMonth(ctx context.Context, now time.Time) (int64, error) {
	orgs, err := s.orgs.ListOrganizations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list organizations: %w", err)
	}
	if len(orgs) == 0 {
		return 0, nil
	}

	period := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	var exported int64
	var lastErr error
	for _, org := range orgs {
		items, err := s.exporter.ExportUsage(ctx, org.ID, period)
		if err != nil {
			lastErr = err
			s.logger.ErrorContext(ctx, "usage export failed for organization",
				"organization_id", org.ID,
				"period", period.Format("2006-01"),
				"error", err,
			)
			continue
		}
		exported++

		s.logger.InfoContext(ctx, "usage exported",
			"organization_id", org.ID,
			"period", period.Format("2006-01"),
			"invoice_items", items,
		)
	}

	if exported == 0 && lastErr != nil {
		return 0, fmt.Errorf("usage export failed for all %d organizations: %w", len(orgs), lastErr)
	}
	return exported, nil
}
