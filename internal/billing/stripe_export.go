package billing

import (
	"context"
	"fmt"
	"time"

	"shiksha/internal/providers"
	"shiksha/internal/types"
)

// InvoiceItemCreator is the slice of the Stripe client the exporter needs.
type InvoiceItemCreator interface {
	CreateInvoiceItem(ctx context.Context, input providers.InvoiceItemInput) (string, error)
}

// OrgDB resolves an organization's billing linkage.
// Implemented by db.BillingRepository.
type OrgDB interface {
	OrganizationBilling(ctx context.Context, orgID string) (*types.Organization, error)
}

// StripeExporter pushes a period's per-channel usage cost to Stripe as
// pending invoice items on the organization's customer.
type StripeExporter struct {
	aggregator *Aggregator
	orgs       OrgDB
	stripe     InvoiceItemCreator
	logger     types.Logger
}

// NewStripeExporter wires a StripeExporter from its collaborators.
func NewStripeExporter(aggregator *Aggregator, orgs OrgDB, stripe InvoiceItemCreator, logger types.Logger) *StripeExporter {
	return &StripeExporter{
		aggregator: aggregator,
		orgs:       orgs,
		stripe:     stripe,
		logger:     logger,
	}
}

// ExportUsage creates one invoice item per channel with a nonzero cost for
// the calendar month containing period. The idempotency key is derived from
// the organization, month, and channel, so a retried export task never
// double-bills. Returns the number of invoice items created.
//
// An organization without a Stripe customer is skipped, not failed: tenants
// on manual invoicing have no customer record.
func (e *StripeExporter) ExportUsage(ctx context.Context, orgID string, period time.Time) (int, error) {
	org, err := e.orgs.OrganizationBilling(ctx, orgID)
	if err != nil {
		return 0, err
	}
	if org.StripeCustomerID == "" {
		e.logger.Info("skipping usage export, no stripe customer",
			"organization_id", orgID,
		)
		return 0, nil
	}

	start, end := MonthPeriod(period)
	summary, err := e.aggregator.Summary(ctx, orgID, start, end)
	if err != nil {
		return 0, err
	}

	month := start.Format("2006-01")
	created := 0
	for _, channel := range types.AllChannels {
		usage := summary.Usage(channel)
		if usage == nil || usage.CostPaise == 0 {
			continue
		}

		itemID, err := e.stripe.CreateInvoiceItem(ctx, providers.InvoiceItemInput{
			CustomerID:     org.StripeCustomerID,
			AmountPaise:    usage.CostPaise,
			Description:    fmt.Sprintf("%s notifications %s: %d units", channel, month, usage.Units),
			IdempotencyKey: fmt.Sprintf("usage-%s-%s-%s", orgID, month, channel),
		})
		if err != nil {
			return created, fmt.Errorf("export %s usage for %s: %w", channel, orgID, err)
		}
		created++

		e.logger.Info("usage invoice item created",
			"organization_id", orgID,
			"channel", string(channel),
			"month", month,
			"cost_paise", usage.CostPaise,
			"invoice_item_id", itemID,
		)
	}

	return created, nil
}
