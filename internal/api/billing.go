package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shiksha/internal/billing"
	"shiksha/internal/types"
)

// UsageSummarizer produces a tenant's billing summary for a period.
// Implemented by billing.Aggregator.
type UsageSummarizer interface {
	Summary(ctx context.Context, orgID string, periodStart, periodEnd time.Time) (*types.BillingSummary, error)
}

// BillingHandler serves the usage summary endpoint.
type BillingHandler struct {
	usage UsageSummarizer
	clock types.Clock
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(usage UsageSummarizer, clock types.Clock) *BillingHandler {
	return &BillingHandler{usage: usage, clock: clock}
}

// RegisterRoutes mounts the billing routes on the provided chi.Router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/summary", h.Summary)
	})
}

// Summary handles GET /v1/billing/summary. An optional month query parameter
// (YYYY-MM) selects a past calendar month; absent, the current month-to-date
// period is reported.
func (h *BillingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID := types.GetOrganizationID(r.Context())

	anchor := h.clock.Now()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPeriod,
				"month must be formatted YYYY-MM", err,
				map[string]any{"month": raw}))
			return
		}
		anchor = parsed
	}
	start, end := billing.MonthPeriod(anchor)

	summary, err := h.usage.Summary(r.Context(), orgID, start, end)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}
