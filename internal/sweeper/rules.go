package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shiksha/internal/types"
)

// SweepDB defines the bulk-update operations the rules need.
// Implemented by db.SweepRepository.
type SweepDB interface {
	MarkFeesOverdue(ctx context.Context, now time.Time) (int64, error)
	FailStalePayments(ctx context.Context, cutoff, now time.Time) (int64, error)
	CompleteFinishedExams(ctx context.Context, now time.Time) (int64, error)
	MarkLiveExams(ctx context.Context, now time.Time) (int64, error)
	MarkUpcomingExams(ctx context.Context, now time.Time) (int64, error)
	ListOrganizations(ctx context.Context) ([]types.Organization, error)
	ExpireNotices(ctx context.Context, orgID string, cutoff, now time.Time) (int64, error)
}

// Rule names, used for single-rule invocation and sweep_runs history.
const (
	RuleFeeOverdue    = "fee_overdue"
	RulePaymentReview = "payment_review"
	RuleExamStatus    = "exam_status"
	RuleNoticeExpiry  = "notice_expiry"
)

// DefaultTimezone is applied to organizations without a timezone column
// value when computing notice expiry cutoffs.
const DefaultTimezone = "Asia/Kolkata"

// FeeOverdueRule marks UNPAID fees past their due date as OVERDUE.
func FeeOverdueRule(db SweepDB) Rule {
	return Rule{
		Name: RuleFeeOverdue,
		Apply: func(ctx context.Context, now time.Time) (int64, error) {
			return db.MarkFeesOverdue(ctx, now)
		},
	}
}

// PaymentReviewRule fails payments stuck in PENDING longer than the review
// window. A payment the gateway never confirmed within the window is treated
// as abandoned.
func PaymentReviewRule(db SweepDB, window time.Duration) Rule {
	return Rule{
		Name: RulePaymentReview,
		Apply: func(ctx context.Context, now time.Time) (int64, error) {
			return db.FailStalePayments(ctx, now.Add(-window), now)
		},
	}
}

// ExamStatusRule converges exam statuses against the clock with three
// ordered updates: finished exams first, then in-progress, then everything
// still ahead of its start time. The ordering plus the per-update status
// guards mean an exam's status only ever moves forward; a re-run never flips
// a COMPLETED exam back to LIVE.
func ExamStatusRule(db SweepDB) Rule {
	return Rule{
		Name: RuleExamStatus,
		Apply: func(ctx context.Context, now time.Time) (int64, error) {
			completed, err := db.CompleteFinishedExams(ctx, now)
			if err != nil {
				return completed, fmt.Errorf("complete finished exams: %w", err)
			}
			live, err := db.MarkLiveExams(ctx, now)
			if err != nil {
				return completed + live, fmt.Errorf("mark live exams: %w", err)
			}
			upcoming, err := db.MarkUpcomingExams(ctx, now)
			if err != nil {
				return completed + live + upcoming, fmt.Errorf("mark upcoming exams: %w", err)
			}
			return completed + live + upcoming, nil
		},
	}
}

// NoticeExpiryRule expires PUBLISHED notices whose expiry date has passed in
// the organization's local calendar. The cutoff is local midnight of the
// current day: a notice expiring "2026-08-30" stays visible through the
// whole of the 30th in the school's own timezone, regardless of where the
// worker runs.
func NoticeExpiryRule(db SweepDB, logger *slog.Logger) Rule {
	if logger == nil {
		logger = slog.Default()
	}
	return Rule{
		Name: RuleNoticeExpiry,
		Apply: func(ctx context.Context, now time.Time) (int64, error) {
			orgs, err := db.ListOrganizations(ctx)
			if err != nil {
				return 0, fmt.Errorf("list organizations: %w", err)
			}

			var total int64
			for _, org := range orgs {
				cutoff, err := localMidnight(now, org.Timezone)
				if err != nil {
					logger.WarnContext(ctx, "invalid organization timezone, using default",
						"organization_id", org.ID,
						"timezone", org.Timezone,
					)
					cutoff, _ = localMidnight(now, DefaultTimezone)
				}

				affected, err := db.ExpireNotices(ctx, org.ID, cutoff, now)
				if err != nil {
					// One broken tenant must not block expiry for the rest.
					logger.ErrorContext(ctx, "notice expiry failed for organization",
						"organization_id", org.ID,
						"error", err,
					)
					continue
				}
				total += affected
			}
			return total, nil
		},
	}
}

// localMidnight returns the start of the current day in tz, as a UTC instant.
func localMidnight(now time.Time, tz string) (time.Time, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.UTC(), nil
}

// DefaultRules assembles the standard entity-sweep rule set.
func DefaultRules(db SweepDB, paymentWindow time.Duration, logger *slog.Logger) []Rule {
	return []Rule{
		FeeOverdueRule(db),
		PaymentReviewRule(db, paymentWindow),
		ExamStatusRule(db),
		NoticeExpiryRule(db, logger),
	}
}
