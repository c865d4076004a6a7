// Package main is the entrypoint for the sweep-runner Lambda function.
//
// The sweep-runner is a maintenance multiplexer. EventBridge rules send
// SweepTaskPayload JSON naming a TaskType, and the handler routes execution
// to the matching service: the entity-sweep rule registry, the send archiver,
// or the monthly billing export. Consolidating the low-frequency tasks into
// one Lambda reduces cold starts and infrastructure sprawl.
//
// Handler flow:
//  1. Parse the SweepTaskPayload.
//  2. Acquire a distributed lock scoped to "task:hour" so a retried or
//     double-fired event cannot run the same task concurrently.
//  3. Route on TaskType.
//  4. Record run history for archive and export tasks (entity-sweep rules
//     record their own history per rule inside the registry).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"shiksha/internal/billing"
	"shiksha/internal/config"
	"shiksha/internal/db"
	"shiksha/internal/providers"
	"shiksha/internal/sweeper"
	"shiksha/internal/types"
)

// lockTTL covers the typical Lambda execution duration with margin.
const lockTTL = 15 * time.Minute

// SweepLocker abstracts the distributed lock acquisition.
type SweepLocker interface {
	Acquire(ctx context.Context, lockID, workerID string, now time.Time, ttl time.Duration) (bool, error)
}

// RunHistorian records task executions for operational visibility.
type RunHistorian interface {
	Start(ctx context.Context, ruleName string, now time.Time) (int64, error)
	Finish(ctx context.Context, id int64, status types.SweepRunStatus, items int64, runErr error, now time.Time) error
}

// EntitySweeper runs the registered entity-status rules.
// Implemented by sweeper.Registry.
type EntitySweeper interface {
	Run(ctx context.Context, name string, now time.Time) (int64, error)
	RunAll(ctx context.Context, now time.Time) error
}

// SendArchiver exports aged send rows to cold storage.
// Implemented by sweeper.ArchiveService.
type SendArchiver interface {
	ArchiveSends(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// UsageExportRunner runs the tenant-wide monthly billing export.
// Implemented by sweeper.BillingExportService.
type UsageExportRunner interface {
	ExportPreviousMonth(ctx context.Context, now time.Time) (int64, error)
}

// Handler holds the dependencies for the sweep-runner Lambda handler.
type Handler struct {
	Sweeps        EntitySweeper
	Archive       SendArchiver
	Export        UsageExportRunner
	Lock          SweepLocker
	History       RunHistorian
	SendRetention time.Duration
	WorkerID      string
	Logger        *slog.Logger

	// now is injected in tests; defaults to the UTC wall clock.
	now func() time.Time
}

// Handle processes one SweepTaskPayload from EventBridge.
func (h *Handler) Handle(ctx context.Context, payload types.SweepTaskPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	nowFn := h.now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	now := nowFn()

	if payload.TaskType == "" {
		return "", fmt.Errorf("empty task type in sweep payload")
	}

	taskStr := string(payload.TaskType)
	logger.InfoContext(ctx, "sweep-runner invoked",
		"task", taskStr,
		"rule", payload.Rule,
		"worker_id", h.WorkerID,
	)

	lockID := fmt.Sprintf("%s:%s", taskStr, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.Lock.Acquire(ctx, lockID, h.WorkerID, now, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring sweep lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "sweep lock held by another worker", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	items, execErr := h.dispatch(ctx, payload, now)
	if execErr != nil {
		logger.ErrorContext(ctx, "sweep task failed",
			"task", taskStr,
			"error", execErr,
			"items_before_error", items,
		)
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", taskStr, items)
	logger.InfoContext(ctx, result, "task", taskStr, "items", items)
	return result, nil
}

// dispatch routes the payload to its service. Entity-sweep rules record
// their own per-rule history inside the registry; the archive and export
// tasks are recorded here.
func (h *Handler) dispatch(ctx context.Context, payload types.SweepTaskPayload, now time.Time) (int64, error) {
	switch payload.TaskType {
	case types.SweepTaskEntitySweep:
		if payload.Rule != "" {
			return h.Sweeps.Run(ctx, payload.Rule, now)
		}
		return 0, h.Sweeps.RunAll(ctx, now)

	case types.SweepTaskArchiveSends:
		return h.recorded(ctx, "archive_sends", now, func() (int64, error) {
			return h.Archive.ArchiveSends(ctx, now, h.SendRetention)
		})

	case types.SweepTaskExportBilling:
		anchor := now
		if !payload.Period.IsZero() {
			// Period names the month to export; the export service derives
			// the target month from the month after it.
			anchor = payload.Period.AddDate(0, 1, 0)
		}
		return h.recorded(ctx, "export_billing", now, func() (int64, error) {
			return h.Export.ExportPreviousMonth(ctx, anchor)
		})

	default:
		return 0, fmt.Errorf("unknown sweep task type: %s", payload.TaskType)
	}
}

// recorded wraps a task with sweep-run history bookkeeping. History failures
// are logged and never fail the task itself.
func (h *Handler) recorded(ctx context.Context, name string, now time.Time, fn func() (int64, error)) (int64, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID, err := h.History.Start(ctx, name, now)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start sweep run entry", "task", name, "error", err)
		runID = 0
	}

	items, execErr := fn()

	if runID != 0 {
		status := types.SweepRunCompleted
		if execErr != nil {
			status = types.SweepRunFailed
		}
		if finishErr := h.History.Finish(ctx, runID, status, items, execErr, time.Now().UTC()); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish sweep run entry",
				"task", name,
				"run_id", runID,
				"error", finishErr,
			)
		}
	}

	return items, execErr
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("sweep-runner Lambda initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}

	cfg := config.MustLoad()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	sweepRepo := db.NewSweepRepository(pool)
	sendRepo := db.NewSendRepository(pool)
	billingRepo := db.NewBillingRepository(pool)
	lockRepo := db.NewSweepLockRepository(pool)
	runRepo := db.NewSweepRunRepository(pool)

	registry := sweeper.NewRegistry(
		sweeper.DefaultRules(sweepRepo, cfg.Sweep.PaymentReviewWindow, logger),
		runRepo,
		types.RealClock{},
		logger,
	)

	// No archive bucket client is wired yet; the archive service skips
	// export (and never deletes rows) while the store is nil.
	archive := sweeper.NewArchiveService(sendRepo, nil, cfg.Sweep.ArchiveBatchSize, logger)

	stripeClient := providers.NewStripeClient(nil, providers.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Logger:    logger,
	})
	aggregator := billing.NewAggregator(billingRepo, typedLogger)
	exporter := billing.NewStripeExporter(aggregator, billingRepo, stripeClient, typedLogger)
	export := sweeper.NewBillingExportService(sweepRepo, exporter, logger)

	handler := &Handler{
		Sweeps:        registry,
		Archive:       archive,
		Export:        export,
		Lock:          lockRepo,
		History:       runRepo,
		SendRetention: cfg.Sweep.SendRetention,
		WorkerID:      uuid.NewString(),
		Logger:        logger,
	}

	logger.Info("sweep-runner initialized", "worker_id", handler.WorkerID)
	lambda.Start(handler.Handle)
}
