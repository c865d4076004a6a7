// Package main is a local development driver for the sweep tasks.
//
// In production the tasks are fired by EventBridge rules into the
// sweep-runner Lambda. Locally this tool runs the same services on an
// in-process cron: the entity sweep hourly, the send archive daily, and the
// billing export on the first of each month. It points at the local
// Postgres/LocalStack stack configured through the usual environment.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"shiksha/internal/billing"
	"shiksha/internal/config"
	"shiksha/internal/db"
	"shiksha/internal/providers"
	"shiksha/internal/sweeper"
	"shiksha/internal/types"
)

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
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	typedLogger := &slogAdapter{logger: logger}

	cfg := config.MustLoad()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sweepRepo := db.NewSweepRepository(pool)
	sendRepo := db.NewSendRepository(pool)
	billingRepo := db.NewBillingRepository(pool)
	runRepo := db.NewSweepRunRepository(pool)

	registry := sweeper.NewRegistry(
		sweeper.DefaultRules(sweepRepo, cfg.Sweep.PaymentReviewWindow, logger),
		runRepo,
		types.RealClock{},
		logger,
	)
	archive := sweeper.NewArchiveService(sendRepo, nil, cfg.Sweep.ArchiveBatchSize, logger)

	stripeClient := providers.NewStripeClient(nil, providers.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Logger:    logger,
	})
	aggregator := billing.NewAggregator(billingRepo, typedLogger)
	exporter := billing.NewStripeExporter(aggregator, billingRepo, stripeClient, typedLogger)
	export := sweeper.NewBillingExportService(sweepRepo, exporter, logger)

	c := cron.New(cron.WithLocation(time.UTC))

	mustAdd(c, "@hourly", func() {
		now := time.Now().UTC()
		if err := registry.RunAll(ctx, now); err != nil {
			logger.Error("entity sweep finished with failures", "error", err)
		}
	})
	mustAdd(c, "@daily", func() {
		now := time.Now().UTC()
		if _, err := archive.ArchiveSends(ctx, now, cfg.Sweep.SendRetention); err != nil {
			logger.Error("send archive failed", "error", err)
		}
	})
	// First of the month, 02:00 UTC: export the month that just ended.
	mustAdd(c, "0 2 1 * *", func() {
		now := time.Now().UTC()
		if _, err := export.ExportPreviousMonth(ctx, now); err != nil {
			logger.Error("billing export failed", "error", err)
		}
	})

	logger.Info("sweep-local started",
		"rules", registry.Rules(),
		"send_retention", cfg.Sweep.SendRetention.String(),
	)
	c.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("stopping")
	<-c.Stop().Done()
}

func mustAdd(c *cron.Cron, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		panic("bad cron spec " + spec + ": " + err.Error())
	}
}
