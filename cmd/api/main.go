// Package main is the entry point for the job and notification API server.
//
// It loads configuration, connects the pgx pool, wires the provider clients,
// dispatcher, queue publisher, and job runner, and serves the chi router over
// standard HTTP with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"shiksha/internal/api"
	"shiksha/internal/billing"
	"shiksha/internal/config"
	"shiksha/internal/db"
	"shiksha/internal/jobs"
	"shiksha/internal/notify"
	"shiksha/internal/providers"
	"shiksha/internal/queue"
	"shiksha/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// dbProbe pings the connection pool for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string                    { return "database" }
func (p dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("api starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	jobRepo := db.NewJobRepository(pool)
	sendRepo := db.NewSendRepository(pool)
	billingRepo := db.NewBillingRepository(pool)

	clock := types.RealClock{}

	dispatcher := notify.NewDispatcher(
		buildSenders(cfg.Providers, logger),
		sendRepo,
		billing.DefaultRateCard(),
		notify.NewCloudWatchDispatchMetrics(cwClient, typedLogger),
		cfg.Dispatch.PerSendTimeout,
		clock,
		typedLogger,
	)

	publisher := queue.NewJobPublisher(sqsClient, cfg.AWS.JobQueueURL, typedLogger)
	store := jobs.NewStore(jobRepo, clock, cfg.Dispatch.MinScheduleLead)
	runner := jobs.NewRunner(jobRepo, publisher, dispatcher, clock, typedLogger)
	aggregator := billing.NewAggregator(billingRepo, typedLogger)

	validator := api.NewValidator()
	jobHandler := api.NewJobHandler(store, runner, publisher, validator, clock, logger)
	billingHandler := api.NewBillingHandler(aggregator, clock)

	srv, err := api.NewServer(cfg, logger, jobHandler, billingHandler)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []api.HealthProbe{dbProbe{pool: pool}}
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// buildSenders constructs one provider client per configured channel.
// FCM is optional: schools without a mobile app leave the server key unset,
// and the dispatcher records PUSH attempts as failed without a sender.
func buildSenders(cfg config.ProviderConfig, logger *slog.Logger) []providers.ChannelSender {
	senders := []providers.ChannelSender{
		providers.NewResendClient(nil, providers.ResendClientConfig{
			APIKey:    cfg.ResendAPIKey.Unmask(),
			FromName:  cfg.EmailFromName,
			FromEmail: cfg.EmailFrom,
			Logger:    logger,
		}),
		providers.NewFast2SMSClient(nil, providers.Fast2SMSClientConfig{
			APIKey:   cfg.Fast2SMSAPIKey.Unmask(),
			SenderID: cfg.SMSSenderID,
			Logger:   logger,
		}),
		providers.NewWhatsAppClient(nil, providers.WhatsAppClientConfig{
			AccessToken:   cfg.WhatsAppToken.Unmask(),
			PhoneNumberID: cfg.WhatsAppPhone,
			Logger:        logger,
		}),
	}

	if key := cfg.FCMServerKey.Unmask(); key != "" {
		senders = append(senders, providers.NewFCMClient(nil, providers.FCMClientConfig{
			ServerKey: key,
			Logger:    logger,
		}))
	} else {
		logger.Warn("FCM_SERVER_KEY not set, push delivery disabled")
	}

	return senders
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
