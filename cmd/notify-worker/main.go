// Package main is the entrypoint for the notify-worker Lambda function.
//
// The worker consumes job messages from the SQS job queue and runs each one
// through the job runner: claim the row with a guarded status transition,
// re-check due time, fan out deliveries per recipient and channel, and
// finalize with the stored result. Messages that fail transiently are
// reported as partial batch failures so SQS redelivers only those.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

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
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// JobProcessor runs one job message end to end. Implemented by jobs.Runner.
type JobProcessor interface {
	Process(ctx context.Context, msg types.JobMessage) error
}

// Handler holds the dependencies for the worker Lambda handler.
type Handler struct {
	runner JobProcessor
	logger types.Logger
}

// Handle processes an SQS event containing one or more job messages. Each
// message is processed independently; failures are returned in
// batchItemFailures so SQS retries only the failed messages.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord parses one SQS record and hands it to the runner.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.JobMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal job message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure, do not retry.
		return nil
	}

	logger := h.logger.With(
		"job_id", msg.JobID,
		"organization_id", msg.OrganizationID,
		"attempt", msg.Attempt,
		"trace_id", msg.TraceID,
	)
	logger.Info("processing job message")

	return h.runner.Process(ctx, msg)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("notify-worker Lambda initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}

	cfg := config.MustLoad()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
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
	runner := jobs.NewRunner(jobRepo, publisher, dispatcher, clock, typedLogger)

	handler := &Handler{runner: runner, logger: typedLogger}

	logger.Info("notify-worker initialized, starting Lambda handler")
	lambda.Start(handler.Handle)
}

// buildSenders constructs one provider client per configured channel.
// FCM is optional: without a server key, PUSH attempts record as failed.
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
