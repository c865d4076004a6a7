// Package queue publishes JobMessages to the SQS job queue. The queue is the
// durable timer for deferred jobs: a message carries only the job identity,
// and the worker re-reads the job row on receipt so stale messages can never
// resurrect a cancelled job.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"shiksha/internal/types"
)

// maxSQSDelay is the SQS DelaySeconds ceiling. Jobs scheduled further out
// than this hop through the queue repeatedly until they come due.
const maxSQSDelay = 900 * time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// JobPublisher wraps an SQS client to publish JobMessages for initial
// enqueue or a re-publish hop when a job is not yet due.
//
// The key contract: Publish increments msg.Attempt BEFORE serializing to
// JSON, so the next consumer sees an accurate hop count.
type JobPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewJobPublisher creates a JobPublisher targeting the given SQS job queue.
func NewJobPublisher(client SQSSender, queueURL string, logger types.Logger) *JobPublisher {
	return &JobPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish increments the message's Attempt, serializes it to JSON, and sends
// it to the job queue with the given delay. Delay is clamped to the SQS
// maximum of 900 seconds; the worker's due-check re-publishes until the
// schedule time is actually reached.
func (p *JobPublisher) Publish(ctx context.Context, msg types.JobMessage, delay time.Duration) error {
	msg.Attempt++

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("job publisher: failed to marshal message: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > int32(maxSQSDelay.Seconds()) {
		delaySec = int32(maxSQSDelay.Seconds())
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("job publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("job message published",
		"job_id", msg.JobID,
		"organization_id", msg.OrganizationID,
		"attempt", msg.Attempt,
		"delay_seconds", delaySec,
		"trace_id", msg.TraceID,
	)

	return nil
}

// DelayUntil computes the DelaySeconds for a job due at scheduledAt, clamped
// to the SQS ceiling. Past-due times yield zero.
func DelayUntil(scheduledAt, now time.Time) time.Duration {
	remaining := scheduledAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	if remaining > maxSQSDelay {
		return maxSQSDelay
	}
	return remaining
}
