// Package notify delivers one job's message to every (recipient, channel)
// pair and records a NotificationSend row per attempt. The dispatcher owns
// fan-out, per-send timeouts, unit counting, and cost stamping; the actual
// wire calls live in internal/providers.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shiksha/internal/providers"
	"shiksha/internal/types"
)

// SendRecorder persists one NotificationSend row per delivery attempt.
// Claim inserts the row in PENDING status and reports false when the same
// ID was already recorded; Finalize stamps the outcome afterwards.
// Implemented by db.SendRepository.
type SendRecorder interface {
	Claim(ctx context.Context, send *types.NotificationSend) (bool, error)
	Finalize(ctx context.Context, send *types.NotificationSend) error
	Status(ctx context.Context, id string) (types.SendStatus, error)
}

// Dispatcher fans a job payload out across recipients and channels.
type Dispatcher struct {
	senders map[types.Channel]providers.ChannelSender
	sends   SendRecorder
	rates   CostModel
	metrics DispatchMetrics
	timeout time.Duration
	clock   types.Clock
	logger  types.Logger
	idGen   func() string
}

// NewDispatcher wires a Dispatcher from its collaborators. The senders slice
// is keyed by channel; a channel requested in a payload with no registered
// sender records a FAILED send rather than aborting the job.
func NewDispatcher(
	senders []providers.ChannelSender,
	sends SendRecorder,
	rates CostModel,
	metrics DispatchMetrics,
	perSendTimeout time.Duration,
	clock types.Clock,
	logger types.Logger,
) *Dispatcher {
	byChannel := make(map[types.Channel]providers.ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Dispatcher{
		senders: byChannel,
		sends:   sends,
		rates:   rates,
		metrics: metrics,
		timeout: perSendTimeout,
		clock:   clock,
		logger:  logger,
		idGen:   uuid.NewString,
	}
}

// Dispatch delivers the payload's message to every (recipient, channel) pair
// and writes exactly one NotificationSend row per pair. Each pair is claimed
// in the store before the provider is called, under an ID derived from the
// job, recipient, and channel, so a redelivered message skips pairs already
// recorded instead of sending them again. Individual delivery failures are
// recorded and counted, never fatal; an error return means either impossible
// input or a send row that could not be persisted, in which case the partial
// result is still returned.
func (d *Dispatcher) Dispatch(ctx context.Context, job *types.ScheduledJob, payload types.JobPayload) (*types.DispatchResult, error) {
	if len(payload.Recipients) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNoRecipients, "payload has no recipients", nil)
	}
	if len(payload.Channels) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNoChannels, "payload has no channels", nil)
	}

	var jobID *string
	orgID := ""
	if job != nil {
		jobID = &job.ID
		orgID = job.OrganizationID
	}

	result := &types.DispatchResult{}
	for _, recipient := range payload.Recipients {
		body := Render(payload.Message, recipient)
		subject := Render(payload.Subject, recipient)

		for _, channel := range payload.Channels {
			send := &types.NotificationSend{
				ID:             d.sendID(jobID, recipient.ID, channel),
				JobID:          jobID,
				OrganizationID: orgID,
				RecipientID:    recipient.ID,
				Channel:        channel,
				Units:          Units(channel, body),
				SentAt:         d.clock.Now(),
			}
			send.CostPaise = d.rates.CostPaise(channel, send.Units)

			claimed, err := d.sends.Claim(ctx, send)
			if err != nil {
				// Losing the audit row is worse than an incomplete fan-out:
				// stop here and let the runner finalize from the partial result.
				return result, fmt.Errorf("claim send %s: %w", send.ID, err)
			}
			if !claimed {
				d.countPrior(ctx, send, result)
				continue
			}

			d.attempt(ctx, send, recipient, channel, subject, body)

			if send.Status == types.SendStatusSent {
				result.SentCount++
				result.TotalCostPaise += send.CostPaise
			} else {
				result.FailedCount++
			}

			if err := d.sends.Finalize(ctx, send); err != nil {
				return result, fmt.Errorf("record send %s: %w", send.ID, err)
			}
		}
	}

	d.logger.Info("dispatch complete",
		"sent", result.SentCount,
		"failed", result.FailedCount,
		"cost_paise", result.TotalCostPaise,
	)
	return result, nil
}

// sendID derives the row ID for one (job, recipient, channel) pair. The ID is
// stable across redeliveries of the same job message, which is what lets
// Claim detect pairs that were already attempted. Ad-hoc dispatches with no
// job get a random ID since there is nothing to dedupe against.
func (d *Dispatcher) sendID(jobID *string, recipientID string, channel types.Channel) string {
	if jobID == nil {
		return d.idGen()
	}
	return fmt.Sprintf("send_%s_%s_%s", *jobID, recipientID, strings.ToLower(string(channel)))
}

// countPrior folds a pair recorded by an earlier delivery into the result.
// A row still PENDING means the earlier attempt crashed between claim and
// finalize; its provider outcome is unknown, so it counts as failed rather
// than risking a duplicate send.
func (d *Dispatcher) countPrior(ctx context.Context, send *types.NotificationSend, result *types.DispatchResult) {
	status, err := d.sends.Status(ctx, send.ID)
	if err != nil {
		d.logger.Warn("could not read prior send outcome",
			"send_id", send.ID,
			"error", err.Error(),
		)
		result.FailedCount++
		return
	}

	switch status {
	case types.SendStatusSent, types.SendStatusDelivered:
		result.SentCount++
		result.TotalCostPaise += send.CostPaise
	default:
		result.FailedCount++
	}
	d.logger.Info("send already recorded, skipping",
		"send_id", send.ID,
		"status", string(status),
	)
}

// attempt performs one delivery and fills in the send row's outcome fields.
func (d *Dispatcher) attempt(ctx context.Context, send *types.NotificationSend, recipient types.Recipient, channel types.Channel, subject, body string) {
	destination := recipient.Destination(channel)
	if destination == "" {
		send.Status = types.SendStatusFailed
		send.ErrorDetail = fmt.Sprintf("recipient has no %s destination", channel)
		d.metrics.RecordDelivery(ctx, channel, MetricResultFailure)
		return
	}

	sender, ok := d.senders[channel]
	if !ok {
		send.Status = types.SendStatusFailed
		send.ErrorDetail = fmt.Sprintf("no sender configured for channel %s", channel)
		d.metrics.RecordDelivery(ctx, channel, MetricResultFailure)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.clock.Now()
	outcome, err := sender.Send(sendCtx, providers.Message{
		To:          destination,
		Subject:     subject,
		Body:        body,
		ReferenceID: send.ID,
	})
	d.metrics.RecordLatency(ctx, channel, d.clock.Now().Sub(start))

	if err != nil {
		send.Status = types.SendStatusFailed
		send.ErrorDetail = err.Error()
		d.metrics.RecordDelivery(ctx, channel, MetricResultFailure)
		d.logger.Warn("delivery attempt errored",
			"send_id", send.ID,
			"recipient_id", recipient.ID,
			"channel", string(channel),
			"error", err.Error(),
		)
		return
	}

	send.Status = outcome.Status
	send.ProviderMessageID = outcome.ProviderMessageID
	if outcome.Status == types.SendStatusFailed {
		send.ErrorDetail = outcome.FailureReason
		d.metrics.RecordDelivery(ctx, channel, MetricResultFailure)
		return
	}

	d.metrics.RecordDelivery(ctx, channel, MetricResultSuccess)
}
