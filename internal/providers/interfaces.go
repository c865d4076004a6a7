package providers

import (
	"context"

	"shiksha/internal/types"
)

// Message is the channel-agnostic send request handed to a provider client.
// The destination has already been resolved from the recipient by the
// dispatcher; the body has already been personalized.
type Message struct {
	// To is the channel destination: an email address, E.164 phone number,
	// or device token depending on the sender.
	To      string
	Subject string
	Body    string

	// ReferenceID is the internal send ID, forwarded to providers that
	// support correlation metadata.
	ReferenceID string
}

// ChannelSender is implemented by each delivery provider client.
// Send transmits one message and reports the provider outcome; transport
// failures surface as errors, provider-side rejections may come back as a
// FAILED SendResult instead.
type ChannelSender interface {
	Channel() types.Channel
	Send(ctx context.Context, msg Message) (*types.SendResult, error)
}
