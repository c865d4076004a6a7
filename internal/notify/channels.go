package notify

import (
	"unicode/utf8"

	"shiksha/internal/types"
)

// smsSegmentSize is the character capacity of one segment in a multipart
// GSM-7 SMS. Messages longer than a single segment are billed per segment.
const smsSegmentSize = 153

// Units returns the number of billable units one delivery of the message
// consumes on the given channel. Email, WhatsApp, and push deliveries are
// one unit regardless of length; SMS is billed per 153-character segment.
func Units(channel types.Channel, body string) int {
	if channel != types.ChannelSMS {
		return 1
	}
	length := utf8.RuneCountInString(body)
	if length == 0 {
		return 1
	}
	return (length + smsSegmentSize - 1) / smsSegmentSize
}

// CostModel prices a delivery attempt. Implemented by billing.RateCard.
type CostModel interface {
	CostPaise(channel types.Channel, units int) int64
}
