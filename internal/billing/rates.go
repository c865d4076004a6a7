// Package billing aggregates per-channel notification usage into invoiceable
// summaries and pushes them to Stripe as invoice items.
package billing

import (
	"shiksha/internal/types"
)

// Default per-unit rates in paise. Push notifications are free but still
// tracked for the audit trail.
const (
	defaultEmailPaise    = 5
	defaultSMSPaise      = 30
	defaultWhatsAppPaise = 50
	defaultPushPaise     = 0
)

// RateCard prices one billable unit per channel. Zero-value lookups for a
// channel that has no entry cost nothing, so an unknown channel can never
// bill a tenant.
type RateCard struct {
	perUnit map[types.Channel]int64
}

// DefaultRateCard returns the platform's standard rates.
func DefaultRateCard() RateCard {
	return RateCard{perUnit: map[types.Channel]int64{
		types.ChannelEmail:    defaultEmailPaise,
		types.ChannelSMS:      defaultSMSPaise,
		types.ChannelWhatsApp: defaultWhatsAppPaise,
		types.ChannelPush:     defaultPushPaise,
	}}
}

// NewRateCard returns the default rates with the given per-channel overrides
// applied. Used for tenants on negotiated pricing.
func NewRateCard(overrides map[types.Channel]int64) RateCard {
	rc := DefaultRateCard()
	for ch, paise := range overrides {
		rc.perUnit[ch] = paise
	}
	return rc
}

// UnitCostPaise returns the price of one unit on the given channel.
func (rc RateCard) UnitCostPaise(channel types.Channel) int64 {
	return rc.perUnit[channel]
}

// CostPaise returns the price of a delivery consuming the given units.
func (rc RateCard) CostPaise(channel types.Channel, units int) int64 {
	return rc.perUnit[channel] * int64(units)
}
