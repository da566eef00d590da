package checkout

import (
	"encoding/json"
	"strings"
)

// Metadata keys the builder prefers for attribution before falling back to the
// keyword scan.
const (
	metadataUTMSource     = "utm_source"
	metadataUTMMedium     = "utm_medium"
	metadataUTMCampaign   = "utm_campaign"
	metadataSourceChannel = "source_channel"
)

// channelKeywords is the closed fallback vocabulary, in priority order. The
// scan over the free-text reference id stops at the first member found, even
// when several appear.
var channelKeywords = []string{"social", "sms", "email", "landing"}

// Builder derives a Record from a checkout session payload. Build is a pure
// function of the payload and the configured partner code: identical input
// yields an identical record and no observable side effect.
type Builder struct {
	// PartnerCoupon is the coupon id that marks a partner-attributed sale.
	// Matching is exact and case sensitive; empty disables detection.
	PartnerCoupon string
}

func NewBuilder(partnerCoupon string) *Builder {
	return &Builder{PartnerCoupon: partnerCoupon}
}

// Build extracts the normalized record from the raw session object.
func (b *Builder) Build(payload json.RawMessage) (Record, error) {
	session, err := ParseSession(payload)
	if err != nil {
		return Record{}, err
	}
	return b.BuildFromSession(session), nil
}

func (b *Builder) BuildFromSession(session Session) Record {
	record := Record{
		SessionID:      session.ID,
		CustomerID:     session.Customer,
		SubscriptionID: session.Subscription,
		Amount:         session.AmountTotal,
		Currency:       session.Currency,
		Created:        session.Created,
	}

	// Absent line items are a valid session shape, not an error.
	if len(session.LineItems.Data) > 0 {
		first := session.LineItems.Data[0]
		record.PriceID = first.Price.ID
		record.ProductID = first.Price.Product
	}

	record.PromoCode, record.PhenomPartner = b.detectPartnerCoupon(session)

	record.UTMSource = session.Metadata[metadataUTMSource]
	record.UTMMedium = session.Metadata[metadataUTMMedium]
	record.UTMCampaign = session.Metadata[metadataUTMCampaign]
	record.SourceChannel = sourceChannel(session)

	return record
}

// detectPartnerCoupon scans the discount breakdown for the configured partner
// code. First exact match wins and ends the scan; no match leaves the pair
// zero-valued.
func (b *Builder) detectPartnerCoupon(session Session) (string, bool) {
	partner := ""
	if b != nil {
		partner = b.PartnerCoupon
	}
	if partner == "" {
		return "", false
	}
	for _, entry := range session.TotalDetails.Breakdown.Discounts {
		if entry.Discount.Coupon.ID == partner {
			return partner, true
		}
	}
	return "", false
}

// sourceChannel prefers the explicit metadata field; when absent it falls back
// to scanning the lower-cased client reference id for the first vocabulary
// keyword. Best effort: a reference containing several keywords classifies as
// the first in priority order.
func sourceChannel(session Session) string {
	if channel, ok := session.Metadata[metadataSourceChannel]; ok && strings.TrimSpace(channel) != "" {
		return channel
	}
	reference := strings.ToLower(session.ClientReferenceID)
	if reference == "" {
		return ""
	}
	for _, keyword := range channelKeywords {
		if strings.Contains(reference, keyword) {
			return keyword
		}
	}
	return ""
}
