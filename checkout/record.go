package checkout

// Record is the normalized projection every downstream sink understands. It is
// flat, has no identity of its own, and is recomputed from the payload on each
// delivery rather than merged with any prior version. Amount stays in the
// provider's minor units; converting to major units is a sink decision.
type Record struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	PriceID        string
	ProductID      string
	Amount         int64
	Currency       string
	UTMSource      string
	UTMMedium      string
	UTMCampaign    string
	SourceChannel  string
	PromoCode      string
	PhenomPartner  bool
	Created        int64
}

// Fields renders the record under its stable wire names. Every sink posts this
// same map; renaming a key is a breaking change for all of them.
func (r Record) Fields() map[string]any {
	return map[string]any{
		"session_id":      r.SessionID,
		"customer_id":     r.CustomerID,
		"subscription_id": r.SubscriptionID,
		"price_id":        r.PriceID,
		"product_id":      r.ProductID,
		"amount":          r.Amount,
		"currency":        r.Currency,
		"utm_source":      r.UTMSource,
		"utm_medium":      r.UTMMedium,
		"utm_campaign":    r.UTMCampaign,
		"source_channel":  r.SourceChannel,
		"promo_code":      r.PromoCode,
		"phenom_partner":  r.PhenomPartner,
		"created":         r.Created,
	}
}
