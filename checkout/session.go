// Package checkout projects checkout-completion payloads into the flat,
// sink-agnostic record the downstream systems consume.
package checkout

import (
	"encoding/json"
	"strings"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// EventTypeSessionCompleted is the provider event type this package handles.
const EventTypeSessionCompleted = "checkout.session.completed"

// Session models the slice of the provider's checkout object the builder
// actually consumes. The provider payload is much larger; everything else is
// deliberately dropped so extraction rules stay statically checkable.
type Session struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Created           int64             `json:"created"`
	Metadata          map[string]string `json:"metadata"`
	LineItems         LineItemList      `json:"line_items"`
	TotalDetails      TotalDetails      `json:"total_details"`
}

type LineItemList struct {
	Data []LineItem `json:"data"`
}

type LineItem struct {
	Price Price `json:"price"`
}

type Price struct {
	ID      string `json:"id"`
	Product string `json:"product"`
}

type TotalDetails struct {
	Breakdown Breakdown `json:"breakdown"`
}

type Breakdown struct {
	Discounts []DiscountEntry `json:"discounts"`
}

type DiscountEntry struct {
	Discount Discount `json:"discount"`
}

type Discount struct {
	Coupon Coupon `json:"coupon"`
}

type Coupon struct {
	ID string `json:"id"`
}

// ParseSession decodes the verified payload object into a Session.
func ParseSession(payload json.RawMessage) (Session, error) {
	if len(payload) == 0 {
		return Session{}, core.BadInputError("checkout: session payload is empty", nil, nil)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, core.BadInputError("checkout: decode session payload", err, nil)
	}
	if strings.TrimSpace(session.ID) == "" {
		return Session{}, core.BadInputError("checkout: session id is required", nil, nil)
	}
	return session, nil
}
