package checkout

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// Deliverer forwards a normalized record to a downstream system. Satisfied by
// the sink package; declared here so the handler depends on the contract, not
// the transports.
type Deliverer interface {
	Deliver(ctx context.Context, record Record) error
}

// Handler processes checkout-completion events: project the payload into a
// Record and hand it to the configured deliverer. Delivery failure propagates
// so the dispatcher releases the idempotency claim and the provider retry gets
// a fresh attempt.
type Handler struct {
	builder   *Builder
	deliverer Deliverer
	logger    core.Logger
}

func NewHandler(builder *Builder, deliverer Deliverer, logger core.Logger) (*Handler, error) {
	if builder == nil {
		return nil, core.ConfigError("checkout: handler requires a builder", nil)
	}
	if deliverer == nil {
		return nil, core.ConfigError("checkout: handler requires a deliverer", nil)
	}
	return &Handler{
		builder:   builder,
		deliverer: deliverer,
		logger:    glog.Ensure(logger),
	}, nil
}

func (h *Handler) EventType() string {
	return EventTypeSessionCompleted
}

func (h *Handler) Handle(ctx context.Context, evt core.Event) error {
	if h == nil || h.builder == nil || h.deliverer == nil {
		return core.ConfigError("checkout: handler is not initialized", nil)
	}

	record, err := h.builder.Build(evt.Data.Object)
	if err != nil {
		return core.HandlerError("checkout: build record", err, map[string]any{
			"event_id": evt.ID,
		})
	}

	core.LogWith(ctx, h.logger, "debug", "checkout record built", map[string]any{
		"event_id":       evt.ID,
		"session_id":     record.SessionID,
		"amount":         record.Amount,
		"currency":       record.Currency,
		"phenom_partner": record.PhenomPartner,
	})

	if err := h.deliverer.Deliver(ctx, record); err != nil {
		return core.HandlerError("checkout: deliver record", err, map[string]any{
			"event_id":   evt.ID,
			"session_id": record.SessionID,
		})
	}

	core.LogWith(ctx, h.logger, "info", "checkout record delivered", map[string]any{
		"event_id":   evt.ID,
		"session_id": record.SessionID,
	})
	return nil
}
