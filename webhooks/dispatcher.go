package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// Result summarizes a dispatch cycle for the transport layer.
type Result struct {
	EventID   string
	EventType string
	Processed bool
	Duplicate bool
	Reason    string
}

// Dispatcher routes verified events to the handler registered for their type,
// guarded by the idempotency ledger. The claim is taken before any handler
// runs; a failed handler releases it so the provider's retry gets a clean
// attempt, while processed and duplicate outcomes keep it forever.
type Dispatcher struct {
	ledger  core.Ledger
	events  core.EventStore
	logger  core.Logger
	metrics core.MetricsRecorder

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	mu       sync.RWMutex
	handlers map[string]core.Handler
}

func NewDispatcher(ledger core.Ledger, events core.EventStore, options ...DispatcherOption) (*Dispatcher, error) {
	if ledger == nil {
		return nil, core.ConfigError("webhooks: dispatcher requires a ledger", nil)
	}
	if events == nil {
		return nil, core.ConfigError("webhooks: dispatcher requires an event store", nil)
	}
	d := &Dispatcher{
		ledger:   ledger,
		events:   events,
		logger:   glog.Nop(),
		metrics:  core.NopMetricsRecorder{},
		handlers: map[string]core.Handler{},
	}
	for _, opt := range options {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = glog.Ensure(logger)
	}
}

func WithDispatcherMetrics(metrics core.MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// Register binds a handler to its declared event type. One handler per type;
// a second registration for the same type is a wiring mistake, not an
// override.
func (d *Dispatcher) Register(handler core.Handler) error {
	if d == nil {
		return core.ConfigError("webhooks: dispatcher is not initialized", nil)
	}
	if handler == nil {
		return core.ConfigError("webhooks: handler is required", nil)
	}
	eventType := strings.TrimSpace(handler.EventType())
	if eventType == "" {
		return core.ConfigError("webhooks: handler must declare an event type", nil)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[eventType]; exists {
		return core.ConfigError("webhooks: handler already registered for event type", map[string]any{
			"event_type": eventType,
		})
	}
	d.handlers[eventType] = handler
	return nil
}

// Dispatch runs the idempotent delivery cycle for one verified event:
// claim, record, route, then settle the outcome. Duplicates and unhandled
// types are acknowledged without error; only handler failures surface one,
// and those release the claim first.
func (d *Dispatcher) Dispatch(ctx context.Context, evt core.Event) (Result, error) {
	if d == nil {
		return Result{}, core.ConfigError("webhooks: dispatcher is not initialized", nil)
	}
	eventID := strings.TrimSpace(evt.ID)
	if eventID == "" {
		return Result{}, core.BadInputError("webhooks: event id is required", nil, nil)
	}
	result := Result{EventID: eventID, EventType: evt.Type}

	claimed, err := d.ledger.Claim(ctx, eventID)
	if err != nil {
		return result, core.InternalError("webhooks: claim event id", err, map[string]any{
			"event_id": eventID,
		})
	}
	if !claimed {
		result.Duplicate = true
		result.Reason = "duplicate"
		if err := d.events.Append(ctx, d.record(evt, core.OutcomeDuplicate)); err != nil {
			core.LogWith(ctx, d.logger, "warn", "record duplicate delivery", map[string]any{
				"event_id": eventID,
				"error":    err.Error(),
			})
		}
		d.count(ctx, "duplicate", evt.Type)
		core.LogWith(ctx, d.logger, "info", "duplicate event acknowledged", map[string]any{
			"event_id":   eventID,
			"event_type": evt.Type,
		})
		return result, nil
	}

	if err := d.events.Append(ctx, d.record(evt, core.OutcomePending)); err != nil {
		if releaseErr := d.ledger.Release(ctx, eventID); releaseErr != nil {
			core.LogWith(ctx, d.logger, "error", "release claim after append failure", map[string]any{
				"event_id": eventID,
				"error":    releaseErr.Error(),
			})
		}
		return result, core.InternalError("webhooks: record event receipt", err, map[string]any{
			"event_id": eventID,
		})
	}

	handler := d.handlerFor(evt.Type)
	if handler == nil {
		if err := d.events.UpdateOutcome(ctx, eventID, core.OutcomeProcessed, nil); err != nil {
			core.LogWith(ctx, d.logger, "warn", "settle unhandled event outcome", map[string]any{
				"event_id": eventID,
				"error":    err.Error(),
			})
		}
		result.Reason = "unhandled event type"
		d.count(ctx, "unhandled", evt.Type)
		core.LogWith(ctx, d.logger, "info", "no handler for event type, acknowledged", map[string]any{
			"event_id":   eventID,
			"event_type": evt.Type,
		})
		return result, nil
	}

	started := d.now()
	if err := handler.Handle(ctx, evt); err != nil {
		if updateErr := d.events.UpdateOutcome(ctx, eventID, core.OutcomeFailed, err); updateErr != nil {
			core.LogWith(ctx, d.logger, "error", "record failed outcome", map[string]any{
				"event_id": eventID,
				"error":    updateErr.Error(),
			})
		}
		if releaseErr := d.ledger.Release(ctx, eventID); releaseErr != nil {
			core.LogWith(ctx, d.logger, "error", "release claim after handler failure", map[string]any{
				"event_id": eventID,
				"error":    releaseErr.Error(),
			})
		}
		d.count(ctx, "failed", evt.Type)
		d.observe(ctx, evt.Type, started)
		core.LogWith(ctx, d.logger, "error", "event handler failed", map[string]any{
			"event_id":   eventID,
			"event_type": evt.Type,
			"error":      err.Error(),
		})
		return result, core.HandlerError("webhooks: handle event", err, map[string]any{
			"event_id":   eventID,
			"event_type": evt.Type,
		})
	}

	if err := d.events.UpdateOutcome(ctx, eventID, core.OutcomeProcessed, nil); err != nil {
		core.LogWith(ctx, d.logger, "warn", "settle processed outcome", map[string]any{
			"event_id": eventID,
			"error":    err.Error(),
		})
	}
	result.Processed = true
	d.count(ctx, "processed", evt.Type)
	d.observe(ctx, evt.Type, started)
	core.LogWith(ctx, d.logger, "info", "event processed", map[string]any{
		"event_id":   eventID,
		"event_type": evt.Type,
	})
	return result, nil
}

func (d *Dispatcher) handlerFor(eventType string) core.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[strings.TrimSpace(eventType)]
}

func (d *Dispatcher) record(evt core.Event, outcome core.Outcome) core.EventRecord {
	return core.EventRecord{
		EventID:    strings.TrimSpace(evt.ID),
		EventType:  evt.Type,
		Livemode:   evt.Livemode,
		ReceivedAt: d.now(),
		Outcome:    outcome,
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) count(ctx context.Context, outcome, eventType string) {
	d.metrics.IncCounter(ctx, "webhook_dispatch_total", 1, map[string]string{
		"outcome":    outcome,
		"event_type": eventType,
	})
}

func (d *Dispatcher) observe(ctx context.Context, eventType string, started time.Time) {
	d.metrics.ObserveHistogram(ctx, "webhook_handler_seconds", d.now().Sub(started).Seconds(), map[string]string{
		"event_type": eventType,
	})
}
