package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Event is a single authenticated notification from the payment provider.
// The payload is kept opaque; only the checkout builder parses it.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent decodes verified raw bytes into an Event. Callers must have
// verified the signature first; parsing performs no side effects.
func ParseEvent(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, BadInputError("core: decode event payload", err, nil)
	}
	if strings.TrimSpace(evt.ID) == "" {
		return Event{}, BadInputError("core: event id is required", nil, nil)
	}
	if strings.TrimSpace(evt.Type) == "" {
		return Event{}, BadInputError("core: event type is required", nil, map[string]any{
			"event_id": evt.ID,
		})
	}
	return evt, nil
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeProcessed, OutcomeDuplicate, OutcomeFailed:
		return true
	default:
		return false
	}
}

// EventRecord wraps an Event with pipeline-local audit metadata. One record is
// appended per delivery attempt; the latest record for an event id carries the
// current outcome.
type EventRecord struct {
	EventID    string
	EventType  string
	Livemode   bool
	ReceivedAt time.Time
	Outcome    Outcome
	Error      string
}

// Ledger tracks which event identifiers have been accepted for processing.
// Claim is an atomic test-and-set: it reports whether this call took the
// claim, so the check-then-claim race collapses into a single operation.
type Ledger interface {
	IsClaimed(ctx context.Context, id string) (bool, error)
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// EventStore is the append-only audit log of verified events. It is
// deliberately separate from the Ledger: claims can be released and reclaimed,
// audit history is permanent.
type EventStore interface {
	Append(ctx context.Context, record EventRecord) error
	UpdateOutcome(ctx context.Context, eventID string, outcome Outcome, cause error) error
	Recent(ctx context.Context, n int) ([]EventRecord, error)
	Count(ctx context.Context) (int, error)
}

// Handler processes one verified, non-duplicate event of its declared type.
type Handler interface {
	EventType() string
	Handle(ctx context.Context, evt Event) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// LogWith emits message and fields through logger, using the richer fields
// contract when the logger supports it.
func LogWith(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, fmt.Sprint(value))
	}
	return args
}
