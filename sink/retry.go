package sink

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultAttemptTimeout = 10 * time.Second
)

// RetryPolicy bounds delivery attempts: exponential backoff between attempts,
// a cap on the backoff, and a timeout around each individual attempt.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	return p
}

// backoffFor returns the delay before the given retry. attempt is 1-based;
// the delay doubles per attempt and saturates at MaxBackoff.
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	delay := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Retry wraps a sink with the bounded-attempt policy. Permanent failures
// propagate immediately; transient ones are retried until the budget runs out
// or the caller's context is cancelled.
type Retry struct {
	next    Sink
	policy  RetryPolicy
	logger  core.Logger
	metrics core.MetricsRecorder

	// Sleep is injectable for tests; defaults to a context-aware timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRetry(next Sink, policy RetryPolicy, options ...RetryOption) (*Retry, error) {
	if next == nil {
		return nil, core.ConfigError("sink: retry wrapper requires a sink", nil)
	}
	r := &Retry{
		next:    next,
		policy:  policy.normalized(),
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

type RetryOption func(*Retry)

func WithRetryLogger(logger core.Logger) RetryOption {
	return func(r *Retry) {
		r.logger = glog.Ensure(logger)
	}
}

func WithRetryMetrics(metrics core.MetricsRecorder) RetryOption {
	return func(r *Retry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

func (r *Retry) Name() string {
	if r == nil || r.next == nil {
		return "retry"
	}
	return r.next.Name()
}

func (r *Retry) Deliver(ctx context.Context, record checkout.Record) error {
	if r == nil || r.next == nil {
		return core.ConfigError("sink: retry wrapper is not initialized", nil)
	}

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return TransientError("sink: delivery cancelled", err, map[string]any{
				"sink":    r.Name(),
				"attempt": attempt,
			})
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
		err := r.next.Deliver(attemptCtx, record)
		cancel()
		if err == nil {
			r.metrics.IncCounter(ctx, "sink_delivery_total", 1, map[string]string{
				"sink": r.Name(), "result": "success",
			})
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			r.metrics.IncCounter(ctx, "sink_delivery_total", 1, map[string]string{
				"sink": r.Name(), "result": "permanent_failure",
			})
			core.LogWith(ctx, r.logger, "error", "sink rejected record permanently", map[string]any{
				"sink":       r.Name(),
				"session_id": record.SessionID,
				"error":      err.Error(),
			})
			return err
		}

		core.LogWith(ctx, r.logger, "warn", "sink delivery attempt failed", map[string]any{
			"sink":       r.Name(),
			"session_id": record.SessionID,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, r.policy.backoffFor(attempt)); err != nil {
			return TransientError("sink: delivery cancelled during backoff", err, map[string]any{
				"sink":    r.Name(),
				"attempt": attempt,
			})
		}
	}

	r.metrics.IncCounter(ctx, "sink_delivery_total", 1, map[string]string{
		"sink": r.Name(), "result": "exhausted",
	})
	return TransientError("sink: delivery attempts exhausted", lastErr, map[string]any{
		"sink":     r.Name(),
		"attempts": r.policy.MaxAttempts,
	})
}

func (r *Retry) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
