package sink

import (
	"context"
	"testing"
	"time"

	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
)

type scriptedSink struct {
	name    string
	results []error
	calls   int
}

func (s *scriptedSink) Name() string { return s.name }

func (s *scriptedSink) Deliver(ctx context.Context, record checkout.Record) error {
	idx := s.calls
	s.calls++
	if idx < len(s.results) {
		return s.results[idx]
	}
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testRecord() checkout.Record {
	return checkout.Record{SessionID: "cs_1", Amount: 2000, Currency: "usd"}
}

func TestRetry_TransientFailureEventuallySucceeds(t *testing.T) {
	next := &scriptedSink{
		name: "flaky",
		results: []error{
			TransientError("boom", nil, nil),
			TransientError("boom", nil, nil),
			nil,
		},
	}
	retry, err := NewRetry(next, RetryPolicy{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("new retry: %v", err)
	}
	retry.Sleep = noSleep

	if err := retry.Deliver(context.Background(), testRecord()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if next.calls != 3 {
		t.Fatalf("expected three attempts, got %d", next.calls)
	}
}

func TestRetry_PermanentFailureShortCircuits(t *testing.T) {
	next := &scriptedSink{
		name:    "strict",
		results: []error{PermanentError("rejected", nil, nil)},
	}
	retry, err := NewRetry(next, RetryPolicy{MaxAttempts: 5})
	if err != nil {
		t.Fatalf("new retry: %v", err)
	}
	retry.Sleep = noSleep

	deliverErr := retry.Deliver(context.Background(), testRecord())
	if deliverErr == nil {
		t.Fatalf("expected permanent failure to propagate")
	}
	if !IsPermanent(deliverErr) {
		t.Fatalf("expected permanent classification, got %v", deliverErr)
	}
	if next.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", next.calls)
	}
}

func TestRetry_ExhaustedAttemptsReportTransient(t *testing.T) {
	next := &scriptedSink{
		name: "down",
		results: []error{
			TransientError("boom", nil, nil),
			TransientError("boom", nil, nil),
			TransientError("boom", nil, nil),
		},
	}
	retry, err := NewRetry(next, RetryPolicy{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("new retry: %v", err)
	}

	var slept []time.Duration
	retry.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	deliverErr := retry.Deliver(context.Background(), testRecord())
	if deliverErr == nil {
		t.Fatalf("expected exhausted attempts to fail")
	}
	if IsPermanent(deliverErr) {
		t.Fatalf("expected transient classification, got %v", deliverErr)
	}
	if next.calls != 3 {
		t.Fatalf("expected three attempts, got %d", next.calls)
	}
	// No sleep after the final attempt.
	if len(slept) != 2 {
		t.Fatalf("expected two backoff waits, got %d", len(slept))
	}
	if slept[1] != 2*slept[0] {
		t.Fatalf("expected doubling backoff, got %v then %v", slept[0], slept[1])
	}
}

func TestRetry_BackoffSaturatesAtCap(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    10,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
	}.normalized()

	if got := policy.backoffFor(1); got != time.Second {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := policy.backoffFor(2); got != 2*time.Second {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := policy.backoffFor(3); got != 4*time.Second {
		t.Fatalf("attempt 3: got %v", got)
	}
	if got := policy.backoffFor(8); got != 4*time.Second {
		t.Fatalf("attempt 8: expected cap, got %v", got)
	}
}

func TestRetry_CancelledContextStopsDelivery(t *testing.T) {
	next := &scriptedSink{name: "slow", results: []error{TransientError("boom", nil, nil)}}
	retry, err := NewRetry(next, RetryPolicy{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("new retry: %v", err)
	}
	retry.Sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := retry.Deliver(ctx, testRecord()); err == nil {
		t.Fatalf("expected cancelled delivery to fail")
	}
	if next.calls != 0 {
		t.Fatalf("expected no attempts after cancellation, got %d", next.calls)
	}
}

func TestIsPermanent_UnclassifiedErrorsAreTransient(t *testing.T) {
	if IsPermanent(context.DeadlineExceeded) {
		t.Fatalf("expected plain errors to count as transient")
	}
	if IsPermanent(nil) {
		t.Fatalf("expected nil to be non-permanent")
	}
}
