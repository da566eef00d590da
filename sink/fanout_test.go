package sink

import (
	"context"
	"testing"
)

func TestFanout_DeliversToAllSinks(t *testing.T) {
	first := &scriptedSink{name: "first"}
	second := &scriptedSink{name: "second"}
	fanout, err := NewFanout(first, second)
	if err != nil {
		t.Fatalf("new fanout: %v", err)
	}

	if err := fanout.Deliver(context.Background(), testRecord()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected one call per sink, got %d and %d", first.calls, second.calls)
	}
	if fanout.Name() != "fanout(first,second)" {
		t.Fatalf("unexpected name %q", fanout.Name())
	}
}

func TestFanout_FirstFailureAborts(t *testing.T) {
	first := &scriptedSink{name: "first", results: []error{TransientError("boom", nil, nil)}}
	second := &scriptedSink{name: "second"}
	fanout, err := NewFanout(first, second)
	if err != nil {
		t.Fatalf("new fanout: %v", err)
	}

	if err := fanout.Deliver(context.Background(), testRecord()); err == nil {
		t.Fatalf("expected failure to propagate")
	}
	if second.calls != 0 {
		t.Fatalf("expected later sinks to be skipped, got %d calls", second.calls)
	}
}

func TestNewFanout_RequiresASink(t *testing.T) {
	if _, err := NewFanout(); err == nil {
		t.Fatalf("expected error for empty fanout")
	}
	if _, err := NewFanout(nil); err == nil {
		t.Fatalf("expected nil sinks to be rejected")
	}
}
