package sink

import (
	"context"
	"strings"

	"github.com/tpepperobubra-cell/stripe-webhook/checkout"
	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// Fanout delivers one record to several sinks in order. The first failure
// aborts the run and propagates, so a partially delivered record surfaces as a
// handler failure and the event gets retried end to end. Sinks must therefore
// tolerate redelivery of an already accepted record.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) (*Fanout, error) {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, core.ConfigError("sink: fanout requires at least one sink", nil)
	}
	return &Fanout{sinks: kept}, nil
}

func (f *Fanout) Name() string {
	if f == nil || len(f.sinks) == 0 {
		return "fanout"
	}
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *Fanout) Deliver(ctx context.Context, record checkout.Record) error {
	if f == nil || len(f.sinks) == 0 {
		return core.ConfigError("sink: fanout is not initialized", nil)
	}
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
