package webhooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

type stubHandler struct {
	eventType string
	err       error

	mu    sync.Mutex
	calls int
}

func (h *stubHandler) EventType() string { return h.eventType }

func (h *stubHandler) Handle(ctx context.Context, evt core.Event) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return h.err
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *core.MemoryLedger, *core.MemoryEventStore) {
	t.Helper()
	ledger := core.NewMemoryLedger()
	store := core.NewMemoryEventStore()
	dispatcher, err := NewDispatcher(ledger, store)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher, ledger, store
}

func checkoutEvent(id string) core.Event {
	return core.Event{ID: id, Type: "checkout.session.completed", Livemode: false}
}

func TestDispatcher_ProcessesFirstDelivery(t *testing.T) {
	dispatcher, ledger, store := newTestDispatcher(t)
	handler := &stubHandler{eventType: "checkout.session.completed"}
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()

	result, err := dispatcher.Dispatch(ctx, checkoutEvent("evt_1"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Processed || result.Duplicate {
		t.Fatalf("expected processed result, got %+v", result)
	}
	if handler.callCount() != 1 {
		t.Fatalf("expected one handler call, got %d", handler.callCount())
	}

	claimed, err := ledger.IsClaimed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("is claimed: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claim to persist after success")
	}

	records, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != core.OutcomeProcessed {
		t.Fatalf("expected one processed record, got %+v", records)
	}
}

func TestDispatcher_DuplicateDeliveryNeverReachesHandler(t *testing.T) {
	dispatcher, _, store := newTestDispatcher(t)
	handler := &stubHandler{eventType: "checkout.session.completed"}
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()

	if _, err := dispatcher.Dispatch(ctx, checkoutEvent("evt_1")); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	result, err := dispatcher.Dispatch(ctx, checkoutEvent("evt_1"))
	if err != nil {
		t.Fatalf("duplicate dispatch: %v", err)
	}
	if result.Processed || !result.Duplicate {
		t.Fatalf("expected duplicate acknowledgement, got %+v", result)
	}
	if handler.callCount() != 1 {
		t.Fatalf("expected no extra handler calls, got %d", handler.callCount())
	}

	records, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected audit record per delivery, got %d", len(records))
	}
	if records[1].Outcome != core.OutcomeDuplicate {
		t.Fatalf("expected duplicate record, got %q", records[1].Outcome)
	}
}

func TestDispatcher_HandlerFailureReleasesClaim(t *testing.T) {
	dispatcher, ledger, store := newTestDispatcher(t)
	handler := &stubHandler{
		eventType: "checkout.session.completed",
		err:       errors.New("sink unavailable"),
	}
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()

	_, err := dispatcher.Dispatch(ctx, checkoutEvent("evt_1"))
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	if !core.IsHandlerError(err) {
		t.Fatalf("expected handler classification, got %v", err)
	}

	claimed, claimErr := ledger.IsClaimed(ctx, "evt_1")
	if claimErr != nil {
		t.Fatalf("is claimed: %v", claimErr)
	}
	if claimed {
		t.Fatalf("expected claim release after failure")
	}

	// The provider's retry is a fresh attempt, not a duplicate.
	handler.err = nil
	result, err := dispatcher.Dispatch(ctx, checkoutEvent("evt_1"))
	if err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if !result.Processed || result.Duplicate {
		t.Fatalf("expected retry to process, got %+v", result)
	}
	if handler.callCount() != 2 {
		t.Fatalf("expected retry to reach handler, got %d calls", handler.callCount())
	}

	records, recErr := store.Recent(ctx, 0)
	if recErr != nil {
		t.Fatalf("recent: %v", recErr)
	}
	if len(records) != 2 {
		t.Fatalf("expected two attempt records, got %d", len(records))
	}
	if records[0].Outcome != core.OutcomeFailed || records[0].Error == "" {
		t.Fatalf("expected failed first attempt with cause, got %+v", records[0])
	}
	if records[1].Outcome != core.OutcomeProcessed {
		t.Fatalf("expected processed retry, got %q", records[1].Outcome)
	}
}

func TestDispatcher_UnhandledTypeIsAcknowledged(t *testing.T) {
	dispatcher, ledger, _ := newTestDispatcher(t)
	ctx := context.Background()

	result, err := dispatcher.Dispatch(ctx, core.Event{ID: "evt_1", Type: "invoice.paid"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Processed || result.Duplicate {
		t.Fatalf("expected unhandled acknowledgement, got %+v", result)
	}
	if result.Reason != "unhandled event type" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}

	// Unhandled events keep their claim: re-delivery is still a duplicate.
	claimed, err := ledger.IsClaimed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("is claimed: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claim to persist for unhandled types")
	}
}

func TestDispatcher_RejectsDuplicateRegistration(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)
	if err := dispatcher.Register(&stubHandler{eventType: "checkout.session.completed"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := dispatcher.Register(&stubHandler{eventType: "checkout.session.completed"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestDispatcher_ConcurrentDeliveriesOfSameEvent(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)
	handler := &stubHandler{eventType: "checkout.session.completed"}
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()

	const deliveries = 16
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dispatcher.Dispatch(ctx, checkoutEvent("evt_contested")); err != nil {
				t.Errorf("dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if handler.callCount() != 1 {
		t.Fatalf("expected exactly one handler call, got %d", handler.callCount())
	}
}
