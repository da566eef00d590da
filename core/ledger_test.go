package core

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryLedger_ClaimIsTestAndSet(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	claimed, err := ledger.Claim(ctx, "evt_1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to succeed")
	}

	claimed, err = ledger.Claim(ctx, "evt_1")
	if err != nil {
		t.Fatalf("claim duplicate: %v", err)
	}
	if claimed {
		t.Fatalf("expected repeat claim to be a no-op")
	}

	isClaimed, err := ledger.IsClaimed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("is claimed: %v", err)
	}
	if !isClaimed {
		t.Fatalf("expected claim to be visible")
	}
}

func TestMemoryLedger_ReleaseEnablesReclaim(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	if _, err := ledger.Claim(ctx, "evt_1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ledger.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("expected release of absent claim to be a no-op, got %v", err)
	}

	claimed, err := ledger.Claim(ctx, "evt_1")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected released id to be claimable again")
	}
}

func TestMemoryLedger_RejectsEmptyID(t *testing.T) {
	ledger := NewMemoryLedger()
	if _, err := ledger.Claim(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank event id")
	}
}

func TestMemoryLedger_ConcurrentClaimsYieldSingleWinner(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	const contenders = 32
	var wg sync.WaitGroup
	wins := make(chan bool, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := ledger.Claim(ctx, "evt_contested")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", winners)
	}

	count, err := ledger.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one claimed id, got %d", count)
	}
}
