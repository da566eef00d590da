package core

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryLedger is the volatile idempotency ledger. Claims survive for the
// process lifetime unless released; acceptable only when provider retry
// windows outlive restarts.
type MemoryLedger struct {
	mu     sync.Mutex
	claims map[string]time.Time
	Now    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		claims: map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) IsClaimed(_ context.Context, id string) (bool, error) {
	if l == nil {
		return false, InternalError("core: ledger is not configured", nil, nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, BadInputError("core: event id is required", nil, nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, claimed := l.claims[id]
	return claimed, nil
}

// Claim is an atomic test-and-set. It reports true only for the call that
// took the claim; claiming an already claimed id is a no-op.
func (l *MemoryLedger) Claim(_ context.Context, id string) (bool, error) {
	if l == nil {
		return false, InternalError("core: ledger is not configured", nil, nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, BadInputError("core: event id is required", nil, nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, claimed := l.claims[id]; claimed {
		return false, nil
	}
	l.claims[id] = l.now()
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, id string) error {
	if l == nil {
		return InternalError("core: ledger is not configured", nil, nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return BadInputError("core: event id is required", nil, nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, id)
	return nil
}

func (l *MemoryLedger) Count(_ context.Context) (int, error) {
	if l == nil {
		return 0, InternalError("core: ledger is not configured", nil, nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claims), nil
}

func (l *MemoryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var _ Ledger = (*MemoryLedger)(nil)
