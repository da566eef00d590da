// Package sqlstore provides bun-backed implementations of the pipeline's
// ledger and event store contracts so claims and audit history survive
// restarts.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// LedgerStore persists idempotency claims. The unique index on event_id does
// the test-and-set: the insert that lands first owns the claim, the loser sees
// a unique violation and reports the id as already claimed.
type LedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*claimRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*claimRecord](db, claimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid claim repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, repo: repo}, nil
}

func (s *LedgerStore) IsClaimed(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}
	exists, err := s.db.NewSelect().
		Model((*claimRecord)(nil)).
		Where("?TableAlias.event_id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *LedgerStore) Claim(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("sqlstore: event id is required")
	}
	record := &claimRecord{
		ID:        uuid.NewString(),
		EventID:   id,
		ClaimedAt: time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LedgerStore) Release(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	// Deleting an absent claim is a no-op, matching the in-memory ledger.
	_, err := s.db.NewDelete().
		Model((*claimRecord)(nil)).
		Where("event_id = ?", id).
		Exec(ctx)
	return err
}

func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	return s.db.NewSelect().Model((*claimRecord)(nil)).Count(ctx)
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.Ledger = (*LedgerStore)(nil)
