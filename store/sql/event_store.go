package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tpepperobubra-cell/stripe-webhook/core"
)

// EventStore is the durable audit log. One row per delivery attempt; outcome
// updates target the newest row for the event id.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*eventAuditRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventAuditRecord](db, eventAuditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event audit repository wiring: %w", err)
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

func (s *EventStore) Append(ctx context.Context, record core.EventRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	eventID := strings.TrimSpace(record.EventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	if !record.Outcome.Valid() {
		return fmt.Errorf("sqlstore: invalid outcome %q", record.Outcome)
	}
	receivedAt := record.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	row := &eventAuditRecord{
		ID:         uuid.NewString(),
		EventID:    eventID,
		EventType:  record.EventType,
		Livemode:   record.Livemode,
		ReceivedAt: receivedAt.UTC(),
		Outcome:    string(record.Outcome),
		Error:      record.Error,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *EventStore) UpdateOutcome(ctx context.Context, eventID string, outcome core.Outcome, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	if !outcome.Valid() {
		return fmt.Errorf("sqlstore: invalid outcome %q", outcome)
	}

	latest := &eventAuditRecord{}
	err := s.db.NewSelect().
		Model(latest).
		Where("?TableAlias.event_id = ?", eventID).
		OrderExpr("?TableAlias.received_at DESC, ?TableAlias.id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlstore: no audit record for event %q", eventID)
		}
		return err
	}

	errorText := ""
	if cause != nil {
		errorText = cause.Error()
	}
	_, err = s.db.NewUpdate().
		Model((*eventAuditRecord)(nil)).
		Set("outcome = ?", string(outcome)).
		Set("error = ?", errorText).
		Where("id = ?", latest.ID).
		Exec(ctx)
	return err
}

func (s *EventStore) Recent(ctx context.Context, n int) ([]core.EventRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	query := s.db.NewSelect().
		Model((*eventAuditRecord)(nil)).
		OrderExpr("?TableAlias.received_at DESC, ?TableAlias.id DESC")
	if n > 0 {
		query = query.Limit(n)
	}
	var rows []eventAuditRecord
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, err
	}

	// Rows arrive newest first; callers expect most-recent-last.
	records := make([]core.EventRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		records = append(records, eventAuditToDomain(rows[i]))
	}
	return records, nil
}

func (s *EventStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event store is not configured")
	}
	return s.db.NewSelect().Model((*eventAuditRecord)(nil)).Count(ctx)
}

func eventAuditToDomain(row eventAuditRecord) core.EventRecord {
	return core.EventRecord{
		EventID:    row.EventID,
		EventType:  row.EventType,
		Livemode:   row.Livemode,
		ReceivedAt: row.ReceivedAt,
		Outcome:    core.Outcome(row.Outcome),
		Error:      row.Error,
	}
}

var _ core.EventStore = (*EventStore)(nil)
