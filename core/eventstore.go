package core

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryEventStore keeps the full audit log in process memory. Records are
// never removed; Recent trims only the returned snapshot.
type MemoryEventStore struct {
	mu      sync.Mutex
	records []EventRecord
	latest  map[string]int
	Now     func() time.Time
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		latest: map[string]int{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryEventStore) Append(_ context.Context, record EventRecord) error {
	if s == nil {
		return InternalError("core: event store is not configured", nil, nil)
	}
	record.EventID = strings.TrimSpace(record.EventID)
	if record.EventID == "" {
		return BadInputError("core: event id is required", nil, nil)
	}
	if !record.Outcome.Valid() {
		return BadInputError("core: unknown event outcome", nil, map[string]any{
			"event_id": record.EventID,
			"outcome":  string(record.Outcome),
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = s.now()
	}
	s.records = append(s.records, record)
	s.latest[record.EventID] = len(s.records) - 1
	return nil
}

// UpdateOutcome mutates the most recent record for the event id.
func (s *MemoryEventStore) UpdateOutcome(_ context.Context, eventID string, outcome Outcome, cause error) error {
	if s == nil {
		return InternalError("core: event store is not configured", nil, nil)
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return BadInputError("core: event id is required", nil, nil)
	}
	if !outcome.Valid() {
		return BadInputError("core: unknown event outcome", nil, map[string]any{
			"event_id": eventID,
			"outcome":  string(outcome),
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.latest[eventID]
	if !ok {
		return BadInputError("core: no event record for id", nil, map[string]any{
			"event_id": eventID,
		})
	}
	s.records[index].Outcome = outcome
	if cause != nil {
		s.records[index].Error = strings.TrimSpace(cause.Error())
	} else {
		s.records[index].Error = ""
	}
	return nil
}

// Recent returns a fresh snapshot of the last n records, most-recent-last.
func (s *MemoryEventStore) Recent(_ context.Context, n int) ([]EventRecord, error) {
	if s == nil {
		return nil, InternalError("core: event store is not configured", nil, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	snapshot := make([]EventRecord, n)
	copy(snapshot, s.records[len(s.records)-n:])
	return snapshot, nil
}

func (s *MemoryEventStore) Count(_ context.Context) (int, error) {
	if s == nil {
		return 0, InternalError("core: event store is not configured", nil, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryEventStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ EventStore = (*MemoryEventStore)(nil)
