package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// Stores bundles the durable ledger and event store built over one bun db.
type Stores struct {
	db     *bun.DB
	ledger *LedgerStore
	events *EventStore
}

// NewStores accepts a *bun.DB, a *persistence.Client, or anything exposing a
// DB() *bun.DB accessor.
func NewStores(persistenceClient any) (*Stores, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedgerStore(db)
	if err != nil {
		return nil, err
	}
	events, err := NewEventStore(db)
	if err != nil {
		return nil, err
	}
	return &Stores{db: db, ledger: ledger, events: events}, nil
}

func (s *Stores) Ledger() *LedgerStore {
	if s == nil {
		return nil
	}
	return s.ledger
}

func (s *Stores) Events() *EventStore {
	if s == nil {
		return nil
	}
	return s.events
}

func (s *Stores) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case *persistence.Client:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
