package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type claimRecord struct {
	bun.BaseModel `bun:"table:webhook_claims,alias:wc"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id,notnull"`
	ClaimedAt time.Time `bun:"claimed_at,nullzero,notnull,default:current_timestamp"`
}

type eventAuditRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID         string    `bun:"id,pk"`
	EventID    string    `bun:"event_id,notnull"`
	EventType  string    `bun:"event_type,notnull"`
	Livemode   bool      `bun:"livemode,notnull"`
	ReceivedAt time.Time `bun:"received_at,notnull"`
	Outcome    string    `bun:"outcome,notnull"`
	Error      string    `bun:"error"`
}
