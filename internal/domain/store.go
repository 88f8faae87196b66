package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

// Audit events.
const (
	AuditOrderSubmitted   = "order_submitted"
	AuditOrderFailed      = "order_failed"
	AuditFill             = "fill"
	AuditWatcherRestarted = "watcher_restarted"
	AuditDaySummary       = "day_summary"
)

// EquitySnapshot is the account equity recorded at a session close.
type EquitySnapshot struct {
	SessionDate time.Time
	Current     decimal.Decimal
	Last        decimal.Decimal
	Positions   int
	RecordedAt  time.Time
}

// EquityStore persists one equity snapshot per session.
type EquityStore interface {
	Record(ctx context.Context, snap EquitySnapshot) error
	ListRecent(ctx context.Context, limit int) ([]EquitySnapshot, error)
}
