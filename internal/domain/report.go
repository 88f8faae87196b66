package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DaySummary is the operator report emitted when a session closes.
type DaySummary struct {
	ID              string          `json:"id"`
	SessionDate     time.Time       `json:"session_date"`
	CurrentEquity   decimal.Decimal `json:"current_equity"`
	LastEquity      decimal.Decimal `json:"last_equity"`
	Delta           decimal.Decimal `json:"delta"`
	CancelledOrders int             `json:"cancelled_orders"`
	Liquidated      []string        `json:"liquidated"`
	WatcherRestarts int             `json:"watcher_restarts"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// FillEvent is published on ChannelFills for every terminal order update.
type FillEvent struct {
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Status    OrderStatus     `json:"status"`
	Filled    decimal.Decimal `json:"filled"`
	Price     decimal.Decimal `json:"price"`
	Owned     decimal.Decimal `json:"owned"`
	Timestamp time.Time       `json:"timestamp"`
}
