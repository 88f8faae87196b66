package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ClockSource fetches the broker's session clock.
type ClockSource interface {
	GetClock(ctx context.Context) (Clock, error)
}

// OrderUpdateSubscriber opens the broker's order-update push feed. The
// returned channel is closed when the feed terminates; per-message failures
// are delivered in-band as OrderUpdateResult.Err.
type OrderUpdateSubscriber interface {
	SubscribeOrderUpdates(ctx context.Context) (<-chan OrderUpdateResult, error)
}

// OrderSubmitter places and cancels orders.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelAllOpenOrders(ctx context.Context) ([]CancelledOrder, error)
}

// MarketData fetches prices and bars.
type MarketData interface {
	GetLatestPrices(ctx context.Context, symbols []Symbol) (map[Symbol]decimal.Decimal, error)
	GetRecentBars(ctx context.Context, symbol Symbol, period TimePeriod, feed Feed) ([]Bar, error)
}

// Backend is everything the trading core needs from the broker. Concrete
// transports live under internal/platform.
type Backend interface {
	ClockSource
	OrderUpdateSubscriber
	OrderSubmitter
	MarketData

	ListActiveAssets(ctx context.Context) ([]Symbol, error)
	ListPositions(ctx context.Context) ([]BrokerPosition, error)
	GetAccountEquity(ctx context.Context) (Equity, error)
}
