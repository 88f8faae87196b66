package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the ledger's belief about one symbol: how much is held, at what
// cost basis, and whether an order for it is still in flight.
type Position struct {
	Owned           decimal.Decimal
	BuyInPrice      decimal.Decimal
	LastUpdate      time.Time
	OrderInProgress bool
}

// IsEmpty reports whether nothing is held.
func (p Position) IsEmpty() bool {
	return !p.Owned.IsPositive()
}

// BrokerPosition is a position as reported by the broker's REST snapshot.
type BrokerPosition struct {
	Symbol        Symbol
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
}
