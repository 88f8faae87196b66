package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// TimeInForce is the order's lifetime policy.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
)

// TimeInForceFor returns the policy used for orders on s: crypto orders stay
// open until cancelled, equity orders expire with the session.
func TimeInForceFor(s Symbol) TimeInForce {
	if s.IsCrypto() {
		return TimeInForceGTC
	}
	return TimeInForceDay
}

// Amount is either a share/coin quantity or a dollar notional, never both.
type Amount struct {
	Quantity decimal.Decimal
	Notional decimal.Decimal
}

// Quantity returns an Amount for q units.
func Quantity(q decimal.Decimal) Amount { return Amount{Quantity: q} }

// Notional returns an Amount for n dollars.
func Notional(n decimal.Decimal) Amount { return Amount{Notional: n} }

// IsNotional reports whether the amount is expressed in dollars.
func (a Amount) IsNotional() bool { return !a.Notional.IsZero() }

func (a Amount) String() string {
	if a.IsNotional() {
		return "$" + a.Notional.String()
	}
	return a.Quantity.String()
}

// OrderRequest is a market order to be submitted to the broker.
type OrderRequest struct {
	ClientOrderID string
	Symbol        Symbol
	Side          OrderSide
	Amount        Amount
	TimeInForce   TimeInForce
}

// OrderStatus tracks the broker-side order lifecycle.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusDoneForDay      OrderStatus = "done_for_day"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusReplaced        OrderStatus = "replaced"
	OrderStatusPendingCancel   OrderStatus = "pending_cancel"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsTerminal reports whether the order will not change any further.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired,
		OrderStatusReplaced, OrderStatusRejected, OrderStatusDoneForDay:
		return true
	default:
		return false
	}
}

// OrderAck is the broker's acknowledgement of a submitted order.
type OrderAck struct {
	ID            string
	ClientOrderID string
	Symbol        Symbol
	Side          OrderSide
	Status        OrderStatus
	SubmittedAt   time.Time
}

// CancelledOrder is one entry of a cancel-all response.
type CancelledOrder struct {
	ID     string
	Status int
}

// OrderUpdate is one order-lifecycle event from the push feed. FilledQuantity
// is the order's cumulative filled quantity and is always non-negative.
type OrderUpdate struct {
	Event            string
	OrderID          string
	Symbol           Symbol
	Side             OrderSide
	Status           OrderStatus
	FilledQuantity   decimal.Decimal
	AverageFillPrice decimal.Decimal
	Timestamp        time.Time
}

// SignedFill returns the filled quantity as a change in holdings: positive
// for buys, negative for sells.
func (u OrderUpdate) SignedFill() decimal.Decimal {
	if u.Side == OrderSideSell {
		return u.FilledQuantity.Neg()
	}
	return u.FilledQuantity
}

// OrderUpdateResult is one element of the order-update feed: either an update
// or a per-message error that does not end the feed.
type OrderUpdateResult struct {
	Update OrderUpdate
	Err    error
}
