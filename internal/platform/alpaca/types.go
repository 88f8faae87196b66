package alpaca

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// --------------------------------------------------------------------------
// Trading API DTOs
// --------------------------------------------------------------------------

type orderRequest struct {
	Symbol        string           `json:"symbol"`
	Qty           *decimal.Decimal `json:"qty,omitempty"`
	Notional      *decimal.Decimal `json:"notional,omitempty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

type order struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Status         string           `json:"status"`
	SubmittedAt    time.Time        `json:"submitted_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
}

type cancelledOrder struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

type clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

type asset struct {
	Symbol   string `json:"symbol"`
	Class    string `json:"class"`
	Exchange string `json:"exchange"`
	Status   string `json:"status"`
	Tradable bool   `json:"tradable"`
}

type position struct {
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	AvgEntryPrice decimal.Decimal  `json:"avg_entry_price"`
	CurrentPrice  *decimal.Decimal `json:"current_price"`
}

type account struct {
	Equity     decimal.Decimal `json:"equity"`
	LastEquity decimal.Decimal `json:"last_equity"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Market data DTOs
// --------------------------------------------------------------------------

type trade struct {
	Timestamp time.Time       `json:"t"`
	Price     decimal.Decimal `json:"p"`
	Size      decimal.Decimal `json:"s"`
}

type latestTrades struct {
	Trades map[string]trade `json:"trades"`
}

type bar struct {
	Timestamp time.Time       `json:"t"`
	Open      decimal.Decimal `json:"o"`
	High      decimal.Decimal `json:"h"`
	Low       decimal.Decimal `json:"l"`
	Close     decimal.Decimal `json:"c"`
	Volume    decimal.Decimal `json:"v"`
}

type stockBars struct {
	Bars          []bar   `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}

type cryptoBars struct {
	Bars          map[string][]bar `json:"bars"`
	NextPageToken *string          `json:"next_page_token"`
}

// --------------------------------------------------------------------------
// Stream DTOs
// --------------------------------------------------------------------------

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type streamAuth struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type streamListen struct {
	Action string `json:"action"`
	Data   struct {
		Streams []string `json:"streams"`
	} `json:"data"`
}

type authorization struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

type tradeUpdate struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Order     order     `json:"order"`
}

// --------------------------------------------------------------------------
// Conversions
// --------------------------------------------------------------------------

func (o order) toAck() domain.OrderAck {
	return domain.OrderAck{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        domain.ParseSymbol(o.Symbol),
		Side:          domain.OrderSide(o.Side),
		Status:        domain.OrderStatus(o.Status),
		SubmittedAt:   o.SubmittedAt,
	}
}

func (u tradeUpdate) toDomain() domain.OrderUpdate {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = u.Order.UpdatedAt
	}
	var avg decimal.Decimal
	if u.Order.FilledAvgPrice != nil {
		avg = *u.Order.FilledAvgPrice
	}
	return domain.OrderUpdate{
		Event:            u.Event,
		OrderID:          u.Order.ID,
		Symbol:           domain.ParseSymbol(u.Order.Symbol),
		Side:             domain.OrderSide(u.Order.Side),
		Status:           domain.OrderStatus(u.Order.Status),
		FilledQuantity:   u.Order.FilledQty,
		AverageFillPrice: avg,
		Timestamp:        ts,
	}
}

func (c clock) toDomain() domain.Clock {
	return domain.Clock{
		Timestamp: c.Timestamp,
		IsOpen:    c.IsOpen,
		NextOpen:  c.NextOpen,
		NextClose: c.NextClose,
	}
}

func (b bar) toDomain() domain.Bar {
	return domain.Bar{
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func toDomainBars(in []bar) []domain.Bar {
	out := make([]domain.Bar, len(in))
	for i, b := range in {
		out[i] = b.toDomain()
	}
	return out
}

func timeframe(u domain.TimeUnit) string {
	switch u {
	case domain.TimeUnitMinute:
		return "1Min"
	case domain.TimeUnitHour:
		return "1Hour"
	default:
		return "1Day"
	}
}
