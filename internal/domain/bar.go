package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Feed selects the market data source.
type Feed string

const (
	FeedIEX Feed = "iex"
	FeedSIP Feed = "sip"
)

// Delay is how far behind real time the feed may be queried on a free plan.
func (f Feed) Delay() time.Duration {
	switch f {
	case FeedIEX:
		return time.Minute
	case FeedSIP:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Bar is one OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Closes extracts closing prices as floats for indicator math.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}
