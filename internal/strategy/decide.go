package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/indicators"
)

// Action is what the engine does with one symbol in one cycle.
type Action int

const (
	Hold Action = iota
	Enter
	Exit
)

func (a Action) String() string {
	switch a {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "hold"
	}
}

// DecisionInput is everything the decision table looks at for one symbol.
type DecisionInput struct {
	Position domain.Position // zero value when nothing is held
	Price    decimal.Decimal
	Bands    indicators.Bands
	RSI      float64
	Now      time.Time
}

// Decision is the outcome for one symbol.
type Decision struct {
	Action   Action
	Side     domain.OrderSide
	Quantity decimal.Decimal
	Reason   string
}

// Decide applies the entry and exit rules. It has no side effects.
//
// Enter when nothing is held, RSI is below RSILow and the price is under the
// lower band. Exit the whole holding when it has been held longer than
// HoldLimit, when price/buy-in leaves [ProfitMin, ProfitMax), or when RSI is
// above RSIHigh and the price is over the upper band.
func (c Config) Decide(in DecisionInput) Decision {
	price := in.Price.InexactFloat64()
	owned := in.Position.Owned

	if !owned.IsPositive() {
		if in.RSI < c.RSILow && price < in.Bands.Lower {
			return Decision{
				Action:   Enter,
				Side:     domain.OrderSideBuy,
				Quantity: c.UnitQuantity,
				Reason:   "oversold",
			}
		}
		return Decision{Action: Hold}
	}

	exit := func(reason string) Decision {
		return Decision{Action: Exit, Side: domain.OrderSideSell, Quantity: owned, Reason: reason}
	}

	if !in.Position.LastUpdate.IsZero() && in.Now.Sub(in.Position.LastUpdate) > c.HoldLimit {
		return exit("hold_limit")
	}
	if buyIn := in.Position.BuyInPrice; !buyIn.IsZero() {
		ratio := in.Price.Div(buyIn)
		if ratio.LessThan(c.ProfitMin) || !ratio.LessThan(c.ProfitMax) {
			return exit("profit_band")
		}
	}
	if in.RSI > c.RSIHigh && price > in.Bands.Upper {
		return exit("overbought")
	}
	return Decision{Action: Hold}
}
