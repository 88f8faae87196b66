package domain

import "github.com/shopspring/decimal"

// Equity is the account value now and at the previous session's close.
type Equity struct {
	Current decimal.Decimal
	Last    decimal.Decimal
}

// Delta is the change in equity since the previous session.
func (e Equity) Delta() decimal.Decimal {
	return e.Current.Sub(e.Last)
}
