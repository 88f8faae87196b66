package domain

import (
	"cmp"
	"strings"
	"unicode"
)

// AssetClass distinguishes equities from crypto pairs. Crypto orders are
// good-till-cancelled and trade around the clock; equities follow the session.
type AssetClass string

const (
	AssetClassStock  AssetClass = "stock"
	AssetClassCrypto AssetClass = "crypto"
)

// KnownCryptos lists the base currencies classified as crypto.
var KnownCryptos = []string{
	"BTC", "ETH", "PAXG", "BCH", "AAVE", "LTC", "LINK", "UNI", "SHIB", "USDT",
}

// cryptoQuotes are the quote currencies that may follow a crypto base in a
// pair ticker such as "BTC/USD".
var cryptoQuotes = []string{"USD", "USDT", "USDC", "BTC"}

// Symbol identifies a tradable instrument. It is comparable and therefore
// usable as a map key; the class is fixed at construction.
type Symbol struct {
	Class  AssetClass
	Ticker string
}

// ParseSymbol normalises raw to its alphabetic characters and classifies it.
func ParseSymbol(raw string) Symbol {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	ticker := b.String()

	if isCrypto(ticker) {
		return Symbol{Class: AssetClassCrypto, Ticker: ticker}
	}
	return Symbol{Class: AssetClassStock, Ticker: ticker}
}

// ParseSymbols maps ParseSymbol over raw, dropping empty tickers and
// duplicates while keeping first-seen order.
func ParseSymbols(raw []string) []Symbol {
	out := make([]Symbol, 0, len(raw))
	seen := make(map[Symbol]struct{}, len(raw))
	for _, r := range raw {
		s := ParseSymbol(r)
		if s.Ticker == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isCrypto(ticker string) bool {
	for _, base := range KnownCryptos {
		if ticker == base {
			return true
		}
		rest, ok := strings.CutPrefix(ticker, base)
		if !ok {
			continue
		}
		for _, quote := range cryptoQuotes {
			if rest == quote {
				return true
			}
		}
	}
	return false
}

// IsCrypto reports whether the symbol is a crypto pair.
func (s Symbol) IsCrypto() bool { return s.Class == AssetClassCrypto }

// String returns the bare ticker.
func (s Symbol) String() string { return s.Ticker }

// PairTicker returns the ticker in the "BASE/QUOTE" form the crypto data
// endpoints expect. Stock tickers are returned unchanged.
func (s Symbol) PairTicker() string {
	if !s.IsCrypto() {
		return s.Ticker
	}
	for _, base := range KnownCryptos {
		if rest, ok := strings.CutPrefix(s.Ticker, base); ok && rest != "" {
			return base + "/" + rest
		}
	}
	return s.Ticker + "/USD"
}

// CompareSymbols orders symbols by ticker, then by class.
func CompareSymbols(a, b Symbol) int {
	if c := cmp.Compare(a.Ticker, b.Ticker); c != 0 {
		return c
	}
	return cmp.Compare(a.Class, b.Class)
}
