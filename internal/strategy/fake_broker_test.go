package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

type fakeBroker struct {
	mu sync.Mutex

	bars      map[domain.Symbol][]domain.Bar
	barsErr   map[domain.Symbol]error
	prices    map[domain.Symbol]decimal.Decimal
	pricesErr error
	submitErr map[domain.Symbol]error

	// onBars runs inside GetRecentBars, standing in for a feed event that
	// lands while the cycle is fetching.
	onBars func(domain.Symbol)

	barCalls []domain.Symbol
	orders   []domain.OrderRequest
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		bars:      make(map[domain.Symbol][]domain.Bar),
		barsErr:   make(map[domain.Symbol]error),
		prices:    make(map[domain.Symbol]decimal.Decimal),
		submitErr: make(map[domain.Symbol]error),
	}
}

func (f *fakeBroker) setSeries(sym domain.Symbol, price string, closes ...float64) {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Close: decimal.NewFromFloat(c)}
	}
	f.bars[sym] = bars
	f.prices[sym] = decimal.RequireFromString(price)
}

func (f *fakeBroker) GetLatestPrices(_ context.Context, symbols []domain.Symbol) (map[domain.Symbol]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pricesErr != nil {
		return nil, f.pricesErr
	}
	out := make(map[domain.Symbol]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakeBroker) GetRecentBars(_ context.Context, sym domain.Symbol, _ domain.TimePeriod, _ domain.Feed) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barCalls = append(f.barCalls, sym)
	if f.onBars != nil {
		f.onBars(sym)
	}
	if err := f.barsErr[sym]; err != nil {
		return nil, err
	}
	return f.bars[sym], nil
}

func (f *fakeBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.submitErr[req.Symbol]; err != nil {
		return domain.OrderAck{}, err
	}
	f.orders = append(f.orders, req)
	return domain.OrderAck{ID: "ord-" + req.ClientOrderID, Symbol: req.Symbol, Side: req.Side}, nil
}

func (f *fakeBroker) CancelAllOpenOrders(context.Context) ([]domain.CancelledOrder, error) {
	return nil, nil
}

func (f *fakeBroker) submitted() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.orders...)
}

type memAudit struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *memAudit) List(context.Context, int) ([]domain.AuditEntry, error) { return nil, nil }

type memPriceCache struct {
	mu     sync.Mutex
	prices map[domain.Symbol]decimal.Decimal
}

func (m *memPriceCache) SetPrices(_ context.Context, p map[domain.Symbol]decimal.Decimal, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices == nil {
		m.prices = make(map[domain.Symbol]decimal.Decimal)
	}
	for k, v := range p {
		m.prices[k] = v
	}
	return nil
}

func (m *memPriceCache) GetPrice(_ context.Context, s domain.Symbol) (decimal.Decimal, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[s]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

var errBroker = errors.New("broker unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
