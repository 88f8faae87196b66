// Package strategy runs the per-cycle trading decision over a watch list.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/indicators"
	"github.com/alanyoungcy/wolfbot/internal/ledger"
)

// Config holds the strategy thresholds.
type Config struct {
	Period           domain.TimePeriod
	Feed             domain.Feed
	RSILow           float64
	RSIHigh          float64
	HoldLimit        time.Duration
	ProfitMin        decimal.Decimal
	ProfitMax        decimal.Decimal
	UnitQuantity     decimal.Decimal
	FetchConcurrency int
}

// DefaultConfig returns the thresholds the bot trades with out of the box.
func DefaultConfig() Config {
	return Config{
		Period:           domain.Days(14),
		Feed:             domain.FeedIEX,
		RSILow:           30,
		RSIHigh:          70,
		HoldLimit:        30 * time.Minute,
		ProfitMin:        decimal.RequireFromString("0.9"),
		ProfitMax:        decimal.RequireFromString("1.5"),
		UnitQuantity:     decimal.NewFromInt(1),
		FetchConcurrency: 8,
	}
}

// Broker is the subset of the backend the engine trades through.
type Broker interface {
	domain.MarketData
	domain.OrderSubmitter
}

// errOrderInFlight means the symbol got an order in flight between the
// eligibility check and the submission.
var errOrderInFlight = errors.New("strategy: order already in flight")

// CycleReport summarises one RunCycle.
type CycleReport struct {
	Considered int
	Evaluated  int
	Skipped    int
	Failed     int
	Submitted  []domain.OrderRequest
}

// Engine evaluates the watch list against the ledger and submits orders.
type Engine struct {
	broker Broker
	state  *ledger.AccountState
	cfg    Config
	logger *slog.Logger

	prices domain.PriceCache
	audit  domain.AuditStore

	now   func() time.Time
	newID func() string
}

// NewEngine creates an Engine.
func NewEngine(broker Broker, state *ledger.AccountState, cfg Config, logger *slog.Logger) *Engine {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}
	return &Engine{
		broker: broker,
		state:  state,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "strategy")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetPriceCache mirrors every fetched batch of latest prices into cache.
func (e *Engine) SetPriceCache(cache domain.PriceCache) { e.prices = cache }

// SetAuditStore records submitted and failed orders in store.
func (e *Engine) SetAuditStore(store domain.AuditStore) { e.audit = store }

type barsResult struct {
	bars []domain.Bar
	err  error
}

// RunCycle evaluates every watched symbol that has no order in flight and
// submits at most one order per symbol. Failures for a single symbol are
// logged and counted; only a failed latest-price fetch fails the cycle.
func (e *Engine) RunCycle(ctx context.Context, watch []domain.Symbol) (CycleReport, error) {
	var report CycleReport

	symbols := e.eligible(watch)
	report.Considered = len(symbols)
	if len(symbols) == 0 {
		return report, nil
	}

	bars := make(map[domain.Symbol]barsResult, len(symbols))
	var (
		mu     sync.Mutex
		latest map[domain.Symbol]decimal.Decimal
		g      errgroup.Group
	)
	g.SetLimit(e.cfg.FetchConcurrency + 1)

	g.Go(func() error {
		prices, err := e.broker.GetLatestPrices(ctx, symbols)
		if err != nil {
			return fmt.Errorf("strategy: latest prices: %w", err)
		}
		latest = prices
		return nil
	})
	for _, sym := range symbols {
		g.Go(func() error {
			b, err := e.broker.GetRecentBars(ctx, sym, e.cfg.Period, e.cfg.Feed)
			mu.Lock()
			bars[sym] = barsResult{bars: b, err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	e.mirrorPrices(ctx, latest)

	now := e.now()
	for _, sym := range symbols {
		res := bars[sym]
		if res.err != nil {
			report.Failed++
			e.logger.WarnContext(ctx, "strategy: bars fetch failed",
				slog.String("symbol", sym.String()),
				slog.String("op", "get_recent_bars"),
				slog.String("error", res.err.Error()),
			)
			continue
		}
		if len(res.bars) == 0 {
			report.Skipped++
			continue
		}
		price, ok := latest[sym]
		if !ok {
			report.Skipped++
			e.logger.WarnContext(ctx, "strategy: no latest price",
				slog.String("symbol", sym.String()),
				slog.String("error", domain.ErrNoPrice.Error()),
			)
			continue
		}

		closes := domain.Closes(res.bars)
		bands, err := indicators.Bollinger(closes, 2)
		if err != nil {
			report.Skipped++
			continue
		}
		rsi, err := indicators.RSI(closes)
		if err != nil {
			report.Skipped++
			continue
		}
		report.Evaluated++

		e.logger.DebugContext(ctx, "strategy: indicators",
			slog.String("symbol", sym.String()),
			slog.String("price", price.StringFixed(2)),
			slog.Float64("bb_lower", bands.Lower),
			slog.Float64("bb_mid", bands.Average),
			slog.Float64("bb_upper", bands.Upper),
			slog.Float64("rsi", rsi),
		)

		pos, _ := e.state.Get(sym)
		d := e.cfg.Decide(DecisionInput{
			Position: pos,
			Price:    price,
			Bands:    bands,
			RSI:      rsi,
			Now:      now,
		})
		if d.Action == Hold {
			continue
		}

		req, err := e.submit(ctx, sym, d.Side, d.Quantity, d.Reason, false)
		if errors.Is(err, errOrderInFlight) {
			report.Skipped++
			e.logger.DebugContext(ctx, "strategy: order went in flight during the cycle",
				slog.String("symbol", sym.String()),
			)
			continue
		}
		if err != nil {
			report.Failed++
			continue
		}
		report.Submitted = append(report.Submitted, req)
	}

	return report, nil
}

// Liquidate sells the full holding of every ledger entry with a positive
// quantity for which keep returns true. It returns the submitted orders;
// individual submission failures are logged and joined into the error.
func (e *Engine) Liquidate(ctx context.Context, keep func(domain.Symbol) bool) ([]domain.OrderRequest, error) {
	var (
		submitted []domain.OrderRequest
		errs      []error
	)
	for _, entry := range e.state.Snapshot() {
		if !entry.Position.Owned.IsPositive() || !keep(entry.Symbol) {
			continue
		}
		req, err := e.submit(ctx, entry.Symbol, domain.OrderSideSell, entry.Position.Owned, "liquidate", true)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		submitted = append(submitted, req)
	}
	return submitted, errors.Join(errs...)
}

func (e *Engine) eligible(watch []domain.Symbol) []domain.Symbol {
	out := make([]domain.Symbol, 0, len(watch))
	for _, sym := range watch {
		if pos, ok := e.state.Get(sym); ok && pos.OrderInProgress {
			continue
		}
		out = append(out, sym)
	}
	slices.SortFunc(out, domain.CompareSymbols)
	return slices.CompactFunc(out, func(a, b domain.Symbol) bool { return a == b })
}

// submit marks sym in flight and places a market order. Unless force is set
// it refuses with errOrderInFlight when another order is already in flight.
// The flag is only rolled back on failure when this call set it.
func (e *Engine) submit(ctx context.Context, sym domain.Symbol, side domain.OrderSide, qty decimal.Decimal, reason string, force bool) (domain.OrderRequest, error) {
	req := domain.OrderRequest{
		ClientOrderID: e.newID(),
		Symbol:        sym,
		Side:          side,
		Amount:        domain.Quantity(qty),
		TimeInForce:   domain.TimeInForceFor(sym),
	}

	marked := e.state.MarkOrderSubmitted(sym)
	if !marked && !force {
		return req, errOrderInFlight
	}
	ack, err := e.broker.SubmitOrder(ctx, req)
	if err != nil {
		if marked {
			e.state.ClearOrderSubmitted(sym)
		}
		e.logger.ErrorContext(ctx, "strategy: submit order failed",
			slog.String("symbol", sym.String()),
			slog.String("op", "submit_order"),
			slog.String("side", string(side)),
			slog.String("quantity", qty.String()),
			slog.String("error", err.Error()),
		)
		e.auditLog(ctx, domain.AuditOrderFailed, req, reason, err)
		return req, fmt.Errorf("strategy: submit %s %s: %w", side, sym, err)
	}

	e.logger.InfoContext(ctx, "strategy: order submitted",
		slog.String("symbol", sym.String()),
		slog.String("side", string(side)),
		slog.String("amount", req.Amount.String()),
		slog.String("order_id", ack.ID),
		slog.String("client_order_id", req.ClientOrderID),
		slog.String("reason", reason),
	)
	e.auditLog(ctx, domain.AuditOrderSubmitted, req, reason, nil)
	return req, nil
}

func (e *Engine) auditLog(ctx context.Context, event string, req domain.OrderRequest, reason string, cause error) {
	if e.audit == nil {
		return
	}
	detail := map[string]any{
		"symbol":          req.Symbol.String(),
		"side":            string(req.Side),
		"quantity":        req.Amount.String(),
		"client_order_id": req.ClientOrderID,
		"reason":          reason,
	}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "strategy: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) mirrorPrices(ctx context.Context, prices map[domain.Symbol]decimal.Decimal) {
	if e.prices == nil || len(prices) == 0 {
		return
	}
	if err := e.prices.SetPrices(ctx, prices, e.now()); err != nil {
		e.logger.WarnContext(ctx, "strategy: price cache update failed",
			slog.String("error", err.Error()),
		)
	}
}
