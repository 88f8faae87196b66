// Package service drives the trading core: one scheduling decision per step,
// followed by either a strategy cycle or the end-of-session routine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/strategy"
)

// Scheduler decides what the next step does.
type Scheduler interface {
	WaitForOpenOrTick(ctx context.Context) (domain.MarketStatus, error)
}

// WatcherSupervisor keeps the order watcher alive.
type WatcherSupervisor interface {
	OpenIfClosed(ctx context.Context) bool
	Restarts() int
}

// StrategyRunner evaluates the watch list and liquidates holdings.
type StrategyRunner interface {
	RunCycle(ctx context.Context, watch []domain.Symbol) (strategy.CycleReport, error)
	Liquidate(ctx context.Context, keep func(domain.Symbol) bool) ([]domain.OrderRequest, error)
}

// AccountBroker is the part of the backend used at session close.
type AccountBroker interface {
	CancelAllOpenOrders(ctx context.Context) ([]domain.CancelledOrder, error)
	GetAccountEquity(ctx context.Context) (domain.Equity, error)
}

// Trader runs the main loop.
type Trader struct {
	sched    Scheduler
	watchers WatcherSupervisor
	strategy StrategyRunner
	broker   AccountBroker
	reporter *Reporter
	watch    []domain.Symbol
	logger   *slog.Logger
	now      func() time.Time
}

// NewTrader creates a Trader over the given watch list.
func NewTrader(
	sched Scheduler,
	watchers WatcherSupervisor,
	runner StrategyRunner,
	broker AccountBroker,
	reporter *Reporter,
	watch []domain.Symbol,
	logger *slog.Logger,
) *Trader {
	return &Trader{
		sched:    sched,
		watchers: watchers,
		strategy: runner,
		broker:   broker,
		reporter: reporter,
		watch:    watch,
		logger:   logger.With(slog.String("component", "trader")),
		now:      time.Now,
	}
}

// Step runs one scheduling decision and acts on it. Errors returned from
// Step are fatal: a failed clock fetch, a clock anomaly, or a failed
// cancel-all at session close. Everything else is logged and absorbed.
func (t *Trader) Step(ctx context.Context) (domain.MarketStatus, error) {
	status, err := t.sched.WaitForOpenOrTick(ctx)
	if err != nil {
		return status, fmt.Errorf("service: schedule: %w", err)
	}

	switch status {
	case domain.MarketOpen:
		t.open(ctx)
		return status, nil
	case domain.MarketAboutToClose:
		return status, t.closeSession(ctx)
	default:
		return status, fmt.Errorf("service: unknown market status %s", status)
	}
}

// Run calls Step until ctx is cancelled or Step fails.
func (t *Trader) Run(ctx context.Context) error {
	for {
		if _, err := t.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			if errors.Is(err, domain.ErrClockAnomaly) {
				t.reporter.ClockAnomaly(ctx, err)
			}
			return err
		}
	}
}

func (t *Trader) open(ctx context.Context) {
	if t.watchers.OpenIfClosed(ctx) {
		t.logger.DebugContext(ctx, "trader: order watcher (re)started",
			slog.Int("restarts", t.watchers.Restarts()),
		)
	}

	t.logger.DebugContext(ctx, "trader: measuring trends...")
	report, err := t.strategy.RunCycle(ctx, t.watch)
	if err != nil {
		t.logger.ErrorContext(ctx, "trader: strategy cycle failed",
			slog.String("op", "run_cycle"),
			slog.String("error", err.Error()),
		)
		return
	}
	t.logger.DebugContext(ctx, "trader: strategy cycle done",
		slog.Int("considered", report.Considered),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("orders", len(report.Submitted)),
	)
}

func (t *Trader) closeSession(ctx context.Context) error {
	cancelled, err := t.broker.CancelAllOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("service: cancel all open orders: %w", err)
	}
	if len(cancelled) > 0 {
		t.logger.DebugContext(ctx, "trader: open orders cancelled", slog.Int("cancelled", len(cancelled)))
	}

	sells, err := t.strategy.Liquidate(ctx, func(domain.Symbol) bool { return true })
	if err != nil {
		t.logger.ErrorContext(ctx, "trader: liquidation incomplete",
			slog.String("op", "liquidate"),
			slog.String("error", err.Error()),
		)
	}

	equity, err := t.broker.GetAccountEquity(ctx)
	if err != nil {
		t.logger.ErrorContext(ctx, "trader: account equity unavailable",
			slog.String("op", "get_account_equity"),
			slog.String("error", err.Error()),
		)
		return nil
	}

	now := t.now()
	liquidated := make([]string, len(sells))
	for i, s := range sells {
		liquidated[i] = s.Symbol.String()
	}
	t.reporter.DaySummary(ctx, domain.DaySummary{
		ID:              uuid.NewString(),
		SessionDate:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		CurrentEquity:   equity.Current,
		LastEquity:      equity.Last,
		Delta:           equity.Delta(),
		CancelledOrders: len(cancelled),
		Liquidated:      liquidated,
		WatcherRestarts: t.watchers.Restarts(),
		GeneratedAt:     now.UTC(),
	})
	return nil
}
