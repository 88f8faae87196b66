package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/wolfbot/internal/config"
	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/ledger"
	"github.com/alanyoungcy/wolfbot/internal/service"
	"github.com/alanyoungcy/wolfbot/internal/session"
	"github.com/alanyoungcy/wolfbot/internal/strategy"
	"github.com/alanyoungcy/wolfbot/internal/watcher"
)

// AssetLister lists the symbols the broker can trade.
type AssetLister interface {
	ListActiveAssets(ctx context.Context) ([]domain.Symbol, error)
}

// Trade runs the startup sequence and then the trading loop:
//
//  1. seed the ledger from the broker's positions
//  2. take the single-trader lock (redis only) and keep extending it
//  3. start the order watcher and wait until its feed is open
//  4. build the watch list
//  5. cancel every open order and sell holdings outside the watch list
//  6. build the session ticker and hand over to the Trader
//
// The watcher comes up before any order is cancelled or sent so that fills
// of the startup orders reach the ledger.
func (a *App) Trade(ctx context.Context, deps *Dependencies) error {
	logger := a.logger
	backend := deps.Backend

	state := ledger.New()
	positions, err := backend.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("app: list positions: %w", err)
	}
	state.Seed(positions)
	logger.InfoContext(ctx, "ledger seeded",
		slog.String("component", "app"),
		slog.Int("positions", state.Len()),
	)

	// Stops the order watcher when startup fails part way.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if deps.LockManager != nil {
		ttl := a.cfg.Redis.LockTTL.Duration
		lock, err := deps.LockManager.Acquire(ctx, a.cfg.Redis.LockKey, ttl)
		if err != nil {
			return fmt.Errorf("app: acquire trading lock: %w", err)
		}
		defer lock.Release()
		g.Go(func() error {
			return keepLock(gctx, lock, ttl)
		})
	}

	reporter := newReporter(deps, logger)

	supervisor := watcher.NewSupervisor(
		backend,
		state,
		service.NewFillRecorder(deps.AuditStore, deps.SignalBus, logger),
		logger,
	)
	supervisor.OnRestart = reporter.WatcherRestarted

	supervisor.OpenIfClosed(gctx)
	if err := supervisor.WaitSubscribed(ctx); err != nil {
		return fmt.Errorf("app: order watcher: %w", err)
	}

	watch, err := buildWatchList(ctx, backend, a.cfg.Strategy)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "watch list ready",
		slog.String("component", "app"),
		slog.Int("symbols", len(watch)),
	)

	cancelled, err := backend.CancelAllOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("app: cancel open orders: %w", err)
	}
	logger.InfoContext(ctx, "open orders cancelled",
		slog.String("component", "app"),
		slog.Int("cancelled", len(cancelled)),
	)

	engine := strategy.NewEngine(backend, state, strategyConfig(a.cfg), logger)
	if deps.PriceCache != nil {
		engine.SetPriceCache(deps.PriceCache)
	}
	if deps.AuditStore != nil {
		engine.SetAuditStore(deps.AuditStore)
	}

	if a.cfg.Strategy.LiquidateUnwatched {
		sold, err := engine.Liquidate(ctx, notWatched(watch))
		if err != nil {
			logger.WarnContext(ctx, "startup liquidation incomplete",
				slog.String("component", "app"),
				slog.String("error", err.Error()),
			)
		}
		logger.InfoContext(ctx, "unwatched positions liquidated",
			slog.String("component", "app"),
			slog.Int("orders", len(sold)),
		)
	}

	ticker, err := session.NewTicker(ctx, backend, session.Options{
		TickPeriod:  a.cfg.Session.TickPeriod.Duration,
		CloseMargin: a.cfg.Session.CloseMargin.Duration,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("app: session ticker: %w", err)
	}
	a.closers = append(a.closers, ticker.Stop)

	trader := service.NewTrader(ticker, supervisor, engine, backend, reporter, watch, logger)
	g.Go(func() error {
		return trader.Run(gctx)
	})

	return g.Wait()
}

// keepLock extends lock every third of its TTL until ctx ends. Losing the
// lock stops the bot: another process may be trading the same account.
func keepLock(ctx context.Context, lock domain.Lock, ttl time.Duration) error {
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := lock.Extend(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("app: extend trading lock: %w", err)
			}
		}
	}
}

// buildWatchList returns the configured watch list, or the broker's active
// assets when none is configured, capped at MaxWatch.
func buildWatchList(ctx context.Context, lister AssetLister, cfg config.StrategyConfig) ([]domain.Symbol, error) {
	watch := domain.ParseSymbols(cfg.Watchlist)
	if len(watch) == 0 {
		assets, err := lister.ListActiveAssets(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: list active assets: %w", err)
		}
		watch = assets
	}
	if len(watch) == 0 {
		return nil, errors.New("app: empty watch list")
	}
	if cfg.MaxWatch > 0 && len(watch) > cfg.MaxWatch {
		watch = watch[:cfg.MaxWatch]
	}
	return watch, nil
}

// notWatched reports true for symbols outside watch.
func notWatched(watch []domain.Symbol) func(domain.Symbol) bool {
	set := make(map[domain.Symbol]struct{}, len(watch))
	for _, s := range watch {
		set[s] = struct{}{}
	}
	return func(s domain.Symbol) bool {
		_, ok := set[s]
		return !ok
	}
}

func strategyConfig(cfg *config.Config) strategy.Config {
	s := cfg.Strategy
	return strategy.Config{
		Period:           s.Period(),
		Feed:             cfg.Broker.DataFeed(),
		RSILow:           s.RSILow,
		RSIHigh:          s.RSIHigh,
		HoldLimit:        s.HoldLimit.Duration,
		ProfitMin:        decimal.NewFromFloat(s.ProfitMin),
		ProfitMax:        decimal.NewFromFloat(s.ProfitMax),
		UnitQuantity:     decimal.NewFromFloat(s.UnitQuantity),
		FetchConcurrency: s.FetchConcurrency,
	}
}

func newReporter(deps *Dependencies, logger *slog.Logger) *service.Reporter {
	r := service.NewReporter(logger)
	if deps.AuditStore != nil {
		r.SetAuditStore(deps.AuditStore)
	}
	if deps.EquityStore != nil {
		r.SetEquityStore(deps.EquityStore)
	}
	if deps.SignalBus != nil {
		r.SetSignalBus(deps.SignalBus)
	}
	if deps.Archiver != nil {
		r.SetArchiver(deps.Archiver)
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		r.SetNotifier(deps.Notifier)
	}
	return r
}
