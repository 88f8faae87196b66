// Package session decides, once per main-loop iteration, whether the
// strategy should run, whether the session is about to close, or whether the
// process should sleep until the next open.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

const (
	defaultTickPeriod  = 90 * time.Second
	defaultCloseMargin = time.Minute
)

// Options configures a Ticker. Zero values select the defaults.
type Options struct {
	// TickPeriod is the wake interval while the market is open.
	TickPeriod time.Duration
	// CloseMargin is added to the close time before a fresh clock is fetched.
	CloseMargin time.Duration
	Clock       Clock
	Logger      *slog.Logger
}

// Ticker tracks the trading session. It only queries the broker clock at
// construction and once per session, after the close.
type Ticker struct {
	source domain.ClockSource
	clock  Clock
	tick   time.Duration
	margin time.Duration
	logger *slog.Logger

	current      domain.Clock
	openAndReady bool

	// owned is the clock NewTicker built itself, stopped by Stop.
	owned *RealClock
}

// NewTicker fetches the broker clock and builds a Ticker from it.
func NewTicker(ctx context.Context, source domain.ClockSource, opts Options) (*Ticker, error) {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = defaultTickPeriod
	}
	if opts.CloseMargin <= 0 {
		opts.CloseMargin = defaultCloseMargin
	}
	var owned *RealClock
	if opts.Clock == nil {
		owned = NewRealClock(opts.TickPeriod)
		opts.Clock = owned
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	clk, err := source.GetClock(ctx)
	if err != nil {
		if owned != nil {
			owned.Stop()
		}
		return nil, fmt.Errorf("session: get clock: %w", err)
	}

	t := &Ticker{
		source:       source,
		clock:        opts.Clock,
		tick:         opts.TickPeriod,
		margin:       opts.CloseMargin,
		logger:       opts.Logger.With(slog.String("component", "session_ticker")),
		current:      clk,
		openAndReady: clk.IsOpen,
		owned:        owned,
	}
	t.logger.InfoContext(ctx, "session: ticker started",
		slog.Bool("open", clk.IsOpen),
		slog.Time("next_open", clk.NextOpen),
		slog.Time("next_close", clk.NextClose),
		slog.Duration("tick", t.tick),
	)
	return t, nil
}

// WaitForOpenOrTick blocks until the caller should act and returns what to
// do. While the session is open it waits one tick and returns MarketOpen,
// or MarketAboutToClose exactly once when the close is at most two ticks
// away. Otherwise it waits out the rest of the current session, fetches a
// fresh clock and sleeps until the next open.
//
// A clock fetch failure, or a fresh clock that reports the market open right
// after a close, is returned as an error; the latter wraps ErrClockAnomaly.
func (t *Ticker) WaitForOpenOrTick(ctx context.Context) (domain.MarketStatus, error) {
	if t.openAndReady {
		remaining := t.current.NextClose.Sub(t.clock.Now())
		if err := t.clock.Tick(ctx); err != nil {
			return domain.MarketOpen, err
		}
		if remaining <= 2*t.tick {
			t.openAndReady = false
			t.logger.InfoContext(ctx, "session: market about to close",
				slog.Duration("remaining", remaining),
				slog.Time("next_close", t.current.NextClose),
			)
			return domain.MarketAboutToClose, nil
		}
		return domain.MarketOpen, nil
	}

	now := t.clock.Now()
	inSession := t.current.IsOpen || !now.Before(t.current.NextOpen)
	if inSession && now.Before(t.current.NextClose) {
		wait := t.current.NextClose.Sub(now) + t.margin
		t.logger.InfoContext(ctx, "session: waiting for session close",
			slog.String("until", t.current.NextClose.Local().Format("Mon 02/01/2006 at 03:04 pm")),
			slog.Duration("wait", wait),
		)
		if err := t.clock.Sleep(ctx, wait); err != nil {
			return domain.MarketOpen, err
		}
	}

	fresh, err := t.source.GetClock(ctx)
	if err != nil {
		return domain.MarketOpen, fmt.Errorf("session: get clock: %w", err)
	}
	if fresh.IsOpen {
		return domain.MarketOpen, fmt.Errorf("session: clock reports open at %s after close %s: %w",
			fresh.Timestamp.Format(time.RFC3339), t.current.NextClose.Format(time.RFC3339), domain.ErrClockAnomaly)
	}
	t.current = fresh

	t.logger.InfoContext(ctx, "session: sleeping until the market opens",
		slog.String("open", fresh.NextOpen.Local().Format("Monday 02/01/2006 at 03:04 pm")),
		slog.String("close", fresh.NextClose.Local().Format("03:04 pm")),
	)
	if err := t.clock.Sleep(ctx, fresh.NextOpen.Sub(t.clock.Now())); err != nil {
		return domain.MarketOpen, err
	}
	t.logger.InfoContext(ctx, "session: sleep over")

	t.openAndReady = true
	return domain.MarketOpen, nil
}

// Stop releases the real clock NewTicker created. A Clock passed in Options
// belongs to the caller and is left running. Stop may be called more than
// once.
func (t *Ticker) Stop() {
	if t.owned != nil {
		t.owned.Stop()
	}
}

// Current returns the last clock the ticker fetched.
func (t *Ticker) Current() domain.Clock { return t.current }

// Ready reports whether the ticker believes a session is in progress.
func (t *Ticker) Ready() bool { return t.openAndReady }
