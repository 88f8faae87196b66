package session

import (
	"context"
	"time"
)

// Clock is the scheduler's view of time. Tick blocks until the next
// fixed-period wake; ticks that were missed while the caller was busy are
// coalesced into a single wake.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	Tick(ctx context.Context) error
}

// RealClock is the wall-clock implementation backed by one time.Ticker.
type RealClock struct {
	ticker *time.Ticker
}

// NewRealClock starts a ticker with the given period. Call Stop when done.
func NewRealClock(period time.Duration) *RealClock {
	return &RealClock{ticker: time.NewTicker(period)}
}

func (c *RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done. Non-positive durations return
// immediately.
func (c *RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tick waits for the next tick. The ticker channel holds at most one
// pending tick, so a slow caller never sees a burst of catch-up ticks.
func (c *RealClock) Tick(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticker.C:
		return nil
	}
}

// Stop releases the ticker.
func (c *RealClock) Stop() { c.ticker.Stop() }
