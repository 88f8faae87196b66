package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

const tick = 90 * time.Second

// fakeClock advances virtual time on every Sleep and Tick.
type fakeClock struct {
	now    time.Time
	ticks  int
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) Tick(context.Context) error {
	c.ticks++
	c.now = c.now.Add(tick)
	return nil
}

// fakeSource returns queued clocks; once exhausted it keeps returning the
// last one.
type fakeSource struct {
	clocks []domain.Clock
	err    error
	calls  int
}

func (s *fakeSource) GetClock(context.Context) (domain.Clock, error) {
	s.calls++
	if s.err != nil {
		return domain.Clock{}, s.err
	}
	i := min(s.calls-1, len(s.clocks)-1)
	return s.clocks[i], nil
}

var (
	day1Open  = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	day1Close = time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	day2Open  = time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC)
	day2Close = time.Date(2026, 3, 3, 21, 0, 0, 0, time.UTC)
)

func newTicker(t *testing.T, clk *fakeClock, src *fakeSource) *Ticker {
	t.Helper()
	tk, err := NewTicker(context.Background(), src, Options{
		TickPeriod:  tick,
		CloseMargin: time.Minute,
		Clock:       clk,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return tk
}

func TestAboutToCloseWhenWithinTwoTicks(t *testing.T) {
	clk := &fakeClock{now: day1Close.Add(-2 * tick)}
	src := &fakeSource{clocks: []domain.Clock{{IsOpen: true, NextOpen: day2Open, NextClose: day1Close}}}
	tk := newTicker(t, clk, src)

	status, err := tk.WaitForOpenOrTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketAboutToClose, status)
	assert.Equal(t, 1, clk.ticks, "the about-to-close decision still waits one tick")
	assert.False(t, tk.Ready())
}

func TestOpenWhileFarFromClose(t *testing.T) {
	clk := &fakeClock{now: day1Open.Add(time.Hour)}
	src := &fakeSource{clocks: []domain.Clock{{IsOpen: true, NextOpen: day2Open, NextClose: day1Close}}}
	tk := newTicker(t, clk, src)

	for i := 0; i < 10; i++ {
		status, err := tk.WaitForOpenOrTick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.MarketOpen, status)
	}
	assert.Equal(t, 10, clk.ticks)
	assert.Equal(t, 1, src.calls, "no clock refresh while the session is open")
}

func TestFullSessionCycle(t *testing.T) {
	clk := &fakeClock{now: day1Close.Add(-5 * time.Minute)}
	src := &fakeSource{clocks: []domain.Clock{
		{IsOpen: true, NextOpen: day2Open, NextClose: day1Close},
		{IsOpen: false, NextOpen: day2Open, NextClose: day2Close},
	}}
	tk := newTicker(t, clk, src)
	ctx := context.Background()

	var statuses []domain.MarketStatus
	for i := 0; i < 8; i++ {
		s, err := tk.WaitForOpenOrTick(ctx)
		require.NoError(t, err)
		statuses = append(statuses, s)
	}

	// 300s and 210s left are open; 120s left is within two ticks. The next
	// call waits out the close and sleeps until day 2 opens.
	assert.Equal(t, []domain.MarketStatus{
		domain.MarketOpen, domain.MarketOpen,
		domain.MarketAboutToClose,
		domain.MarketOpen,
		domain.MarketOpen, domain.MarketOpen, domain.MarketOpen, domain.MarketOpen,
	}, statuses)
	assert.Equal(t, 2, src.calls)
	assert.False(t, clk.now.Before(day2Open))
	assert.Equal(t, day2Close, tk.Current().NextClose)
}

func TestAboutToCloseNeverFiresTwicePerSession(t *testing.T) {
	clk := &fakeClock{now: day1Open}
	src := &fakeSource{clocks: []domain.Clock{
		{IsOpen: true, NextOpen: day2Open, NextClose: day1Close},
		{IsOpen: false, NextOpen: day2Open, NextClose: day2Close},
		{IsOpen: false, NextOpen: day2Open.Add(24 * time.Hour), NextClose: day2Close.Add(24 * time.Hour)},
	}}
	tk := newTicker(t, clk, src)
	ctx := context.Background()

	closes := 0
	fetchesAtClose := []int{}
	for i := 0; i < 600; i++ {
		s, err := tk.WaitForOpenOrTick(ctx)
		require.NoError(t, err)
		if s == domain.MarketAboutToClose {
			closes++
			fetchesAtClose = append(fetchesAtClose, src.calls)
		}
	}
	assert.Equal(t, 2, closes)
	assert.Equal(t, []int{1, 2}, fetchesAtClose, "each about-to-close is preceded by a distinct clock fetch")
}

func TestConstructedMidSessionWhileNotReady(t *testing.T) {
	// The broker said closed at construction, but the stored window says the
	// session is under way: the ticker waits out the close before refreshing.
	now := day1Open.Add(2 * time.Hour)
	clk := &fakeClock{now: now}
	src := &fakeSource{clocks: []domain.Clock{
		{IsOpen: false, NextOpen: day1Open, NextClose: day1Close},
		{IsOpen: false, NextOpen: day2Open, NextClose: day2Close},
	}}
	tk := newTicker(t, clk, src)

	status, err := tk.WaitForOpenOrTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketOpen, status)
	require.Len(t, clk.sleeps, 2)
	assert.Equal(t, day1Close.Sub(now)+time.Minute, clk.sleeps[0])
	assert.Equal(t, day2Open, clk.now)
	assert.True(t, tk.Ready())
}

func TestClosedAtConstructionSleepsUntilOpen(t *testing.T) {
	clk := &fakeClock{now: day1Close.Add(3 * time.Hour)}
	src := &fakeSource{clocks: []domain.Clock{{IsOpen: false, NextOpen: day2Open, NextClose: day2Close}}}
	tk := newTicker(t, clk, src)

	status, err := tk.WaitForOpenOrTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.MarketOpen, status)
	require.Len(t, clk.sleeps, 1)
	assert.Equal(t, day2Open, clk.now)
}

func TestClockAnomalyIsFatal(t *testing.T) {
	clk := &fakeClock{now: day1Close.Add(time.Minute)}
	src := &fakeSource{clocks: []domain.Clock{
		{IsOpen: false, NextOpen: day1Open, NextClose: day1Close},
		{IsOpen: true, Timestamp: day1Close.Add(2 * time.Minute), NextOpen: day2Open, NextClose: day2Close},
	}}
	tk := newTicker(t, clk, src)

	_, err := tk.WaitForOpenOrTick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClockAnomaly)
	assert.False(t, tk.Ready())
}

func TestClockFetchFailurePropagates(t *testing.T) {
	clk := &fakeClock{now: day1Close.Add(time.Hour)}
	src := &fakeSource{clocks: []domain.Clock{{IsOpen: false, NextOpen: day1Open, NextClose: day1Close}}}
	tk := newTicker(t, clk, src)

	boom := errors.New("503 service unavailable")
	src.err = boom
	_, err := tk.WaitForOpenOrTick(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = NewTicker(context.Background(), src, Options{Clock: clk})
	assert.ErrorIs(t, err, boom)
}

func TestStopReleasesOwnedClock(t *testing.T) {
	src := &fakeSource{clocks: []domain.Clock{{IsOpen: false, NextOpen: day1Open, NextClose: day1Close}}}
	tk, err := NewTicker(context.Background(), src, Options{
		TickPeriod: 10 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NotNil(t, tk.owned)

	tk.Stop()
	tk.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tk.clock.Tick(ctx), context.DeadlineExceeded, "no ticks after Stop")
}

func TestStopLeavesCallerClockAlone(t *testing.T) {
	clk := &fakeClock{now: day1Open.Add(time.Hour)}
	src := &fakeSource{clocks: []domain.Clock{{IsOpen: true, NextOpen: day2Open, NextClose: day1Close}}}
	tk := newTicker(t, clk, src)
	assert.Nil(t, tk.owned)
	tk.Stop()

	require.NoError(t, clk.Tick(context.Background()))
	assert.Equal(t, 1, clk.ticks)
}
