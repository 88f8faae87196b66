package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/ledger"
)

// Supervisor owns the single OrderWatcher of the process and replaces it
// when it has finished. Restarts only happen through OpenIfClosed, which the
// main loop calls once per open-session decision.
type Supervisor struct {
	sub      domain.OrderUpdateSubscriber
	state    *ledger.AccountState
	observer FillObserver
	logger   *slog.Logger

	// OnRestart, when set, is called after a finished watcher was replaced.
	OnRestart func(ctx context.Context, restarts int)

	mu       sync.Mutex
	current  *OrderWatcher
	restarts int
}

// NewSupervisor creates a Supervisor. No watcher runs until the first
// OpenIfClosed call.
func NewSupervisor(
	sub domain.OrderUpdateSubscriber,
	state *ledger.AccountState,
	observer FillObserver,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		sub:      sub,
		state:    state,
		observer: observer,
		logger:   logger,
	}
}

// OpenIfClosed starts a watcher when none is running and reports whether it
// did. Calling it while the current watcher is alive is a no-op.
func (s *Supervisor) OpenIfClosed(ctx context.Context) bool {
	s.mu.Lock()
	if s.current != nil && !s.current.Finished() {
		s.mu.Unlock()
		return false
	}
	replacing := s.current != nil
	if replacing {
		s.restarts++
	}
	restarts := s.restarts
	s.current = Start(ctx, s.sub, s.state, s.observer, s.logger)
	s.mu.Unlock()

	if replacing {
		s.logger.WarnContext(ctx, "watcher: restarted finished order watcher",
			slog.String("component", "watcher_supervisor"),
			slog.Int("restarts", restarts),
		)
		if s.OnRestart != nil {
			s.OnRestart(ctx, restarts)
		}
	}
	return true
}

// WaitSubscribed blocks until the current watcher's feed is open. It fails
// when no watcher was started, when the subscription ended first, or when ctx
// is done.
func (s *Supervisor) WaitSubscribed(ctx context.Context) error {
	w := s.Current()
	if w == nil {
		return errors.New("watcher: no order watcher started")
	}
	select {
	case <-w.Subscribed():
		return nil
	case <-w.Done():
		return errors.New("watcher: order update feed ended before it opened")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restarts returns how many times a finished watcher has been replaced.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Current returns the running watcher, or nil before the first start.
func (s *Supervisor) Current() *OrderWatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
