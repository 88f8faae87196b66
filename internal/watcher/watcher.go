// Package watcher keeps the ledger in sync with the broker's order-update
// feed.
package watcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/wolfbot/internal/domain"
	"github.com/alanyoungcy/wolfbot/internal/ledger"
)

// FillObserver is notified after each update has been applied to the
// ledger. Implementations must not block.
type FillObserver interface {
	OnOrderUpdate(ctx context.Context, update domain.OrderUpdate, pos domain.Position)
}

// OrderWatcher consumes one order-update subscription and applies every
// event to the ledger. It runs a single goroutine that ends when the feed
// closes or the subscription cannot be opened; it never reconnects itself.
type OrderWatcher struct {
	sub      domain.OrderUpdateSubscriber
	state    *ledger.AccountState
	observer FillObserver
	logger   *slog.Logger

	subscribed chan struct{}
	done       chan struct{}
	once       sync.Once
}

// Start opens a subscription and begins applying updates in the background.
func Start(
	ctx context.Context,
	sub domain.OrderUpdateSubscriber,
	state *ledger.AccountState,
	observer FillObserver,
	logger *slog.Logger,
) *OrderWatcher {
	w := &OrderWatcher{
		sub:        sub,
		state:      state,
		observer:   observer,
		logger:     logger.With(slog.String("component", "order_watcher")),
		subscribed: make(chan struct{}),
		done:       make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Subscribed is closed once the feed is open. It stays open when the
// subscription fails; Done is closed instead.
func (w *OrderWatcher) Subscribed() <-chan struct{} { return w.subscribed }

// Done is closed when the watcher has stopped.
func (w *OrderWatcher) Done() <-chan struct{} { return w.done }

// Finished reports whether the watcher has stopped.
func (w *OrderWatcher) Finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *OrderWatcher) run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })

	updates, err := w.sub.SubscribeOrderUpdates(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "watcher: subscribe failed",
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.InfoContext(ctx, "watcher: subscribed to order updates")
	close(w.subscribed)

	for res := range updates {
		if res.Err != nil {
			w.logger.WarnContext(ctx, "watcher: bad order update",
				slog.String("error", res.Err.Error()),
			)
			continue
		}
		w.apply(ctx, res.Update)
	}

	w.logger.WarnContext(ctx, "watcher: order update feed closed")
}

func (w *OrderWatcher) apply(ctx context.Context, u domain.OrderUpdate) {
	terminal := u.Status.IsTerminal()
	pos := w.state.UpsertFromFill(u.Symbol, u.SignedFill(), u.AverageFillPrice, terminal)

	w.logger.DebugContext(ctx, "watcher: order update applied",
		slog.String("symbol", u.Symbol.String()),
		slog.String("event", u.Event),
		slog.String("status", string(u.Status)),
		slog.Bool("terminal", terminal),
		slog.String("filled", u.FilledQuantity.String()),
		slog.String("owned", pos.Owned.String()),
	)

	if w.observer != nil {
		w.observer.OnOrderUpdate(ctx, u, pos)
	}
}
