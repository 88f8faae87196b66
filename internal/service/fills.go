package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

const fillSinkTimeout = 5 * time.Second

// FillRecorder forwards terminal order updates to the audit log and the
// fills channel. It runs on the watcher goroutine, so every sink call is
// bounded by a short timeout.
type FillRecorder struct {
	audit  domain.AuditStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewFillRecorder creates a FillRecorder. Either sink may be nil.
func NewFillRecorder(audit domain.AuditStore, bus domain.SignalBus, logger *slog.Logger) *FillRecorder {
	return &FillRecorder{
		audit:  audit,
		bus:    bus,
		logger: logger.With(slog.String("component", "fill_recorder")),
	}
}

// OnOrderUpdate implements watcher.FillObserver.
func (f *FillRecorder) OnOrderUpdate(ctx context.Context, u domain.OrderUpdate, pos domain.Position) {
	if !u.Status.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, fillSinkTimeout)
	defer cancel()

	evt := domain.FillEvent{
		Symbol:    u.Symbol.String(),
		Side:      u.Side,
		Status:    u.Status,
		Filled:    u.FilledQuantity,
		Price:     u.AverageFillPrice,
		Owned:     pos.Owned,
		Timestamp: u.Timestamp,
	}

	if f.audit != nil {
		if err := f.audit.Log(ctx, domain.AuditFill, map[string]any{
			"symbol":   evt.Symbol,
			"side":     string(evt.Side),
			"status":   string(evt.Status),
			"filled":   evt.Filled.String(),
			"price":    evt.Price.String(),
			"owned":    evt.Owned.String(),
			"order_id": u.OrderID,
		}); err != nil {
			f.logger.WarnContext(ctx, "fill_recorder: audit log failed",
				slog.String("symbol", evt.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	if f.bus != nil {
		payload, err := json.Marshal(evt)
		if err == nil {
			err = f.bus.Publish(ctx, domain.ChannelFills, payload)
		}
		if err != nil {
			f.logger.WarnContext(ctx, "fill_recorder: publish failed",
				slog.String("symbol", evt.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
