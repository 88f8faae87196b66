package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/wolfbot/internal/domain"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ReportArchiver stores day summaries in object storage.
type ReportArchiver interface {
	ArchiveDaySummary(ctx context.Context, sum domain.DaySummary) (string, error)
}

// Notification event names.
const (
	EventDaySummary      = "day_summary"
	EventWatcherRestarts = "watcher_restarted"
	EventClockAnomaly    = "clock_anomaly"
)

// Reporter fans operator-facing events out to every configured sink. Only
// the log is mandatory; each other sink is skipped when unset and its
// failures are logged, never returned.
type Reporter struct {
	logger   *slog.Logger
	audit    domain.AuditStore
	equity   domain.EquityStore
	bus      domain.SignalBus
	notifier Notifier
	archiver ReportArchiver
}

// NewReporter creates a Reporter that only logs.
func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{logger: logger.With(slog.String("component", "reporter"))}
}

func (r *Reporter) SetAuditStore(s domain.AuditStore)   { r.audit = s }
func (r *Reporter) SetEquityStore(s domain.EquityStore) { r.equity = s }
func (r *Reporter) SetSignalBus(b domain.SignalBus)     { r.bus = b }
func (r *Reporter) SetNotifier(n Notifier)              { r.notifier = n }
func (r *Reporter) SetArchiver(a ReportArchiver)        { r.archiver = a }

// DaySummary reports the equity change at the end of a session.
func (r *Reporter) DaySummary(ctx context.Context, sum domain.DaySummary) {
	msg := fmt.Sprintf("Day ended with $%s equity, an increase of $%s over yesterday",
		sum.CurrentEquity.StringFixed(2), sum.Delta.StringFixed(2))
	r.logger.InfoContext(ctx, "reporter: day summary",
		slog.String("report_id", sum.ID),
		slog.String("current_equity", sum.CurrentEquity.StringFixed(2)),
		slog.String("delta", sum.Delta.StringFixed(2)),
		slog.Int("cancelled_orders", sum.CancelledOrders),
		slog.Int("liquidated", len(sum.Liquidated)),
		slog.Int("watcher_restarts", sum.WatcherRestarts),
	)

	if r.equity != nil {
		err := r.equity.Record(ctx, domain.EquitySnapshot{
			SessionDate: sum.SessionDate,
			Current:     sum.CurrentEquity,
			Last:        sum.LastEquity,
			Positions:   len(sum.Liquidated),
			RecordedAt:  sum.GeneratedAt,
		})
		r.warn(ctx, "equity store", err)
	}

	r.auditLog(ctx, domain.AuditDaySummary, map[string]any{
		"report_id":        sum.ID,
		"current_equity":   sum.CurrentEquity.String(),
		"last_equity":      sum.LastEquity.String(),
		"delta":            sum.Delta.String(),
		"cancelled_orders": sum.CancelledOrders,
		"liquidated":       sum.Liquidated,
	})

	if r.bus != nil {
		payload, err := json.Marshal(sum)
		if err == nil {
			err = r.bus.Publish(ctx, domain.ChannelSession, payload)
		}
		r.warn(ctx, "publish day summary", err)
	}

	if r.archiver != nil {
		path, err := r.archiver.ArchiveDaySummary(ctx, sum)
		if err == nil {
			r.logger.DebugContext(ctx, "reporter: day summary archived", slog.String("path", path))
		}
		r.warn(ctx, "archive day summary", err)
	}

	r.notify(ctx, EventDaySummary, "Session closed", msg)
}

// WatcherRestarted records that a finished order watcher was replaced.
func (r *Reporter) WatcherRestarted(ctx context.Context, restarts int) {
	r.auditLog(ctx, domain.AuditWatcherRestarted, map[string]any{"restarts": restarts})
	r.notify(ctx, EventWatcherRestarts, "Order watcher restarted",
		fmt.Sprintf("The order update feed ended and was reopened (%d restarts so far).", restarts))
}

// ClockAnomaly alerts operators that the broker clock contradicted the
// session schedule and the bot is stopping.
func (r *Reporter) ClockAnomaly(ctx context.Context, cause error) {
	r.logger.ErrorContext(ctx, "reporter: clock anomaly, stopping",
		slog.String("error", cause.Error()),
	)
	// The caller's context may already be shutting down.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	r.notify(nctx, EventClockAnomaly, "Clock anomaly", cause.Error())
}

func (r *Reporter) auditLog(ctx context.Context, event string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	r.warn(ctx, "audit log", r.audit.Log(ctx, event, detail))
}

func (r *Reporter) notify(ctx context.Context, event, title, msg string) {
	if r.notifier == nil {
		return
	}
	r.warn(ctx, "notify", r.notifier.Notify(ctx, event, title, msg))
}

func (r *Reporter) warn(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	r.logger.WarnContext(ctx, "reporter: "+op+" failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}
