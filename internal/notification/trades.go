package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forex-autopilot/internal/portfolio"
)

// TradeOpened builds the alert for a newly opened trade.
func TradeOpened(t portfolio.Trade) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s opened", t.Direction, t.Symbol),
		Message: fmt.Sprintf("Entry %.5f | SL %.5f | TP %.5f | %.2f lots | score %.1f",
			t.EntryPrice, t.StopLoss, t.TargetPrice, t.LotSize, t.Score),
	}
}

// TradeClosed builds the alert for a closed trade. Losing stop-outs are
// warnings.
func TradeClosed(t portfolio.Trade) Alert {
	level := AlertInfo
	if t.Status.IsLoss() {
		level = AlertWarning
	}
	exit := 0.0
	if t.ExitPrice != nil {
		exit = *t.ExitPrice
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s %s", t.Symbol, t.Direction, t.Status),
		Message: fmt.Sprintf("Exit %.5f | P&L $%.2f", exit, t.PnL),
	}
}

// GateDenied builds the alert for a risk gate denial.
func GateDenied(reason string) Alert {
	return Alert{Level: AlertCritical, Title: "Auto-trading paused", Message: reason}
}

// Dispatcher delivers alerts on its own goroutine so callers never wait on
// the network. When the queue is full new alerts are dropped.
type Dispatcher struct {
	n       Notifier
	queue   chan Alert
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with a queue of size buffer.
func NewDispatcher(n Notifier, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{n: n, queue: make(chan Alert, buffer), timeout: 15 * time.Second}
}

// Notify queues alert for delivery.
func (d *Dispatcher) Notify(alert Alert) bool {
	select {
	case d.queue <- alert:
		return true
	default:
		slog.Warn("alert queue full, dropping alert", "title", alert.Title)
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.queue:
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			if err := d.n.Send(sctx, a); err != nil {
				slog.Error("alert delivery failed", "title", a.Title, "error", err)
			}
			cancel()
		}
	}
}
