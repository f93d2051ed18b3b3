package execution

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"forex-autopilot/internal/model"
	"forex-autopilot/internal/portfolio"
)

// DefaultMonitorEvery is the live price poll period.
const DefaultMonitorEvery = 5 * time.Second

// ActiveBook is the part of the ledger the monitor polls.
type ActiveBook interface {
	ActiveSymbols() map[string]bool
	EvaluateActive(ctx context.Context, prices map[string]float64) []portfolio.Trade
}

// Monitor closes open trades whose stop or target has been touched.
type Monitor struct {
	book   ActiveBook
	prices model.PriceSource
	every  time.Duration
}

// NewMonitor creates a monitor polling every interval.
func NewMonitor(book ActiveBook, prices model.PriceSource, every time.Duration) *Monitor {
	if every <= 0 {
		every = DefaultMonitorEvery
	}
	return &Monitor{book: book, prices: prices, every: every}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("position monitor started", "every", m.every)
	ticker := time.NewTicker(m.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("position monitor stopped")
			return
		case <-ticker.C:
			m.safeTick(ctx)
		}
	}
}

func (m *Monitor) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("position monitor panicked", "panic", r)
		}
	}()
	m.Tick(ctx)
}

// Tick fetches a price for every active symbol and closes the trades that
// hit a level. Symbols whose price cannot be fetched are skipped.
func (m *Monitor) Tick(ctx context.Context) []portfolio.Trade {
	active := m.book.ActiveSymbols()
	if len(active) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(active))
	for s := range active {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p, err := m.prices.Price(pctx, s)
		cancel()
		if err != nil {
			slog.Warn("monitor: price unavailable", "symbol", s, "error", err)
			continue
		}
		prices[s] = p
	}
	if len(prices) == 0 {
		return nil
	}

	closed := m.book.EvaluateActive(ctx, prices)
	for _, t := range closed {
		slog.Info("trade closed by monitor",
			"trade_id", t.ID, "symbol", t.Symbol, "status", t.Status, "pnl", t.PnL)
	}
	return closed
}
