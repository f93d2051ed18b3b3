package portfolio

import (
	"context"
	"log/slog"
	"time"
)

// Summary is the account state the risk gate needs. It is computed from the
// ledger alone, without price lookups.
type Summary struct {
	Balance        float64 `json:"balance"`
	InitialBalance float64 `json:"initial_balance"`
	ClosedTrades   int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"` // percent, 2 dp
	TotalPnL       float64 `json:"total_pnl"`
	ActiveTrades   int     `json:"active_trades"`
}

// Stats is the full account report including floating P&L and open risk.
type Stats struct {
	TotalTrades      int     `json:"total_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalPnL         float64 `json:"total_pnl"`
	TotalFloatingPnL float64 `json:"total_floating_pnl"`
	MaxRiskPerTrade  float64 `json:"max_risk_per_trade"`
	TotalDailyRisk   float64 `json:"total_daily_risk"`
	Balance          float64 `json:"balance"`
	InitialBalance   float64 `json:"initial_balance"`
	ReturnPct        float64 `json:"return_pct"`
}

// ActiveTrade is an open trade marked to the current price.
type ActiveTrade struct {
	Trade
	RiskAmount     float64 `json:"risk_amount"`
	RiskPercentage float64 `json:"risk_percentage"`
	CurrentPrice   float64 `json:"current_price"`
	FloatingPnL    float64 `json:"floating_pnl"`
	PnLPercentage  float64 `json:"pnl_percentage"`
}

// Summary returns closed-trade statistics and the balance.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{
		Balance:        l.balance,
		InitialBalance: l.initialBalance,
		ActiveTrades:   len(l.active),
	}
	wins := 0
	total := 0.0
	for _, t := range l.trades {
		if !t.Status.Closed() {
			continue
		}
		s.ClosedTrades++
		total = addMoney(total, t.PnL)
		if t.PnL > 0 {
			wins++
		}
	}
	s.TotalPnL = total
	if s.ClosedTrades > 0 {
		s.WinRate = round2(float64(wins) / float64(s.ClosedTrades) * 100)
	}
	return s
}

// livePrice fetches a mark price with a bounded wait.
func (l *Ledger) livePrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return l.prices.Price(ctx, symbol)
}

// ActiveView marks every open trade to its live price. A failed price
// lookup falls back to the entry price with zero floating P&L.
func (l *Ledger) ActiveView(ctx context.Context) []ActiveTrade {
	trades := l.ActiveTrades()
	balance := l.Balance()

	out := make([]ActiveTrade, 0, len(trades))
	for _, t := range trades {
		v := ActiveTrade{Trade: t}

		v.RiskAmount = l.conv.MaxRisk(ctx, t)
		if balance > 0 {
			v.RiskPercentage = round2(v.RiskAmount / balance * 100)
		}

		v.CurrentPrice = t.EntryPrice
		if l.prices != nil {
			price, err := l.livePrice(ctx, t.Symbol)
			if err == nil && price > 0 {
				v.CurrentPrice = round(price, 5)
				v.FloatingPnL, v.PnLPercentage = l.conv.FloatingPnL(ctx, t, price)
			} else {
				slog.Warn("live price unavailable for active trade",
					"trade_id", t.ID, "symbol", t.Symbol, "error", err)
			}
		}
		out = append(out, v)
	}
	return out
}

// Stats returns the account report. Open trades whose price cannot be
// fetched are left out of the floating and risk totals.
func (l *Ledger) Stats(ctx context.Context) Stats {
	sum := l.Summary()
	st := Stats{
		TotalTrades:    sum.ClosedTrades,
		WinRate:        sum.WinRate,
		TotalPnL:       sum.TotalPnL,
		Balance:        round2(sum.Balance),
		InitialBalance: sum.InitialBalance,
	}
	if sum.InitialBalance > 0 && sum.ClosedTrades > 0 {
		st.ReturnPct = round2((sum.Balance - sum.InitialBalance) / sum.InitialBalance * 100)
	}

	if l.prices == nil {
		return st
	}
	var floating, totalRisk, maxRisk float64
	for _, t := range l.ActiveTrades() {
		price, err := l.livePrice(ctx, t.Symbol)
		if err != nil || price <= 0 {
			slog.Warn("stats: live price unavailable", "symbol", t.Symbol, "error", err)
			continue
		}
		f, _ := l.conv.FloatingPnL(ctx, t, price)
		floating += f
		r := l.conv.MaxRisk(ctx, t)
		totalRisk += r
		if r > maxRisk {
			maxRisk = r
		}
	}
	st.TotalFloatingPnL = round2(floating)
	st.MaxRiskPerTrade = round2(maxRisk)
	st.TotalDailyRisk = round2(totalRisk)
	return st
}
