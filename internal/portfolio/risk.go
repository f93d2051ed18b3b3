package portfolio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"forex-autopilot/internal/markethours"
)

// Gate rules, used as metric labels.
const (
	RuleDailyLoss = "daily_loss"
	RuleMaxOpen   = "max_open"
	RuleCooldown  = "cooldown"
	RuleWinRate   = "win_rate"
)

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	// MaxDailyLossPct is a percent of the trading-day start balance.
	MaxDailyLossPct float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	// MaxOpenTrades caps concurrent active trades.
	MaxOpenTrades int `json:"max_open_trades" yaml:"max_open_trades"`
	// LossCooldown pauses trading after a losing close.
	LossCooldown time.Duration `json:"loss_cooldown" yaml:"loss_cooldown"`
	// MinWinRatePct applies once MinTradesForWinRate trades have closed.
	MinWinRatePct       float64 `json:"min_win_rate_pct" yaml:"min_win_rate_pct"`
	MinTradesForWinRate int     `json:"min_trades_for_win_rate" yaml:"min_trades_for_win_rate"`
}

// DefaultRiskLimits returns the standard limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDailyLossPct:     3.0,
		MaxOpenTrades:       3,
		LossCooldown:        15 * time.Minute,
		MinWinRatePct:       40.0,
		MinTradesForWinRate: 10,
	}
}

// Decision is the gate's answer. Reason is empty when Allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Rule    string `json:"rule,omitempty"`
}

// Evaluate applies the limits in order and returns the first failure.
// dayStart is the balance at the start of the current trading day; a zero
// lastLoss means no loss has been recorded.
func Evaluate(limits RiskLimits, s Summary, dayStart float64, activeCount int, lastLoss, now time.Time) Decision {
	if dayStart > 0 {
		dailyPct := (s.Balance - dayStart) / dayStart * 100
		if dailyPct < -limits.MaxDailyLossPct {
			return Decision{
				Rule:   RuleDailyLoss,
				Reason: fmt.Sprintf("Daily loss limit hit (%.2f%%). Stopping trading for today.", dailyPct),
			}
		}
	}

	if activeCount >= limits.MaxOpenTrades {
		return Decision{
			Rule:   RuleMaxOpen,
			Reason: fmt.Sprintf("Maximum concurrent trades reached (%d/%d)", activeCount, limits.MaxOpenTrades),
		}
	}

	if !lastLoss.IsZero() {
		since := now.Sub(lastLoss)
		if since < limits.LossCooldown {
			remaining := int((limits.LossCooldown - since) / time.Minute)
			return Decision{
				Rule:   RuleCooldown,
				Reason: fmt.Sprintf("Cooldown active - %d min remaining after loss", remaining),
			}
		}
	}

	if s.ClosedTrades >= limits.MinTradesForWinRate && s.WinRate < limits.MinWinRatePct {
		return Decision{
			Rule:   RuleWinRate,
			Reason: fmt.Sprintf("Win rate too low (%.1f%%). Review strategy before continuing.", s.WinRate),
		}
	}

	return Decision{Allowed: true}
}

// RiskGate tracks the trading-day start balance and the last loss time and
// evaluates the limits against them.
type RiskGate struct {
	mu       sync.Mutex
	limits   RiskLimits
	dayKey   string
	dayStart float64
	lastLoss time.Time
	reason   string
}

// NewRiskGate creates a gate with the given limits.
func NewRiskGate(limits RiskLimits) *RiskGate {
	return &RiskGate{limits: limits}
}

// Limits returns the configured limits.
func (g *RiskGate) Limits() RiskLimits { return g.limits }

// RecordLoss starts the cooldown at t.
func (g *RiskGate) RecordLoss(t time.Time) {
	g.mu.Lock()
	g.lastLoss = t
	g.mu.Unlock()
	slog.Warn("loss recorded, cooldown started", "cooldown", g.limits.LossCooldown)
}

// LastLoss returns the time of the last recorded loss.
func (g *RiskGate) LastLoss() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastLoss
}

// LastReason returns the reason of the most recent denial, or "".
func (g *RiskGate) LastReason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

// DayStartBalance returns the balance recorded at the start of the
// current trading day.
func (g *RiskGate) DayStartBalance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dayStart
}

// Reset starts a fresh trading day at balance and clears the loss cooldown.
func (g *RiskGate) Reset(balance float64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dayKey = markethours.TradingDayKey(now)
	g.dayStart = balance
	g.lastLoss = time.Time{}
	g.reason = ""
}

// Check evaluates s at now. The first check of each FX trading day records
// the day's starting balance.
func (g *RiskGate) Check(s Summary, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if key := markethours.TradingDayKey(now); key != g.dayKey {
		g.dayKey = key
		g.dayStart = s.Balance
	}

	d := Evaluate(g.limits, s, g.dayStart, s.ActiveTrades, g.lastLoss, now)
	g.reason = d.Reason
	return d
}
