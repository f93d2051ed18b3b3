// Package execution runs the autonomous trading loop and the position
// monitor against the simulated ledger.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"forex-autopilot/internal/markethours"
	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/portfolio"
	"forex-autopilot/internal/scanner"
	"forex-autopilot/internal/tradecalc"
)

// Cycle outcomes, also used as metric labels.
const (
	OutcomeDenied         = "denied"
	OutcomeNoOpportunity  = "no_opportunity"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeTraded         = "traded"
	OutcomeCancelled      = "cancelled"
	OutcomeError          = "error"
)

// Scanner finds ranked opportunities.
type Scanner interface {
	ScanAll(ctx context.Context) ([]scanner.Opportunity, error)
}

// Ledger is the part of the trade ledger the controller drives.
type Ledger interface {
	Summary() portfolio.Summary
	Open(req portfolio.OpenRequest) (portfolio.Trade, error)
}

// Gate decides whether a new trade may be opened.
type Gate interface {
	Check(s portfolio.Summary, now time.Time) portfolio.Decision
}

// Config paces and thresholds the loop.
type Config struct {
	TradeScore   float64       // minimum best score to open a trade
	RiskFraction float64       // balance fraction risked per trade
	ScanEvery    time.Duration // pause after a cycle
	DeniedRetry  time.Duration // pause after a gate denial
}

// DefaultConfig trades scores of 45 and above at 1% risk every 5 minutes.
func DefaultConfig() Config {
	return Config{
		TradeScore:   45,
		RiskFraction: 0.01,
		ScanEvery:    5 * time.Minute,
		DeniedRetry:  time.Minute,
	}
}

// CycleResult describes one pass of the loop.
type CycleResult struct {
	Outcome     string               `json:"outcome"`
	Reason      string               `json:"reason,omitempty"`
	Opportunity *scanner.Opportunity `json:"opportunity,omitempty"`
	Trade       *portfolio.Trade     `json:"trade,omitempty"`
}

// Status is the controller state reported to operators.
type Status struct {
	Running        bool       `json:"is_running"`
	LastTradeTime  *time.Time `json:"last_trade_time"`
	TradeCount     int        `json:"trade_count"`
	ScanInterval   int        `json:"scan_interval"` // seconds
	LastGateReason string     `json:"last_gate_reason"`
	LastCycle      *time.Time `json:"last_cycle_time"`
	Market         string     `json:"market"`
}

// StartResult is the answer to Start.
type StartResult struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ScanInterval int    `json:"scan_interval,omitempty"`
}

// StopResult is the answer to Stop.
type StopResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TotalTrades int    `json:"total_trades"`
}

// Controller is the auto-trade loop. At most one loop runs at a time.
type Controller struct {
	cfg    Config
	scan   Scanner
	ledger Ledger
	gate   Gate
	met    *metrics.Metrics
	now    func() time.Time

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	tradeCount int
	lastTrade  *time.Time
	lastReason string
	lastCycle  *time.Time
	onCycle    func(CycleResult)
}

// NewController creates a stopped controller.
func NewController(cfg Config, scan Scanner, ledger Ledger, gate Gate, m *metrics.Metrics) *Controller {
	def := DefaultConfig()
	if cfg.TradeScore <= 0 {
		cfg.TradeScore = def.TradeScore
	}
	if cfg.RiskFraction <= 0 {
		cfg.RiskFraction = def.RiskFraction
	}
	if cfg.ScanEvery <= 0 {
		cfg.ScanEvery = def.ScanEvery
	}
	if cfg.DeniedRetry <= 0 {
		cfg.DeniedRetry = def.DeniedRetry
	}
	return &Controller{cfg: cfg, scan: scan, ledger: ledger, gate: gate, met: m, now: time.Now}
}

// Start launches the loop. The loop outlives the caller's request; it is
// bound to parent only for process shutdown.
func (c *Controller) Start(parent context.Context) StartResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return StartResult{Status: "already_running", Message: "Auto-trading is already running"}
	}

	ctx, cancel := context.WithCancel(parent)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)

	slog.Info("auto-trading started",
		"trade_score", c.cfg.TradeScore, "risk_fraction", c.cfg.RiskFraction, "scan_every", c.cfg.ScanEvery)
	return StartResult{
		Status:       "started",
		Message:      "Auto-trading started successfully",
		ScanInterval: int(c.cfg.ScanEvery / time.Second),
	}
}

// Stop cancels the loop and waits for it to exit. A cycle in the middle of
// opening a trade finishes that mutation first.
func (c *Controller) Stop() StopResult {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return StopResult{Status: "not_running", Message: "Auto-trading is not running"}
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	total := c.tradeCount
	c.mu.Unlock()
	slog.Info("auto-trading stopped", "total_trades", total)
	return StopResult{Status: "stopped", Message: "Auto-trading stopped successfully", TotalTrades: total}
}

// OnCycle registers fn to run after every cycle, on the loop goroutine.
// Must be called before Start.
func (c *Controller) OnCycle(fn func(CycleResult)) {
	c.mu.Lock()
	c.onCycle = fn
	c.mu.Unlock()
}

// Running reports whether the loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running:        c.running,
		LastTradeTime:  c.lastTrade,
		TradeCount:     c.tradeCount,
		ScanInterval:   int(c.cfg.ScanEvery / time.Second),
		LastGateReason: c.lastReason,
		LastCycle:      c.lastCycle,
		Market:         markethours.StatusString(c.now()),
	}
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// Also reached on parent cancellation, with no Stop call.
		c.mu.Lock()
		if c.done == done {
			c.running = false
			c.cancel = nil
		}
		c.mu.Unlock()
		close(done)
	}()
	for {
		res := c.safeCycle(ctx)

		wait := c.cfg.ScanEvery
		if res.Outcome == OutcomeDenied {
			wait = c.cfg.DeniedRetry
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Controller) safeCycle(ctx context.Context) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			c.met.Panic()
			slog.Error("auto-trade cycle panicked", "panic", fmt.Sprint(r))
			res = CycleResult{Outcome: OutcomeError, Reason: fmt.Sprint(r)}
		}
	}()
	return c.RunCycle(ctx)
}

// RunCycle runs one gate, scan, size and open pass.
func (c *Controller) RunCycle(ctx context.Context) CycleResult {
	res := c.runCycle(ctx)
	now := c.now()

	c.mu.Lock()
	c.lastCycle = &now
	if res.Outcome == OutcomeDenied {
		c.lastReason = res.Reason
	} else if res.Outcome != OutcomeCancelled {
		c.lastReason = ""
	}
	if res.Trade != nil {
		c.tradeCount++
		c.lastTrade = &now
	}
	hook := c.onCycle
	c.mu.Unlock()

	c.met.Cycle(res.Outcome)
	if hook != nil {
		hook(res)
	}
	return res
}

func (c *Controller) runCycle(ctx context.Context) CycleResult {
	d := c.gate.Check(c.ledger.Summary(), c.now())
	if !d.Allowed {
		c.met.GateDenied(d.Rule)
		slog.Warn("auto-trade blocked by risk gate", "rule", d.Rule, "reason", d.Reason)
		return CycleResult{Outcome: OutcomeDenied, Reason: d.Reason}
	}

	opps, err := c.scan.ScanAll(ctx)
	if ctx.Err() != nil {
		return CycleResult{Outcome: OutcomeCancelled}
	}
	if err != nil {
		slog.Error("auto-trade scan failed", "error", err)
		return CycleResult{Outcome: OutcomeError, Reason: err.Error()}
	}

	best, ok := scanner.Best(opps)
	if !ok {
		slog.Info("auto-trade: no opportunities found")
		return CycleResult{Outcome: OutcomeNoOpportunity}
	}
	if best.Score < c.cfg.TradeScore {
		slog.Info("auto-trade: best opportunity below threshold",
			"symbol", best.Symbol, "score", best.Score, "threshold", c.cfg.TradeScore)
		return CycleResult{Outcome: OutcomeBelowThreshold, Opportunity: &best}
	}

	lv := best.Levels
	lots := tradecalc.PositionSize(c.ledger.Summary().Balance, c.cfg.RiskFraction, lv.Entry, lv.Stop)
	trade, err := c.ledger.Open(portfolio.OpenRequest{
		Symbol:    best.Symbol,
		Direction: lv.Direction,
		Entry:     lv.Entry,
		Stop:      lv.Stop,
		Target:    lv.Target,
		Lots:      lots,
		Score:     best.Score,
	})
	if err != nil {
		slog.Error("auto-trade open failed", "symbol", best.Symbol, "error", err)
		return CycleResult{Outcome: OutcomeError, Reason: err.Error(), Opportunity: &best}
	}

	slog.Info("auto-trade executed",
		"trade_id", trade.ID, "symbol", trade.Symbol, "direction", trade.Direction,
		"lots", trade.LotSize, "score", trade.Score)
	return CycleResult{Outcome: OutcomeTraded, Opportunity: &best, Trade: &trade}
}
