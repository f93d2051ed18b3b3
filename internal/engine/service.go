// Package engine is the service boundary of the decision engine. It wires
// the scanner, ledger, risk gate and controller together and fans trade
// events out to the journal, Redis, alerts and WebSocket subscribers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"forex-autopilot/internal/events"
	"forex-autopilot/internal/execution"
	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/model"
	"forex-autopilot/internal/notification"
	"forex-autopilot/internal/portfolio"
	"forex-autopilot/internal/scanner"
	"forex-autopilot/internal/tradecalc"
)

const (
	// DefaultHistoryLimit is the closed-trade history length of Trades.
	DefaultHistoryLimit = 20

	chartCandles = 200
	sideTimeout  = 5 * time.Second
)

// Publisher publishes events to other processes (Redis).
type Publisher interface {
	PublishEvent(ctx context.Context, kind string, v any) error
}

// Journal records closed trades (SQLite).
type Journal interface {
	Record(ctx context.Context, t portfolio.Trade) error
}

// Alerter queues operator alerts.
type Alerter interface {
	Notify(a notification.Alert) bool
}

// Options are the service collaborators. Events, Publisher, Journal,
// Alerts and Health are optional.
type Options struct {
	Ledger     *portfolio.Ledger
	Gate       *portfolio.RiskGate
	Scanner    *scanner.Scanner
	Controller *execution.Controller
	Prices     model.PriceSource

	Events    *events.FanOut
	Publisher Publisher
	Journal   Journal
	Alerts    Alerter
	Health    *metrics.HealthStatus

	ManualRiskFraction float64
	Clock              func() time.Time
}

// Service implements the engine operations.
type Service struct {
	ledger *portfolio.Ledger
	gate   *portfolio.RiskGate
	scan   *scanner.Scanner
	ctrl   *execution.Controller
	prices model.PriceSource

	events    *events.FanOut
	publisher Publisher
	journal   Journal
	alerts    Alerter
	health    *metrics.HealthStatus

	riskFraction float64
	now          func() time.Time

	// background side effects of observers
	wg sync.WaitGroup

	mu         sync.Mutex
	lastDenial string
}

// New builds the service and registers its ledger and controller hooks.
func New(opts Options) *Service {
	if opts.ManualRiskFraction <= 0 {
		opts.ManualRiskFraction = 0.02
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Service{
		ledger:       opts.Ledger,
		gate:         opts.Gate,
		scan:         opts.Scanner,
		ctrl:         opts.Controller,
		prices:       opts.Prices,
		events:       opts.Events,
		publisher:    opts.Publisher,
		journal:      opts.Journal,
		alerts:       opts.Alerts,
		health:       opts.Health,
		riskFraction: opts.ManualRiskFraction,
		now:          opts.Clock,
	}

	s.ledger.OnOpen(s.tradeOpened)
	s.ledger.OnClose(s.tradeClosed)
	s.ledger.OnLoss(func(t portfolio.Trade) {
		s.gate.RecordLoss(s.now())
	})
	if s.ctrl != nil {
		s.ctrl.OnCycle(s.cycleDone)
	}
	return s
}

// Wait blocks until queued side effects (journal, Redis) have finished.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) tradeOpened(t portfolio.Trade) {
	s.broadcast(events.KindTradeOpened, t)
	if s.alerts != nil {
		s.alerts.Notify(notification.TradeOpened(t))
	}
}

func (s *Service) tradeClosed(t portfolio.Trade) {
	s.broadcast(events.KindTradeClosed, t)
	if s.alerts != nil {
		s.alerts.Notify(notification.TradeClosed(t))
	}
	if s.journal == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
		defer cancel()
		if err := s.journal.Record(ctx, t); err != nil {
			slog.Error("journal write failed", "trade_id", t.ID, "error", err)
		}
	}()
}

func (s *Service) cycleDone(res execution.CycleResult) {
	s.mu.Lock()
	prev := s.lastDenial
	if res.Outcome == execution.OutcomeDenied {
		s.lastDenial = res.Reason
	} else {
		s.lastDenial = ""
	}
	s.mu.Unlock()

	if res.Outcome == execution.OutcomeDenied && res.Reason != prev {
		s.broadcast(events.KindGateDenied, map[string]string{"reason": res.Reason})
		if s.alerts != nil {
			s.alerts.Notify(notification.GateDenied(res.Reason))
		}
	}
}

// broadcast sends an event to local subscribers and, asynchronously, to
// the Redis channel.
func (s *Service) broadcast(kind string, data any) {
	if s.events != nil {
		s.events.Publish(events.Event{Kind: kind, Time: s.now().UTC(), Data: data})
	}
	if s.publisher == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
		defer cancel()
		if err := s.publisher.PublishEvent(ctx, kind, data); err != nil {
			slog.Warn("event publish failed", "type", kind, "error", err)
		}
	}()
}

// ScanRequest selects the symbol and data window of a single-symbol scan.
type ScanRequest struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

// ScanResult is the outcome of a single-symbol scan. Filtered results carry
// the rejection and the chart but no opportunity.
type ScanResult struct {
	Status       string                `json:"status"` // found | filtered
	Symbol       string                `json:"symbol"`
	CurrentPrice float64               `json:"current_price"`
	Sentiment    float64               `json:"sentiment"`
	Message      string                `json:"message,omitempty"`
	Opportunity  *scanner.Opportunity  `json:"opportunity,omitempty"`
	Rejection    *scanner.Rejection    `json:"rejection,omitempty"`
	ChartData    []scanner.ChartCandle `json:"chart_data"`
}

// ScanSymbol analyzes one symbol. A symbol without history yields an error
// wrapping model.ErrDataUnavailable.
func (s *Service) ScanSymbol(ctx context.Context, req ScanRequest) (ScanResult, error) {
	cfg := s.scan.Config()
	if req.Period == "" {
		req.Period = cfg.Period
	}
	if req.Interval == "" {
		req.Interval = cfg.Interval
	}

	a, err := s.scan.AnalyzeWith(ctx, req.Symbol, req.Period, req.Interval)
	if err != nil {
		return ScanResult{}, err
	}

	latest := a.Rows[len(a.Rows)-1]
	res := ScanResult{
		Symbol:       req.Symbol,
		CurrentPrice: latest.Close,
		ChartData:    scanner.ChartData(a.Rows, chartCandles),
	}
	if a.Opportunity == nil {
		res.Status = "filtered"
		res.Rejection = a.Rejection
		res.Message = fmt.Sprintf("Opportunity filtered out - does not meet quality thresholds (min %.0f%% confidence, min %.0f score)",
			cfg.MinConfidence*100, cfg.MinScore)
		return res, nil
	}
	res.Status = "found"
	res.Opportunity = a.Opportunity
	res.Sentiment = tradecalc.Round((a.Opportunity.Score-50)/50, 4)
	return res, nil
}

// ScanAll scans the whole universe, best first.
func (s *Service) ScanAll(ctx context.Context) ([]scanner.Opportunity, error) {
	opps, err := s.scan.ScanAll(ctx)
	if s.health != nil {
		s.health.SetLastScanTime(s.now())
	}
	if err != nil {
		return nil, err
	}
	s.broadcast(events.KindScan, map[string]any{"found": len(opps), "top": top(opps, 3)})
	return opps, nil
}

func top(opps []scanner.Opportunity, n int) []string {
	var out []string
	for i := 0; i < len(opps) && i < n; i++ {
		out = append(out, opps[i].Symbol)
	}
	return out
}

// RunResult is the outcome of RunCycle.
type RunResult struct {
	Status           string                `json:"status"` // success | no_opportunities | no_new_opportunities
	Message          string                `json:"message,omitempty"`
	Trade            *portfolio.Trade      `json:"trade,omitempty"`
	TopOpportunities []scanner.Opportunity `json:"top_opportunities,omitempty"`
	AllOpportunities []scanner.Opportunity `json:"all_opportunities,omitempty"`
	TotalScanned     int                   `json:"total_scanned"`
}

// RunCycle scans everything and opens the best opportunity whose symbol
// has no active trade, risking the manual risk fraction.
func (s *Service) RunCycle(ctx context.Context) (RunResult, error) {
	opps, err := s.ScanAll(ctx)
	if err != nil {
		return RunResult{}, err
	}
	if len(opps) == 0 {
		return RunResult{Status: "no_opportunities", Message: "No valid opportunities found"}, nil
	}

	active := s.ledger.ActiveSymbols()
	var best *scanner.Opportunity
	for i := range opps {
		if !active[opps[i].Symbol] {
			best = &opps[i]
			break
		}
	}
	if best == nil {
		return RunResult{
			Status:       "no_new_opportunities",
			Message:      "All good opportunities already traded",
			TotalScanned: len(opps),
		}, nil
	}

	lv := best.Levels
	lots := tradecalc.PositionSize(s.ledger.Balance(), s.riskFraction, lv.Entry, lv.Stop)
	trade, err := s.ledger.Open(portfolio.OpenRequest{
		Symbol:    best.Symbol,
		Direction: lv.Direction,
		Entry:     lv.Entry,
		Stop:      lv.Stop,
		Target:    lv.Target,
		Lots:      lots,
		Score:     best.Score,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("open %s: %w", best.Symbol, err)
	}

	return RunResult{
		Status:           "success",
		Trade:            &trade,
		TopOpportunities: opps[:min(3, len(opps))],
		AllOpportunities: opps,
		TotalScanned:     len(opps),
	}, nil
}

// TradesView is the account overview.
type TradesView struct {
	ActiveTrades  []portfolio.ActiveTrade `json:"active_trades"`
	RecentHistory []portfolio.Trade       `json:"recent_history"`
	Stats         portfolio.Stats         `json:"stats"`
}

// Trades returns open trades marked to market, the last historyLimit
// closed trades and the account statistics.
func (s *Service) Trades(ctx context.Context, historyLimit int) TradesView {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return TradesView{
		ActiveTrades:  s.ledger.ActiveView(ctx),
		RecentHistory: s.ledger.History(historyLimit),
		Stats:         s.ledger.Stats(ctx),
	}
}

// CloseTrade closes an active trade at the live price.
func (s *Service) CloseTrade(ctx context.Context, id string) (portfolio.Trade, error) {
	t, ok := s.ledger.Trade(id)
	if !ok || t.Status != portfolio.StatusOpen {
		return portfolio.Trade{}, fmt.Errorf("close %s: %w", id, model.ErrTradeNotFound)
	}
	price, err := s.livePrice(ctx, t.Symbol)
	if err != nil {
		return portfolio.Trade{}, err
	}
	return s.ledger.Close(ctx, id, price, portfolio.StatusManual)
}

// Reset wipes the account and starts over at balance (default 10,000). The
// risk gate restarts its trading day from the new balance.
func (s *Service) Reset(balance float64) portfolio.Summary {
	if balance <= 0 {
		balance = portfolio.DefaultInitialBalance
	}
	s.ledger.Reset(balance)
	s.gate.Reset(balance, s.now())
	s.mu.Lock()
	s.lastDenial = ""
	s.mu.Unlock()
	return s.ledger.Summary()
}

// StartAuto starts the auto-trade controller.
func (s *Service) StartAuto(ctx context.Context) execution.StartResult {
	res := s.ctrl.Start(ctx)
	s.autoChanged(res.Status)
	return res
}

// StopAuto stops the auto-trade controller.
func (s *Service) StopAuto() execution.StopResult {
	res := s.ctrl.Stop()
	s.autoChanged(res.Status)
	return res
}

func (s *Service) autoChanged(status string) {
	running := s.ctrl.Running()
	if s.health != nil {
		s.health.SetControllerRunning(running)
	}
	s.broadcast(events.KindAutoTrade, map[string]any{"status": status, "running": running})
}

// AutoStatus reports the controller state.
func (s *Service) AutoStatus() execution.Status {
	return s.ctrl.Status()
}

// LivePrice is a symbol's latest price.
type LivePrice struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// LivePrice returns the cached live price of symbol.
func (s *Service) LivePrice(ctx context.Context, symbol string) (LivePrice, error) {
	p, err := s.livePrice(ctx, symbol)
	if err != nil {
		return LivePrice{}, err
	}
	return LivePrice{Symbol: symbol, Price: p}, nil
}

func (s *Service) livePrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	p, err := s.prices.Price(ctx, symbol)
	if s.health != nil {
		s.health.SetProviderOK(err == nil)
	}
	if err != nil {
		if errors.Is(err, model.ErrPriceUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %w", model.ErrPriceUnavailable, symbol, err)
	}
	return p, nil
}
