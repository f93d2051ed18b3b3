package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/model"
)

// DefaultInitialBalance is the starting balance of a fresh account.
const DefaultInitialBalance = 10000.0

// Observer is notified after a trade changes state. Callbacks run outside
// the ledger lock and may call back into the ledger.
type Observer func(Trade)

// Options configures a Ledger.
type Options struct {
	InitialBalance float64
	Store          SnapshotStore     // nil keeps the account in memory only
	Prices         model.PriceSource // cross-rate lookups for P&L conversion
	Metrics        *metrics.Metrics
	Clock          func() time.Time
}

// Ledger is the simulated account. All mutations take the write lock and
// persist a snapshot before releasing it.
type Ledger struct {
	mu             sync.RWMutex
	initialBalance float64
	balance        float64
	trades         []*Trade          // insertion order
	active         map[string]*Trade // id → trade, subset of trades

	store  SnapshotStore
	prices model.PriceSource
	conv   *Converter
	met    *metrics.Metrics
	now    func() time.Time

	obsMu   sync.RWMutex
	onOpen  []Observer
	onClose []Observer
	onLoss  []Observer
}

// NewLedger creates a ledger, restoring the snapshot from opts.Store if one
// exists. A missing snapshot starts a fresh account at opts.InitialBalance.
func NewLedger(opts Options) (*Ledger, error) {
	if opts.InitialBalance <= 0 {
		opts.InitialBalance = DefaultInitialBalance
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	l := &Ledger{
		initialBalance: opts.InitialBalance,
		balance:        opts.InitialBalance,
		active:         make(map[string]*Trade),
		store:          opts.Store,
		prices:         opts.Prices,
		conv:           NewConverter(opts.Prices, opts.Metrics),
		met:            opts.Metrics,
		now:            opts.Clock,
	}

	if l.store != nil {
		snap, err := l.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if snap != nil {
			l.restore(snap)
			slog.Info("ledger restored",
				"trades", len(l.trades), "active", len(l.active), "balance", l.balance)
		} else {
			slog.Info("no ledger snapshot, starting fresh", "balance", l.balance)
		}
	}
	l.met.SetAccount(l.balance, len(l.active))
	return l, nil
}

// OnOpen registers an observer for opened trades.
func (l *Ledger) OnOpen(fn Observer) {
	l.obsMu.Lock()
	l.onOpen = append(l.onOpen, fn)
	l.obsMu.Unlock()
}

// OnClose registers an observer for every closed trade.
func (l *Ledger) OnClose(fn Observer) {
	l.obsMu.Lock()
	l.onClose = append(l.onClose, fn)
	l.obsMu.Unlock()
}

// OnLoss registers an observer for trades closed by a loss reason with
// negative P&L.
func (l *Ledger) OnLoss(fn Observer) {
	l.obsMu.Lock()
	l.onLoss = append(l.onLoss, fn)
	l.obsMu.Unlock()
}

func (l *Ledger) notify(list *[]Observer, t Trade) {
	l.obsMu.RLock()
	obs := append([]Observer(nil), (*list)...)
	l.obsMu.RUnlock()
	for _, fn := range obs {
		fn(t)
	}
}

// newID returns "<symbol>_<unix>_<suffix>". Caller holds the write lock.
func (l *Ledger) newID(symbol string, at time.Time) string {
	for {
		id := fmt.Sprintf("%s_%d_%s", symbol, at.Unix(), uuid.NewString()[:8])
		if !l.exists(id) {
			return id
		}
	}
}

func (l *Ledger) exists(id string) bool {
	for _, t := range l.trades {
		if t.ID == id {
			return true
		}
	}
	return false
}

// Open creates an OPEN trade, adds it to the history and the active set and
// persists a snapshot.
func (l *Ledger) Open(req OpenRequest) (Trade, error) {
	if req.Symbol == "" {
		return Trade{}, fmt.Errorf("open trade: empty symbol")
	}
	if req.Direction != model.ActionBuy && req.Direction != model.ActionSell {
		return Trade{}, fmt.Errorf("open trade %s: invalid direction %q", req.Symbol, req.Direction)
	}
	if req.Lots <= 0 || req.Entry <= 0 {
		return Trade{}, fmt.Errorf("open trade %s: lots and entry must be positive", req.Symbol)
	}

	l.mu.Lock()
	now := l.now().UTC()
	t := &Trade{
		ID:          l.newID(req.Symbol, now),
		Symbol:      req.Symbol,
		Direction:   req.Direction,
		EntryPrice:  req.Entry,
		StopLoss:    req.Stop,
		TargetPrice: req.Target,
		LotSize:     req.Lots,
		Score:       round2(req.Score),
		EntryTime:   now,
		Status:      StatusOpen,
	}
	l.trades = append(l.trades, t)
	l.active[t.ID] = t
	l.persistLocked()
	out := t.clone()
	active := len(l.active)
	l.mu.Unlock()

	slog.Info("trade opened",
		"trade_id", out.ID, "symbol", out.Symbol, "direction", out.Direction,
		"entry", out.EntryPrice, "lots", out.LotSize, "score", out.Score)
	l.met.TradeOpened(active)
	l.notify(&l.onOpen, out)
	return out, nil
}

// Close closes an active trade at exitPrice with the given terminal status.
// Unknown or already closed ids return model.ErrTradeNotFound and change
// nothing.
func (l *Ledger) Close(ctx context.Context, id string, exitPrice float64, status Status) (Trade, error) {
	if status == StatusOpen || status == "" {
		status = StatusManual
	}

	l.mu.RLock()
	t, ok := l.active[id]
	var snapshot Trade
	if ok {
		snapshot = t.clone()
	}
	l.mu.RUnlock()
	if !ok {
		return Trade{}, fmt.Errorf("close %s: %w", id, model.ErrTradeNotFound)
	}

	// Cross rates may need a network lookup: convert outside the lock.
	raw := RawPnL(snapshot.Direction, snapshot.EntryPrice, exitPrice, snapshot.LotSize)
	usd, conv := l.conv.ToUSD(ctx, snapshot.Symbol, raw, exitPrice)
	pnl := round2(usd)

	l.mu.Lock()
	t, ok = l.active[id]
	if !ok {
		l.mu.Unlock()
		return Trade{}, fmt.Errorf("close %s: %w", id, model.ErrTradeNotFound)
	}
	exitAt := l.now().UTC()
	ep := exitPrice
	t.ExitTime = &exitAt
	t.ExitPrice = &ep
	t.PnL = pnl
	t.Status = status
	l.balance = addMoney(l.balance, pnl)
	delete(l.active, id)
	l.persistLocked()
	out := t.clone()
	balance, active := l.balance, len(l.active)
	l.mu.Unlock()

	slog.Info("trade closed",
		"trade_id", out.ID, "symbol", out.Symbol, "status", out.Status,
		"exit", exitPrice, "pnl", out.PnL, "balance", balance,
		"conversion", conv.Method, "degraded", conv.Degraded)
	l.met.TradeClosed(string(out.Status), balance, active)

	l.notify(&l.onClose, out)
	if out.Status.IsLoss() && out.PnL < 0 {
		l.notify(&l.onLoss, out)
	}
	return out, nil
}

// EvaluateActive closes every active trade whose stop or target was touched
// by the price for its symbol. Symbols missing from prices are skipped.
// Cancellation is checked between closes.
func (l *Ledger) EvaluateActive(ctx context.Context, prices map[string]float64) []Trade {
	type hit struct {
		id     string
		price  float64
		status Status
	}

	l.mu.RLock()
	var hits []hit
	for _, t := range l.trades {
		if _, ok := l.active[t.ID]; !ok {
			continue
		}
		price, ok := prices[t.Symbol]
		if !ok {
			continue
		}
		if status, closed := t.hit(price); closed {
			hits = append(hits, hit{id: t.ID, price: price, status: status})
		}
	}
	l.mu.RUnlock()

	var closed []Trade
	for _, h := range hits {
		if ctx.Err() != nil {
			break
		}
		t, err := l.Close(ctx, h.id, h.price, h.status)
		if err != nil {
			continue // closed concurrently
		}
		closed = append(closed, t)
	}
	return closed
}

// Reset clears all trades and restarts the account at balance
// (DefaultInitialBalance when balance ≤ 0).
func (l *Ledger) Reset(balance float64) {
	if balance <= 0 {
		balance = DefaultInitialBalance
	}
	l.mu.Lock()
	l.initialBalance = balance
	l.balance = balance
	l.trades = nil
	l.active = make(map[string]*Trade)
	l.persistLocked()
	l.mu.Unlock()

	slog.Info("account reset", "balance", balance)
	l.met.SetAccount(balance, 0)
}

// Balance returns the realized balance.
func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Trade returns a trade by id.
func (l *Ledger) Trade(id string) (Trade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.trades {
		if t.ID == id {
			return t.clone(), true
		}
	}
	return Trade{}, false
}

// ActiveTrades returns the open trades in opening order.
func (l *Ledger) ActiveTrades() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Trade, 0, len(l.active))
	for _, t := range l.trades {
		if _, ok := l.active[t.ID]; ok {
			out = append(out, t.clone())
		}
	}
	return out
}

// ActiveCount returns the number of open trades.
func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// ActiveSymbols returns the set of symbols with an open trade.
func (l *Ledger) ActiveSymbols() map[string]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]bool, len(l.active))
	for _, t := range l.active {
		out[t.Symbol] = true
	}
	return out
}

// History returns the last limit closed trades, oldest first.
func (l *Ledger) History(limit int) []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var closed []Trade
	for _, t := range l.trades {
		if t.Status.Closed() {
			closed = append(closed, t.clone())
		}
	}
	if limit > 0 && len(closed) > limit {
		closed = closed[len(closed)-limit:]
	}
	return closed
}
