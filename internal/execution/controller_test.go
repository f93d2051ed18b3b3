package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-autopilot/internal/model"
	"forex-autopilot/internal/portfolio"
	"forex-autopilot/internal/scanner"
	"forex-autopilot/internal/tradecalc"
)

type fakeScanner struct {
	mu    sync.Mutex
	opps  []scanner.Opportunity
	err   error
	calls atomic.Int32
	block bool
	panic bool
}

func (f *fakeScanner) ScanAll(ctx context.Context) ([]scanner.Opportunity, error) {
	f.calls.Add(1)
	if f.panic {
		panic("scanner exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scanner.Opportunity(nil), f.opps...), f.err
}

func eurusd(score float64) scanner.Opportunity {
	return scanner.Opportunity{
		Symbol: "EURUSD",
		Score:  score,
		Levels: tradecalc.Levels{
			Entry:     1.1,
			Stop:      1.095,
			Target:    1.11,
			Direction: model.ActionBuy,
		},
	}
}

func newLedger(t *testing.T) *portfolio.Ledger {
	t.Helper()
	l, err := portfolio.NewLedger(portfolio.Options{InitialBalance: 10000})
	require.NoError(t, err)
	return l
}

func TestRunCycle_Trades(t *testing.T) {
	l := newLedger(t)
	sc := &fakeScanner{opps: []scanner.Opportunity{eurusd(70), {Symbol: "GBPUSD", Score: 65}}}
	c := NewController(Config{}, sc, l, portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

	res := c.RunCycle(context.Background())
	require.Equal(t, OutcomeTraded, res.Outcome)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "EURUSD", res.Trade.Symbol)
	// 1% of 10,000 over a 50 pip stop
	assert.Equal(t, 0.2, res.Trade.LotSize)
	assert.Equal(t, 70.0, res.Trade.Score)
	assert.Equal(t, 1, l.ActiveCount())

	st := c.Status()
	assert.Equal(t, 1, st.TradeCount)
	assert.NotNil(t, st.LastTradeTime)
	assert.Equal(t, 300, st.ScanInterval)
	assert.False(t, st.Running)
}

func TestRunCycle_BelowThresholdAndEmpty(t *testing.T) {
	l := newLedger(t)
	sc := &fakeScanner{opps: []scanner.Opportunity{eurusd(44.9)}}
	c := NewController(Config{}, sc, l, portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

	res := c.RunCycle(context.Background())
	assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	assert.Zero(t, l.ActiveCount())

	sc.opps = nil
	res = c.RunCycle(context.Background())
	assert.Equal(t, OutcomeNoOpportunity, res.Outcome)
}

func TestRunCycle_DeniedSkipsScan(t *testing.T) {
	l := newLedger(t)
	for _, sym := range []string{"EURUSD", "GBPUSD", "AUDUSD"} {
		_, err := l.Open(portfolio.OpenRequest{Symbol: sym, Direction: model.ActionBuy, Entry: 1, Stop: 0.99, Target: 1.02, Lots: 0.1})
		require.NoError(t, err)
	}
	sc := &fakeScanner{opps: []scanner.Opportunity{eurusd(90)}}
	c := NewController(Config{}, sc, l, portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

	res := c.RunCycle(context.Background())
	assert.Equal(t, OutcomeDenied, res.Outcome)
	assert.Equal(t, "Maximum concurrent trades reached (3/3)", res.Reason)
	assert.Zero(t, sc.calls.Load())
	assert.Equal(t, res.Reason, c.Status().LastGateReason)
}

func TestStartStop(t *testing.T) {
	l := newLedger(t)
	sc := &fakeScanner{}
	c := NewController(Config{ScanEvery: 5 * time.Millisecond, DeniedRetry: 5 * time.Millisecond},
		sc, l, portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

	assert.Equal(t, "not_running", c.Stop().Status)

	res := c.Start(context.Background())
	assert.Equal(t, "started", res.Status)
	assert.Equal(t, "already_running", c.Start(context.Background()).Status)
	assert.True(t, c.Running())

	assert.Eventually(t, func() bool { return sc.calls.Load() >= 3 }, time.Second, time.Millisecond)

	stop := c.Stop()
	assert.Equal(t, "stopped", stop.Status)
	assert.False(t, c.Running())

	after := sc.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, sc.calls.Load())
}

func TestParentCancelEndsLoop(t *testing.T) {
	tests := []struct {
		name    string
		restart bool
	}{
		{"stop after cancel", false},
		{"restart after cancel", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &fakeScanner{}
			c := NewController(Config{ScanEvery: 5 * time.Millisecond, DeniedRetry: 5 * time.Millisecond},
				sc, newLedger(t), portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

			parent, cancel := context.WithCancel(context.Background())
			require.Equal(t, "started", c.Start(parent).Status)
			assert.Eventually(t, func() bool { return sc.calls.Load() >= 1 }, time.Second, time.Millisecond)

			cancel()
			require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
			assert.False(t, c.Status().Running)

			if !tt.restart {
				assert.Equal(t, "not_running", c.Stop().Status)
				return
			}
			require.Equal(t, "started", c.Start(context.Background()).Status)
			before := sc.calls.Load()
			assert.Eventually(t, func() bool { return sc.calls.Load() > before }, time.Second, time.Millisecond)
			assert.Equal(t, "stopped", c.Stop().Status)
			assert.False(t, c.Running())
		})
	}
}

func TestLoopSurvivesPanics(t *testing.T) {
	sc := &fakeScanner{panic: true}
	c := NewController(Config{ScanEvery: time.Millisecond}, sc, newLedger(t),
		portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

	c.Start(context.Background())
	assert.Eventually(t, func() bool { return sc.calls.Load() >= 3 }, time.Second, time.Millisecond)
	c.Stop()
}

func TestStopDuringScanOpensNothing(t *testing.T) {
	l := newLedger(t)
	sc := &fakeScanner{block: true}
	c := NewController(Config{}, sc, l, portfolio.NewRiskGate(portfolio.DefaultRiskLimits()), nil)

	c.Start(context.Background())
	assert.Eventually(t, func() bool { return sc.calls.Load() == 1 }, time.Second, time.Millisecond)

	done := make(chan StopResult)
	go func() { done <- c.Stop() }()
	select {
	case res := <-done:
		assert.Equal(t, "stopped", res.Status)
		assert.Zero(t, res.TotalTrades)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Zero(t, l.ActiveCount())
}

type fakePrices map[string]float64

func (f fakePrices) Price(_ context.Context, symbol string) (float64, error) {
	if p, ok := f[symbol]; ok {
		return p, nil
	}
	return 0, model.ErrPriceUnavailable
}

func TestMonitorTick(t *testing.T) {
	l := newLedger(t)
	win, err := l.Open(portfolio.OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.095, Target: 1.11, Lots: 0.1})
	require.NoError(t, err)
	_, err = l.Open(portfolio.OpenRequest{Symbol: "GBPUSD", Direction: model.ActionSell, Entry: 1.27, Stop: 1.28, Target: 1.25, Lots: 0.1})
	require.NoError(t, err)
	_, err = l.Open(portfolio.OpenRequest{Symbol: "AUDUSD", Direction: model.ActionBuy, Entry: 0.65, Stop: 0.64, Target: 0.67, Lots: 0.1})
	require.NoError(t, err)

	m := NewMonitor(l, fakePrices{"EURUSD": 1.1105, "GBPUSD": 1.265}, time.Second)
	closed := m.Tick(context.Background())

	require.Len(t, closed, 1)
	assert.Equal(t, win.ID, closed[0].ID)
	assert.Equal(t, portfolio.StatusWin, closed[0].Status)
	assert.Equal(t, 2, l.ActiveCount())
}

func TestMonitorRun(t *testing.T) {
	l := newLedger(t)
	_, err := l.Open(portfolio.OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.095, Target: 1.11, Lots: 0.1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewMonitor(l, fakePrices{"EURUSD": 1.09}, 2*time.Millisecond).Run(ctx)

	assert.Eventually(t, func() bool { return l.ActiveCount() == 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, portfolio.StatusLoss, l.History(1)[0].Status)
}
