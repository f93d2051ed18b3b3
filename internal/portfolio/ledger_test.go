package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-autopilot/internal/model"
)

type fakePrices map[string]float64

func (f fakePrices) Price(_ context.Context, symbol string) (float64, error) {
	if p, ok := f[symbol]; ok {
		return p, nil
	}
	return 0, model.ErrPriceUnavailable
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newLedger(t *testing.T, prices fakePrices, store SnapshotStore) *Ledger {
	t.Helper()
	l, err := NewLedger(Options{
		InitialBalance: 10000,
		Store:          store,
		Prices:         prices,
		Clock:          fixedClock(),
	})
	require.NoError(t, err)
	return l
}

func TestOpen_Validation(t *testing.T) {
	l := newLedger(t, nil, nil)

	_, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionNeutral, Entry: 1.1, Lots: 1})
	assert.Error(t, err)
	_, err = l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Lots: 0})
	assert.Error(t, err)
	assert.Equal(t, 0, l.ActiveCount())
}

func TestOpen_IDFormatAndUniqueness(t *testing.T) {
	l := newLedger(t, nil, nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tr, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 0.1})
		require.NoError(t, err)
		assert.Regexp(t, `^EURUSD_\d+_[0-9a-f]{8}$`, tr.ID)
		assert.False(t, seen[tr.ID], "duplicate id %s", tr.ID)
		seen[tr.ID] = true
		assert.Equal(t, StatusOpen, tr.Status)
		assert.Nil(t, tr.ExitTime)
		assert.Nil(t, tr.ExitPrice)
	}
	assert.Equal(t, 50, l.ActiveCount())
}

func TestEvaluateActive_BuyTargetHit(t *testing.T) {
	l := newLedger(t, nil, nil)
	tr, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1000, Stop: 1.0980, Target: 1.1030, Lots: 1})
	require.NoError(t, err)

	closed := l.EvaluateActive(context.Background(), map[string]float64{"EURUSD": 1.1020})
	assert.Empty(t, closed)

	closed = l.EvaluateActive(context.Background(), map[string]float64{"EURUSD": 1.1031})
	require.Len(t, closed, 1)
	assert.Equal(t, tr.ID, closed[0].ID)
	assert.Equal(t, StatusWin, closed[0].Status)
	assert.Equal(t, 310.0, closed[0].PnL)
	require.NotNil(t, closed[0].ExitPrice)
	assert.Equal(t, 1.1031, *closed[0].ExitPrice)
	assert.Equal(t, 10310.0, l.Balance())
	assert.Equal(t, 0, l.ActiveCount())
}

func TestEvaluateActive_SellStopHitOnUSDBase(t *testing.T) {
	l := newLedger(t, nil, nil)
	var losses []Trade
	l.OnLoss(func(t Trade) { losses = append(losses, t) })

	_, err := l.Open(OpenRequest{Symbol: "USDJPY", Direction: model.ActionSell, Entry: 150.00, Stop: 150.50, Target: 149.00, Lots: 0.5})
	require.NoError(t, err)

	closed := l.EvaluateActive(context.Background(), map[string]float64{"USDJPY": 150.60})
	require.Len(t, closed, 1)
	// (150.00 - 150.60) × 50,000 / 150.60
	assert.Equal(t, -199.2, closed[0].PnL)
	assert.Equal(t, StatusLoss, closed[0].Status)
	require.Len(t, losses, 1)
	assert.Equal(t, closed[0].ID, losses[0].ID)
}

func TestEvaluateActive_SkipsMissingAndCancelled(t *testing.T) {
	l := newLedger(t, nil, nil)
	_, err := l.Open(OpenRequest{Symbol: "GBPUSD", Direction: model.ActionBuy, Entry: 1.25, Stop: 1.24, Target: 1.27, Lots: 0.1})
	require.NoError(t, err)

	assert.Empty(t, l.EvaluateActive(context.Background(), map[string]float64{"EURUSD": 2}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, l.EvaluateActive(ctx, map[string]float64{"GBPUSD": 1.0}))
	assert.Equal(t, 1, l.ActiveCount())
}

func TestClose_UnknownAndTwice(t *testing.T) {
	l := newLedger(t, nil, nil)
	_, err := l.Close(context.Background(), "nope", 1.0, StatusManual)
	assert.True(t, errors.Is(err, model.ErrTradeNotFound))

	tr, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 0.1})
	require.NoError(t, err)

	closed, err := l.Close(context.Background(), tr.ID, 1.1010, StatusManual)
	require.NoError(t, err)
	assert.Equal(t, 10.0, closed.PnL)
	balance := l.Balance()

	_, err = l.Close(context.Background(), tr.ID, 1.2, StatusManual)
	assert.True(t, errors.Is(err, model.ErrTradeNotFound))
	assert.Equal(t, balance, l.Balance())
	stored, ok := l.Trade(tr.ID)
	require.True(t, ok)
	assert.Equal(t, StatusManual, stored.Status)
}

func TestManualLossDoesNotTriggerLossObserver(t *testing.T) {
	l := newLedger(t, nil, nil)
	fired := false
	l.OnLoss(func(Trade) { fired = true })

	tr, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 1})
	require.NoError(t, err)
	closed, err := l.Close(context.Background(), tr.ID, 1.095, StatusManual)
	require.NoError(t, err)
	assert.Less(t, closed.PnL, 0.0)
	assert.False(t, fired)
}

func TestBalanceTracksClosedPnL(t *testing.T) {
	l := newLedger(t, fakePrices{"GBPUSD": 1.2731}, nil)
	ctx := context.Background()

	type step struct {
		symbol string
		dir    model.Action
		entry  float64
		exit   float64
		lots   float64
	}
	steps := []step{
		{"EURUSD", model.ActionBuy, 1.08512, 1.08377, 0.37},
		{"USDJPY", model.ActionSell, 151.234, 150.871, 0.83},
		{"EURGBP", model.ActionBuy, 0.85121, 0.85377, 1.21},
		{"AUDUSD", model.ActionSell, 0.65555, 0.65012, 2.02},
		{"USDCHF", model.ActionBuy, 0.90123, 0.89711, 0.11},
		{"GBPJPY", model.ActionSell, 190.55, 191.02, 0.07},
	}
	for _, s := range steps {
		tr, err := l.Open(OpenRequest{Symbol: s.symbol, Direction: s.dir, Entry: s.entry, Stop: s.entry / 2, Target: s.entry * 2, Lots: s.lots})
		require.NoError(t, err)
		_, err = l.Close(ctx, tr.ID, s.exit, StatusManual)
		require.NoError(t, err)
	}

	sum := decimal.NewFromFloat(10000)
	for _, tr := range l.History(0) {
		sum = sum.Add(decimal.NewFromFloat(tr.PnL))
	}
	want, _ := sum.Float64()
	assert.Equal(t, want, l.Balance())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger", "paper_trades.json")
	store := NewFileStore(path)
	ctx := context.Background()

	l := newLedger(t, nil, store)
	a, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 0.25, Score: 71.236})
	require.NoError(t, err)
	b, err := l.Open(OpenRequest{Symbol: "USDJPY", Direction: model.ActionSell, Entry: 150, Stop: 151, Target: 148, Lots: 0.1, Score: 66})
	require.NoError(t, err)
	_, err = l.Close(ctx, a.ID, 1.104, StatusManual)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, []any{b.ID}, doc["active_trade_ids"])
	trades := doc["trades"].([]any)
	require.Len(t, trades, 2)
	open := trades[1].(map[string]any)
	assert.Nil(t, open["exit_time"])
	assert.Nil(t, open["exit_price"])
	assert.Equal(t, "OPEN", open["status"])
	assert.Equal(t, 71.24, trades[0].(map[string]any)["score"])

	restored := newLedger(t, nil, store)
	assert.Equal(t, l.Balance(), restored.Balance())
	assert.Equal(t, l.Snapshot(), restored.Snapshot())
	require.Len(t, restored.ActiveTrades(), 1)
	assert.Equal(t, b.ID, restored.ActiveTrades()[0].ID)

	// Restored active trades are still closable.
	_, err = restored.Close(ctx, b.ID, 149.5, StatusManual)
	require.NoError(t, err)
}

func TestSnapshot_MissingFileStartsFresh(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	l := newLedger(t, nil, store)
	assert.Equal(t, 10000.0, l.Balance())
	assert.Empty(t, l.ActiveTrades())
}

func TestSnapshot_CorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewLedger(Options{Store: NewFileStore(path)})
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	l := newLedger(t, nil, nil)
	_, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 0.1})
	require.NoError(t, err)

	l.Reset(0)
	assert.Equal(t, DefaultInitialBalance, l.Balance())
	assert.Empty(t, l.ActiveTrades())
	assert.Empty(t, l.History(0))

	l.Reset(2500)
	assert.Equal(t, 2500.0, l.Summary().InitialBalance)
}

func TestHistoryLimit(t *testing.T) {
	l := newLedger(t, nil, nil)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		tr, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 0.1})
		require.NoError(t, err)
		_, err = l.Close(ctx, tr.ID, 1.1, StatusManual)
		require.NoError(t, err)
		ids = append(ids, tr.ID)
	}
	h := l.History(2)
	require.Len(t, h, 2)
	assert.Equal(t, ids[3], h[0].ID)
	assert.Equal(t, ids[4], h[1].ID)
}

func TestConcurrentOpenClose(t *testing.T) {
	l := newLedger(t, nil, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := l.Open(OpenRequest{Symbol: "EURUSD", Direction: model.ActionBuy, Entry: 1.1, Stop: 1.09, Target: 1.12, Lots: 0.1})
			if err != nil {
				return
			}
			l.Close(ctx, tr.ID, 1.101, StatusManual)
			l.Summary()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, l.ActiveCount())
	assert.Len(t, l.History(0), 20)
	assert.Equal(t, 10200.0, l.Balance())
}

func TestSnapshot_LoadsZonelessTimestamps(t *testing.T) {
	doc := `{
  "initial_balance": 10000,
  "balance": 10040,
  "trades": [
    {"trade_id": "PT-20250101100000-EURUSD", "symbol": "EURUSD", "direction": "BUY",
     "entry_price": 1.1, "stop_loss": 1.09, "target_price": 1.12, "lot_size": 0.1, "score": 70,
     "entry_time": "2025-01-01T10:00:00.123456", "exit_time": "2025-01-01T12:30:00",
     "exit_price": 1.104, "pnl": 40, "status": "CLOSED_MANUAL"},
    {"trade_id": "PT-20250102090000-GBPUSD", "symbol": "GBPUSD", "direction": "SELL",
     "entry_price": 1.27, "stop_loss": 1.28, "target_price": 1.25, "lot_size": 0.1, "score": 66,
     "entry_time": "2025-01-02 09:00:00", "exit_time": null,
     "exit_price": null, "pnl": 0, "status": "OPEN"}
  ],
  "active_trade_ids": ["PT-20250102090000-GBPUSD"]
}`
	path := filepath.Join(t.TempDir(), "paper_trades.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	store := NewFileStore(path)

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Trades, 2)

	closed, open := snap.Trades[0], snap.Trades[1]
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 123456000, time.UTC), closed.EntryTime)
	require.NotNil(t, closed.ExitTime)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC), *closed.ExitTime)
	assert.Equal(t, model.ActionBuy, closed.Direction)
	assert.Equal(t, time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), open.EntryTime)
	assert.Nil(t, open.ExitTime)
	assert.Nil(t, open.ExitPrice)

	l := newLedger(t, nil, store)
	assert.Equal(t, 10040.0, l.Balance())
	require.Len(t, l.ActiveTrades(), 1)
	assert.Equal(t, "PT-20250102090000-GBPUSD", l.ActiveTrades()[0].ID)
}

func TestTradeUnmarshal_Timestamps(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339", `"2025-01-01T10:00:00Z"`, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), false},
		{"rfc3339 offset", `"2025-01-01T12:00:00+02:00"`, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), false},
		{"zoneless micros", `"2025-01-01T10:00:00.123456"`, time.Date(2025, 1, 1, 10, 0, 0, 123456000, time.UTC), false},
		{"zoneless seconds", `"2025-01-01T10:00:00"`, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), false},
		{"space separated", `"2025-01-01 10:00:00.5"`, time.Date(2025, 1, 1, 10, 0, 0, 500000000, time.UTC), false},
		{"garbage", `"yesterday"`, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Trade
			err := json.Unmarshal([]byte(`{"trade_id":"x","entry_time":`+tt.value+`}`), &tr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(tr.EntryTime), "got %s", tr.EntryTime)
			assert.Equal(t, "x", tr.ID)
		})
	}
}
