package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-autopilot/internal/model"
	"forex-autopilot/internal/portfolio"
)

func TestTelegramNotifier(t *testing.T) {
	var mu sync.Mutex
	var sent map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"fx","username":"fx_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			mu.Lock()
			sent = map[string]string{
				"chat_id":    r.FormValue("chat_id"),
				"text":       r.FormValue("text"),
				"parse_mode": r.FormValue("parse_mode"),
			}
			mu.Unlock()
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	n, err := NewTelegramNotifierWithEndpoint("TOKEN", srv.URL+"/bot%s/%s", 42, srv.Client())
	require.NoError(t, err)

	err = n.Send(context.Background(), Alert{Level: AlertWarning, Title: "EURUSD stop", Message: "P&L -12.50"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "42", sent["chat_id"])
	assert.Equal(t, "MarkdownV2", sent["parse_mode"])
	assert.Contains(t, sent["text"], "P&L \\-12\\.50")
}

func TestFormatTelegram(t *testing.T) {
	got := FormatTelegram(Alert{Level: AlertCritical, Title: "Gate", Message: "loss (3.5%)"})
	assert.Equal(t, "🚨 *Gate*\n\nloss \\(3\\.5%\\)", got)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"}))
	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "t", got["title"])
	assert.NotEmpty(t, got["ts"])
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "t"})
	assert.ErrorContains(t, err, "unexpected status 400")
}

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("down")}
	err := Multi{a, b}.Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestDispatcher(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 1)

	assert.True(t, d.Notify(Alert{Title: "first"}))
	assert.False(t, d.Notify(Alert{Title: "dropped"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	assert.True(t, d.Notify(Alert{Title: "second"}))
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
}

func TestTradeAlerts(t *testing.T) {
	exit := 1.095
	tr := portfolio.Trade{
		Symbol:      "EURUSD",
		Direction:   model.ActionBuy,
		EntryPrice:  1.1,
		StopLoss:    1.095,
		TargetPrice: 1.11,
		LotSize:     0.2,
		Score:       71.3,
	}
	open := TradeOpened(tr)
	assert.Equal(t, AlertInfo, open.Level)
	assert.Equal(t, "BUY EURUSD opened", open.Title)
	assert.Equal(t, "Entry 1.10000 | SL 1.09500 | TP 1.11000 | 0.20 lots | score 71.3", open.Message)

	tr.Status, tr.ExitPrice, tr.PnL = portfolio.StatusLoss, &exit, -100
	closed := TradeClosed(tr)
	assert.Equal(t, AlertWarning, closed.Level)
	assert.Equal(t, "EURUSD BUY CLOSED_LOSS", closed.Title)
	assert.Equal(t, "Exit 1.09500 | P&L $-100.00", closed.Message)

	tr.Status = portfolio.StatusManual
	assert.Equal(t, AlertInfo, TradeClosed(tr).Level)
}
