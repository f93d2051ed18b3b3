package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return NewFromClient(db, Config{PriceTTL: 30 * time.Second}), mock
}

func TestGetPrice_Hit(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectGet("fx:price:EURUSD").SetVal("1.0845")

	price, ok, err := s.GetPrice(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0845, price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPrice_Miss(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectGet("fx:price:USDJPY").RedisNil()

	_, ok, err := s.GetPrice(context.Background(), "USDJPY")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPrice_Garbage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectGet("fx:price:EURUSD").SetVal("n/a")

	_, _, err := s.GetPrice(context.Background(), "EURUSD")
	assert.Error(t, err)
}

func TestSetPrice(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectSet("fx:price:GBPUSD", "1.2731", 30*time.Second).SetVal("OK")

	require.NoError(t, s.SetPrice(context.Background(), "GBPUSD", 1.2731))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMissesDoNotTripBreaker(t *testing.T) {
	s, mock := newMockStore(t)
	for i := 0; i < breakerFailures+2; i++ {
		mock.ExpectGet("fx:price:EURUSD").RedisNil()
	}
	for i := 0; i < breakerFailures+2; i++ {
		_, _, err := s.GetPrice(context.Background(), "EURUSD")
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", s.BreakerState())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	s, mock := newMockStore(t)
	down := errors.New("connection refused")
	for i := 0; i < breakerFailures; i++ {
		mock.ExpectGet("fx:price:EURUSD").SetErr(down)
	}

	for i := 0; i < breakerFailures; i++ {
		_, _, err := s.GetPrice(context.Background(), "EURUSD")
		assert.ErrorIs(t, err, down)
	}
	assert.Equal(t, "open", s.BreakerState())

	// Rejected without reaching Redis.
	_, _, err := s.GetPrice(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishEvent(t *testing.T) {
	s, mock := newMockStore(t)
	evt := map[string]any{"trade_id": "EURUSD_1_abcd1234", "pnl": 12.5}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	mock.ExpectPublish("fx:events:trade_closed", string(payload)).SetVal(1)
	mock.ExpectSet("fx:latest:trade_closed", string(payload), 0).SetVal("OK")

	require.NoError(t, s.PublishEvent(context.Background(), EventTradeClosed, evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishEvent_PublishFails(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectPublish("fx:events:scan", `{"found":2}`).SetErr(errors.New("boom"))

	err := s.PublishEvent(context.Background(), EventScan, map[string]int{"found": 2})
	assert.ErrorContains(t, err, "publish scan")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestEvent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectGet("fx:latest:scan").SetVal(`{"found":2}`)
	mock.ExpectGet("fx:latest:trade_opened").RedisNil()

	got, err := s.LatestEvent(context.Background(), EventScan)
	require.NoError(t, err)
	assert.JSONEq(t, `{"found":2}`, got)

	got, err = s.LatestEvent(context.Background(), EventTradeOpened)
	require.NoError(t, err)
	assert.Empty(t, got)
}
