package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/model"
)

// BarsFunc returns bars for a Yahoo ticker between start and end.
type BarsFunc func(ticker string, start, end time.Time, iv datetime.Interval) ([]model.Candle, error)

// QuoteFunc returns the last traded price of a Yahoo ticker.
type QuoteFunc func(ticker string) (float64, error)

// YahooConfig configures the Yahoo client.
type YahooConfig struct {
	RPS   float64 // provider requests per second
	Burst int

	// Overrides for tests. nil uses finance-go.
	Bars  BarsFunc
	Quote QuoteFunc
	Now   func() time.Time
}

// Yahoo is a CandleSource and PriceSource backed by Yahoo Finance, rate
// limited and guarded by a circuit breaker.
type Yahoo struct {
	bars    BarsFunc
	quote   QuoteFunc
	now     func() time.Time
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	met     *metrics.Metrics
}

// NewYahoo creates a Yahoo client.
func NewYahoo(cfg YahooConfig, m *metrics.Metrics) *Yahoo {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	y := &Yahoo{
		bars:    cfg.Bars,
		quote:   cfg.Quote,
		now:     cfg.Now,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		met:     m,
	}
	if y.bars == nil {
		y.bars = chartBars
	}
	if y.quote == nil {
		y.quote = lastPrice
	}
	if y.now == nil {
		y.now = time.Now
	}
	y.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "yahoo",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			m.SetBreakerState(breakerGauge(to))
		},
	})
	return y
}

// breakerGauge maps a breaker state to the gauge value (0 closed, 1 open,
// 2 half-open).
func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Fetch returns bars of symbol covering period at interval, ascending.
func (y *Yahoo) Fetch(ctx context.Context, symbol, period, interval string) ([]model.Candle, error) {
	lookback, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	iv, _, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}

	end := y.now()
	start := end.Add(-lookback)
	ticker := YahooSymbol(symbol)

	candles, err := call(ctx, y, func() ([]model.Candle, error) {
		return y.bars(ticker, start, end, iv)
	})
	if err != nil {
		y.met.ProviderError("chart")
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	out := candles[:0]
	sym := NormalizeSymbol(symbol)
	for _, c := range candles {
		// Yahoo leaves null bars in FX series.
		if c.Close <= 0 {
			continue
		}
		c.Symbol = sym
		out = append(out, c)
	}
	return out, nil
}

// Price returns the last traded price of symbol.
func (y *Yahoo) Price(ctx context.Context, symbol string) (float64, error) {
	ticker := YahooSymbol(symbol)
	p, err := call(ctx, y, func() (float64, error) {
		return y.quote(ticker)
	})
	if err != nil {
		y.met.ProviderError("quote")
		return 0, fmt.Errorf("quote %s: %w: %w", symbol, model.ErrPriceUnavailable, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("quote %s: %w", symbol, model.ErrPriceUnavailable)
	}
	return p, nil
}

// call waits for the limiter and runs fn through the breaker. finance-go has
// no context support, so fn runs in its own goroutine and is abandoned when
// ctx ends.
func call[T any](ctx context.Context, y *Yahoo, fn func() (T, error)) (T, error) {
	var zero T
	if err := y.limiter.Wait(ctx); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := y.cb.Execute(func() (interface{}, error) {
			return fn()
		})
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{v: v.(T)}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

func chartBars(ticker string, start, end time.Time, iv datetime.Interval) ([]model.Candle, error) {
	iter := chart.Get(&chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: iv,
	})

	var out []model.Candle
	for iter.Next() {
		bar := iter.Bar()
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		cl, _ := bar.Close.Float64()
		out = append(out, model.Candle{
			TS:     time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cl,
			Volume: float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func lastPrice(ticker string) (float64, error) {
	q, err := quote.Get(ticker)
	if err != nil {
		return 0, err
	}
	if q == nil {
		return 0, errors.New("empty quote")
	}
	return q.RegularMarketPrice, nil
}
