package portfolio

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"forex-autopilot/internal/metrics"
	"forex-autopilot/internal/model"
)

const unitsPerLot = 100000.0

// Conversion methods.
const (
	MethodQuoteUSD    = "quote_usd"   // XXXUSD: P&L already in USD
	MethodBaseUSD     = "base_usd"    // USDXXX: divide by the pair's price
	MethodDirect      = "direct"      // cross: multiply by QQQUSD
	MethodInverse     = "inverse"     // cross: divide by USDQQQ
	MethodUnconverted = "unconverted" // cross: no rate, used 1:1
)

// Conversion describes how a quote-currency amount was turned into USD.
// Degraded is set when no rate could be found and the amount was used as is.
type Conversion struct {
	Rate     float64 `json:"rate"`
	Method   string  `json:"method"`
	Degraded bool    `json:"degraded"`
}

// Converter turns quote-currency amounts into account currency (USD).
type Converter struct {
	prices  model.PriceSource
	timeout time.Duration
	met     *metrics.Metrics
}

// NewConverter creates a converter that looks cross rates up in prices.
func NewConverter(prices model.PriceSource, m *metrics.Metrics) *Converter {
	return &Converter{prices: prices, timeout: 10 * time.Second, met: m}
}

// RawPnL is the signed quote-currency P&L of moving from entry to price.
func RawPnL(dir model.Action, entry, price, lots float64) float64 {
	diff := price - entry
	if dir == model.ActionSell {
		diff = entry - price
	}
	return diff * lots * unitsPerLot
}

// ToUSD converts amount, quoted in symbol's quote currency, to USD. price is
// the symbol's own rate, used for USD-base pairs.
func (c *Converter) ToUSD(ctx context.Context, symbol string, amount, price float64) (float64, Conversion) {
	switch {
	case strings.HasSuffix(symbol, "USD"):
		return amount, Conversion{Rate: 1, Method: MethodQuoteUSD}
	case strings.HasPrefix(symbol, "USD"):
		if price <= 0 {
			return 0, Conversion{Method: MethodBaseUSD, Degraded: true}
		}
		return amount / price, Conversion{Rate: 1 / price, Method: MethodBaseUSD}
	}

	quote := quoteCurrency(symbol)
	if rate, ok := c.rate(ctx, quote+"USD"); ok {
		c.met.Conversion(MethodDirect)
		return amount * rate, Conversion{Rate: rate, Method: MethodDirect}
	}
	if rate, ok := c.rate(ctx, "USD"+quote); ok {
		c.met.Conversion(MethodInverse)
		return amount / rate, Conversion{Rate: 1 / rate, Method: MethodInverse}
	}

	slog.Warn("no USD rate for cross pair, using 1:1", "symbol", symbol, "quote", quote)
	c.met.Conversion(MethodUnconverted)
	return amount, Conversion{Rate: 1, Method: MethodUnconverted, Degraded: true}
}

func (c *Converter) rate(ctx context.Context, pair string) (float64, bool) {
	if c == nil || c.prices == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	r, err := c.prices.Price(ctx, pair)
	if err != nil || r <= 0 || math.IsNaN(r) {
		return 0, false
	}
	return r, true
}

func quoteCurrency(symbol string) string {
	if len(symbol) < 6 {
		return symbol
	}
	return symbol[3:6]
}

// FloatingPnL returns the unrealized USD P&L of t at price and its size as a
// percentage of the entry notional (4 dp).
func (c *Converter) FloatingPnL(ctx context.Context, t Trade, price float64) (pnl, pct float64) {
	usd, _ := c.ToUSD(ctx, t.Symbol, RawPnL(t.Direction, t.EntryPrice, price, t.LotSize), price)

	notional := t.EntryPrice * t.Units()
	if strings.HasPrefix(t.Symbol, "USD") && price > 0 && t.EntryPrice != 0 {
		notional /= t.EntryPrice
	}
	if notional != 0 {
		pct = usd / math.Abs(notional) * 100
	}
	return round2(usd), round(pct, 4)
}

// MaxRisk returns the USD loss of t if its stop is hit. USD-base pairs are
// converted at the entry price.
func (c *Converter) MaxRisk(ctx context.Context, t Trade) float64 {
	raw := math.Abs(t.StopLoss-t.EntryPrice) * t.Units()
	if strings.HasPrefix(t.Symbol, "USD") && !strings.HasSuffix(t.Symbol, "USD") {
		if t.EntryPrice <= 0 {
			return 0
		}
		return round2(raw / t.EntryPrice)
	}
	usd, _ := c.ToUSD(ctx, t.Symbol, raw, t.EntryPrice)
	return round2(usd)
}
