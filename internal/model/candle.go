package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a currency pair.
// Prices are quote-currency floats as delivered by the data provider.
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for logging usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// EnrichedRow is a candle plus the computed features consumed by the
// council, the scorer and the classifier. Indicator fields are only
// meaningful when the matching Has* flag is set; warm-up rows leave them false.
type EnrichedRow struct {
	Candle

	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDDiff   float64 `json:"macd_diff"`
	BBHigh     float64 `json:"bb_high"`
	BBLow      float64 `json:"bb_low"`
	BBMid      float64 `json:"bb_mid"`
	ATR        float64 `json:"atr"`
	SMA50      float64 `json:"sma_50"`
	EMA20      float64 `json:"ema_20"`

	HasRSI  bool `json:"-"`
	HasMACD bool `json:"-"`
	HasBB   bool `json:"-"`
	HasATR  bool `json:"-"`
	HasSMA  bool `json:"-"`
	HasEMA  bool `json:"-"`

	PatternDoji             bool `json:"pattern_doji"`
	PatternHammer           bool `json:"pattern_hammer"`
	PatternBullishEngulfing bool `json:"pattern_bullish_engulfing"`
	PatternBearishEngulfing bool `json:"pattern_bearish_engulfing"`
}

// Complete reports whether every indicator column has a value.
func (r *EnrichedRow) Complete() bool {
	return r.HasRSI && r.HasMACD && r.HasBB && r.HasATR && r.HasSMA && r.HasEMA
}

// RSIOr returns the RSI or def while the indicator is warming up.
func (r *EnrichedRow) RSIOr(def float64) float64 {
	if !r.HasRSI {
		return def
	}
	return r.RSI
}

// Patterns is the pattern flag set of a row in API form.
type Patterns struct {
	Doji             bool `json:"doji"`
	Hammer           bool `json:"hammer"`
	BullishEngulfing bool `json:"bullish_engulfing"`
	BearishEngulfing bool `json:"bearish_engulfing"`
}

// Patterns returns the pattern flags of the row.
func (r *EnrichedRow) Patterns() Patterns {
	return Patterns{
		Doji:             r.PatternDoji,
		Hammer:           r.PatternHammer,
		BullishEngulfing: r.PatternBullishEngulfing,
		BearishEngulfing: r.PatternBearishEngulfing,
	}
}
