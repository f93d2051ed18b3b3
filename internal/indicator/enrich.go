package indicator

import "forex-autopilot/internal/model"

// Default indicator periods.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerWidth  = 2.0
	ATRPeriod       = 14
	SMAPeriod       = 50
	EMAPeriod       = 20
)

// Enrich computes the indicator columns and pattern flags for a candle
// series. The output has one row per input candle in the same order; rows
// inside an indicator's warm-up window leave that indicator's Has* flag false.
func Enrich(candles []model.Candle) []model.EnrichedRow {
	if len(candles) == 0 {
		return nil
	}

	rsi := NewRSI(RSIPeriod)
	macd := NewMACD(MACDFast, MACDSlow, MACDSignal)
	bb := NewBollinger(BollingerPeriod, BollingerWidth)
	atr := NewATR(ATRPeriod)
	sma := NewSMA(SMAPeriod)
	ema := NewEMA(EMAPeriod)

	rows := make([]model.EnrichedRow, len(candles))
	for i, c := range candles {
		rsi.Update(c)
		macd.Update(c)
		bb.Update(c)
		atr.Update(c)
		sma.Update(c)
		ema.Update(c)

		r := model.EnrichedRow{Candle: c}
		if rsi.Ready() {
			r.RSI, r.HasRSI = rsi.Value(), true
		}
		if macd.Ready() {
			r.MACD, r.MACDSignal, r.MACDDiff, r.HasMACD = macd.Value(), macd.Signal(), macd.Diff(), true
		}
		if bb.Ready() {
			r.BBHigh, r.BBLow, r.BBMid, r.HasBB = bb.High(), bb.Low(), bb.Value(), true
		}
		if atr.Ready() {
			r.ATR, r.HasATR = atr.Value(), true
		}
		if sma.Ready() {
			r.SMA50, r.HasSMA = sma.Value(), true
		}
		if ema.Ready() {
			r.EMA20, r.HasEMA = ema.Value(), true
		}
		rows[i] = r
	}

	DetectPatterns(rows)
	return rows
}
