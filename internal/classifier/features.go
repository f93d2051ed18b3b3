package classifier

import (
	"math"

	"forex-autopilot/internal/model"
)

// featureNames lists the engineered columns in model order.
var featureNames = []string{
	"rsi", "macd", "macd_signal", "macd_diff", "bb_high", "bb_low", "bb_mid", "atr", "sma_50", "ema_20",
	"price_momentum_3", "price_momentum_5", "price_momentum_10",
	"rolling_std_5", "rolling_std_10",
	"volume_sma_10", "volume_ratio",
	"volatility_adj_return",
	"ema_distance", "sma_distance",
}

// lookback is the number of prior bars the engineered features need.
const lookback = 10

const eps = 1e-10

// sample is one prepared row: features, and the label when known.
type sample struct {
	x []float64
	y float64
}

// features computes the engineered vector for rows[i]. ok is false while any
// input is still warming up.
func features(rows []model.EnrichedRow, i int) ([]float64, bool) {
	if i < lookback || !rows[i].Complete() {
		return nil, false
	}
	r := rows[i]
	closes := func(from, to int) []float64 {
		out := make([]float64, 0, to-from+1)
		for j := from; j <= to; j++ {
			out = append(out, rows[j].Close)
		}
		return out
	}
	momentum := func(k int) float64 {
		prev := rows[i-k].Close
		if prev == 0 {
			return 0
		}
		return (r.Close - prev) / prev * 100
	}

	var volSum float64
	for j := i - 9; j <= i; j++ {
		volSum += rows[j].Volume
	}
	volSMA := volSum / 10

	returns := make([]float64, 0, 10)
	for j := i - 9; j <= i; j++ {
		prev := rows[j-1].Close
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (rows[j].Close-prev)/prev)
	}
	lastReturn := returns[len(returns)-1]

	emaDist, smaDist := 0.0, 0.0
	if r.EMA20 != 0 {
		emaDist = (r.Close - r.EMA20) / r.EMA20 * 100
	}
	if r.SMA50 != 0 {
		smaDist = (r.Close - r.SMA50) / r.SMA50 * 100
	}

	return []float64{
		r.RSI, r.MACD, r.MACDSignal, r.MACDDiff, r.BBHigh, r.BBLow, r.BBMid, r.ATR, r.SMA50, r.EMA20,
		momentum(3), momentum(5), momentum(10),
		sampleStd(closes(i-4, i)), sampleStd(closes(i-9, i)),
		volSMA, r.Volume / (volSMA + eps),
		lastReturn / (sampleStd(returns) + eps),
		emaDist, smaDist,
	}, true
}

// prepare returns the labeled training samples and the feature vector of
// the latest usable row. The label of a sample is whether the next usable
// row closed higher.
func prepare(rows []model.EnrichedRow) (samples []sample, latest []float64) {
	type prepared struct {
		x     []float64
		close float64
	}
	var ps []prepared
	for i := range rows {
		if x, ok := features(rows, i); ok {
			ps = append(ps, prepared{x: x, close: rows[i].Close})
		}
	}
	if len(ps) == 0 {
		return nil, nil
	}
	for i := 0; i < len(ps)-1; i++ {
		y := 0.0
		if ps[i+1].close > ps[i].close {
			y = 1
		}
		samples = append(samples, sample{x: ps[i].x, y: y})
	}
	return samples, ps[len(ps)-1].x
}

// sampleStd is the standard deviation with one degree of freedom removed.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var ss float64
	for _, v := range xs {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
