package scanner

import (
	"math"

	"forex-autopilot/internal/council"
	"forex-autopilot/internal/model"
)

// macdGap is the smallest MACD/signal separation that earns the MACD bonus.
const macdGap = 0.0001

// Score rates an opportunity from 0 to 100 by combining the classifier's
// confidence with the council verdict and the latest bar's indicators.
func Score(latest model.EnrichedRow, dir model.Direction, confidence float64, v council.Verdict) float64 {
	score := confidence * 35

	want := dir.Action()
	switch {
	case v.Consensus == want:
		score += v.Strength * 40
	case v.Consensus != model.ActionNeutral:
		score += v.Strength * 10
	}

	// Same bands for both directions.
	rsi := latest.RSIOr(50)
	switch {
	case rsi > 35 && rsi < 65:
		score += 15
	case rsi > 30 && rsi < 70:
		score += 8
	}

	if dir == model.DirectionUp {
		if latest.PatternHammer || latest.PatternBullishEngulfing {
			score += 10
		}
	} else if latest.PatternBearishEngulfing {
		score += 10
	}

	price := latest.Close
	ema, sma := price, price
	if latest.HasEMA {
		ema = latest.EMA20
	}
	if latest.HasSMA {
		sma = latest.SMA50
	}
	var above, below int
	for _, ma := range []float64{ema, sma} {
		if price > ma {
			above++
		}
		if price < ma {
			below++
		}
	}
	aligned := below
	if dir == model.DirectionUp {
		aligned = above
	}
	switch aligned {
	case 2:
		score += 10
	case 1:
		score += 5
	}

	var macd, signal float64
	if latest.HasMACD {
		macd, signal = latest.MACD, latest.MACDSignal
	}
	if math.Abs(macd-signal) > macdGap {
		if (dir == model.DirectionUp && macd > signal) || (dir == model.DirectionDown && macd < signal) {
			score += 5
		}
	}

	return math.Min(100, math.Max(0, score))
}
