// Package tradecalc turns a direction call into concrete trade geometry:
// entry/stop/target levels, a projected next candle and a position size.
package tradecalc

import (
	"math"

	"forex-autopilot/internal/model"
)

// DefaultATR is used when the latest row has no ATR yet.
const DefaultATR = 0.001

// Levels is the trade geometry for one opportunity.
type Levels struct {
	Entry      float64      `json:"entry_price"`
	Stop       float64      `json:"stop_loss"`
	Target     float64      `json:"target_price"`
	ATR        float64      `json:"atr"`
	RiskReward float64      `json:"risk_reward"`
	Direction  model.Action `json:"direction"`
}

// multipliers returns the stop and target ATR multiples for a confidence.
// Higher confidence gets tighter stops and nearer targets.
func multipliers(confidence float64) (stop, target float64) {
	switch {
	case confidence >= 0.75:
		return 2.0, 3.0
	case confidence >= 0.65:
		return 2.5, 3.5
	default:
		return 3.0, 4.0
	}
}

func latestATR(row model.EnrichedRow) float64 {
	if row.HasATR {
		return row.ATR
	}
	return DefaultATR
}

// CalculateLevels places stop and target around the latest close using
// ATR multiples chosen by confidence. Prices are rounded to 5 dp and the
// risk/reward ratio to 2 dp.
func CalculateLevels(latest model.EnrichedRow, dir model.Direction, confidence float64) Levels {
	entry := latest.Close
	atr := latestATR(latest)
	stopMul, targetMul := multipliers(confidence)

	var stop, target float64
	if dir == model.DirectionUp {
		stop = entry - stopMul*atr
		target = entry + targetMul*atr
	} else {
		stop = entry + stopMul*atr
		target = entry - targetMul*atr
	}

	risk := math.Abs(entry - stop)
	reward := math.Abs(target - entry)
	rr := 0.0
	if risk > 0 {
		rr = reward / risk
	}

	return Levels{
		Entry:      Round(entry, 5),
		Stop:       Round(stop, 5),
		Target:     Round(target, 5),
		ATR:        Round(atr, 5),
		RiskReward: Round(rr, 2),
		Direction:  dir.Action(),
	}
}
