package indicator

import (
	"math"

	"forex-autopilot/internal/model"
)

// ATR calculates the Average True Range with Wilder smoothing.
type ATR struct {
	smma      *SMMA
	prevClose float64
	seen      bool
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	tr := candle.High - candle.Low
	if a.seen {
		tr = math.Max(tr, math.Max(math.Abs(candle.High-a.prevClose), math.Abs(candle.Low-a.prevClose)))
	}
	a.prevClose = candle.Close
	a.seen = true
	a.smma.UpdateValue(tr)
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }
