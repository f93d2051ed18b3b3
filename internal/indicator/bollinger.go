package indicator

import (
	"math"

	"forex-autopilot/internal/model"
)

// Bollinger computes Bollinger Bands: an SMA midline with bands k population
// standard deviations above and below.
type Bollinger struct {
	sma *SMA
	k   float64

	high float64
	low  float64
}

// NewBollinger creates Bollinger Bands over period closes with width k.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return "BB" }

func (b *Bollinger) Update(candle model.Candle) {
	b.sma.Update(candle)
	if !b.sma.Ready() {
		return
	}
	mid := b.sma.Value()
	var ss float64
	for _, v := range b.sma.Window() {
		d := v - mid
		ss += d * d
	}
	std := math.Sqrt(ss / float64(b.sma.period))
	b.high = mid + b.k*std
	b.low = mid - b.k*std
}

// Value returns the midline.
func (b *Bollinger) Value() float64 { return b.sma.Value() }
func (b *Bollinger) High() float64  { return b.high }
func (b *Bollinger) Low() float64   { return b.low }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }
