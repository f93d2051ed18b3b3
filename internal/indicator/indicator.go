// Package indicator provides technical indicator calculations over candle data
// and the enrichment step that turns raw candles into feature rows.
//
// All indicators implement the Indicator interface, receiving candles and
// producing float64 values. Indicators are incremental: each Update is O(1)
// and the warm-up state is reported through Ready.
package indicator

import "forex-autopilot/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
