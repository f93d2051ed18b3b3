package tradecalc

import "math"

const (
	// UnitsPerLot is the size of one standard lot in base-currency units.
	UnitsPerLot = 100000.0
	// MinLots is the smallest tradable position.
	MinLots = 0.01
	// MaxLeverage bounds notional exposure to balance × MaxLeverage.
	MaxLeverage = 200.0
	// yenPriceThreshold marks pairs quoted like JPY, whose pip value must be
	// divided by the price to approximate USD.
	yenPriceThreshold = 50.0
)

// PositionSize returns the lot size that risks riskFraction of balance
// between entry and stop, floored at MinLots and capped by MaxLeverage.
func PositionSize(balance, riskFraction, entry, stop float64) float64 {
	riskAmount := balance * riskFraction
	riskPerUnit := math.Abs(entry - stop)

	riskPerUnitUSD := riskPerUnit
	if entry > yenPriceThreshold {
		riskPerUnitUSD = riskPerUnit / entry
	}
	if riskPerUnitUSD == 0 {
		return MinLots
	}

	lots := Round(riskAmount/riskPerUnitUSD/UnitsPerLot, 2)
	if lots < MinLots {
		lots = MinLots
	}

	maxUnits := balance * MaxLeverage
	if entry <= yenPriceThreshold && entry > 0 {
		maxUnits /= entry
	}
	maxLots := maxUnits / UnitsPerLot
	if lots > maxLots {
		lots = math.Max(MinLots, Round(maxLots, 2))
	}
	return Round(lots, 2)
}
