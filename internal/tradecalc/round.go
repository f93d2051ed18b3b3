package tradecalc

import "github.com/shopspring/decimal"

// Round rounds x to places decimal places, half away from zero.
func Round(x float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}
