package portfolio

import "github.com/shopspring/decimal"

func round(x float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}

func round2(x float64) float64 { return round(x, 2) }

// addMoney adds two 2-dp amounts without binary float drift.
func addMoney(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}
