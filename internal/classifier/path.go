package classifier

import (
	"math"
	"time"

	"forex-autopilot/internal/model"
)

// PathSteps is the default projection length.
const PathSteps = 10

// minRegressionRows is the smallest history the regressor fits on.
const minRegressionRows = 10

const ridge = 1e-4

// PathPoint is one projected bar. Time is unix seconds.
type PathPoint struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Regressor predicts the next close with a ridge-regularized least-squares
// fit of the close-to-close change on the bar's OHLCV, RSI, MACD and ATR.
type Regressor struct {
	scaler  scaler
	coef    []float64
	bias    float64
	trained bool
}

func regressionInput(r model.EnrichedRow) []float64 {
	return []float64{r.Open, r.High, r.Low, r.Close, r.Volume, r.RSI, r.MACD, r.ATR}
}

// Train fits on every complete row that has a successor. Histories shorter
// than minRegressionRows leave the regressor predicting an unchanged close.
func (g *Regressor) Train(rows []model.EnrichedRow) {
	var xs [][]float64
	var ys []float64
	for i := 0; i < len(rows)-1; i++ {
		if !rows[i].Complete() {
			continue
		}
		xs = append(xs, regressionInput(rows[i]))
		ys = append(ys, rows[i+1].Close-rows[i].Close)
	}
	if len(xs) < minRegressionRows {
		g.trained = false
		return
	}

	g.scaler = fitScaler(xs)
	for i := range xs {
		xs[i] = g.scaler.transform(xs[i])
	}

	var ymean float64
	for _, y := range ys {
		ymean += y
	}
	ymean /= float64(len(ys))

	// Normal equations on centered targets: (XᵀX + λI) β = Xᵀy
	dim := len(xs[0])
	a := make([][]float64, dim)
	b := make([]float64, dim)
	for j := range a {
		a[j] = make([]float64, dim)
	}
	for i, x := range xs {
		yc := ys[i] - ymean
		for j := 0; j < dim; j++ {
			b[j] += x[j] * yc
			for k := 0; k < dim; k++ {
				a[j][k] += x[j] * x[k]
			}
		}
	}
	for j := 0; j < dim; j++ {
		a[j][j] += ridge * float64(len(xs))
	}

	coef, ok := solve(a, b)
	if !ok {
		g.trained = false
		return
	}
	g.coef = coef
	g.bias = ymean
	g.trained = true
}

// PredictNext returns the predicted close of the bar after row.
func (g *Regressor) PredictNext(row model.EnrichedRow) float64 {
	if !g.trained {
		return row.Close
	}
	return row.Close + dot(g.coef, g.scaler.transform(regressionInput(row))) + g.bias
}

// FuturePath projects steps bars recursively. Each projected bar opens at
// the previous close, gets wicks shaped by the last ATR and carries RSI,
// MACD and ATR forward. Timestamps advance by interval from the last bar.
func (g *Regressor) FuturePath(rows []model.EnrichedRow, steps int, interval time.Duration) []PathPoint {
	if len(rows) == 0 || steps <= 0 {
		return nil
	}
	last := rows[len(rows)-1]
	atr := last.Close * 0.001
	if last.HasATR {
		atr = last.ATR
	}

	path := make([]PathPoint, 0, steps)
	cur := last
	for i := 0; i < steps; i++ {
		next := g.PredictNext(cur)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			next = cur.Close
		}
		open := cur.Close

		var high, low float64
		if next > open {
			high = next + atr*0.2
			low = open - atr*0.1
		} else {
			high = open + atr*0.1
			low = next - atr*0.2
		}

		ts := last.TS.Add(interval * time.Duration(i+1))
		path = append(path, PathPoint{Time: ts.Unix(), Open: open, High: high, Low: low, Close: next})

		cur = model.EnrichedRow{
			Candle: model.Candle{Symbol: last.Symbol, TS: ts, Open: open, High: high, Low: low, Close: next},
			RSI:    last.RSI, HasRSI: last.HasRSI,
			MACD: last.MACD, MACDSignal: last.MACDSignal, HasMACD: last.HasMACD,
			ATR: atr, HasATR: true,
		}
	}
	return path
}

// solve runs Gaussian elimination with partial pivoting, overwriting a and
// b. ok is false for a singular matrix.
func solve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < n; c++ {
			s -= a[r][c] * x[c]
		}
		x[r] = s / a[r][r]
	}
	return x, true
}
