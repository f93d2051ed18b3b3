package classifier

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forex-autopilot/internal/indicator"
	"forex-autopilot/internal/model"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// series builds n bars of a noisy sine wave around 1.10.
func series(n int) []model.EnrichedRow {
	candles := make([]model.Candle, n)
	for i := range candles {
		p := 1.10 + 0.004*math.Sin(float64(i)/7) + 0.0003*math.Sin(float64(i)*1.3)
		candles[i] = model.Candle{
			Symbol: "EURUSD",
			TS:     t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:   p - 0.0001,
			High:   p + 0.0006,
			Low:    p - 0.0006,
			Close:  p,
			Volume: float64(100 + i%7),
		}
	}
	return indicator.Enrich(candles)
}

func TestLogistic_TooLittleData(t *testing.T) {
	m := NewLogistic()
	acc := m.Train(series(60))
	assert.Equal(t, 0.5, acc)

	_, _, err := m.Predict(series(60))
	assert.True(t, errors.Is(err, model.ErrInsufficientTrainingData))
}

func TestLogistic_TrainAndPredict(t *testing.T) {
	rows := series(400)
	m := NewLogistic()

	acc := m.Train(rows)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)

	dir, conf, err := m.Predict(rows)
	require.NoError(t, err)
	assert.Contains(t, []model.Direction{model.DirectionUp, model.DirectionDown}, dir)
	assert.GreaterOrEqual(t, conf, 0.5)
	assert.LessOrEqual(t, conf, 1.0)
}

func TestLogistic_Deterministic(t *testing.T) {
	rows := series(300)
	a, b := NewLogistic(), NewLogistic()
	assert.Equal(t, a.Train(rows), b.Train(rows))

	d1, c1, _ := a.Predict(rows)
	d2, c2, _ := b.Predict(rows)
	assert.Equal(t, d1, d2)
	assert.Equal(t, c1, c2)
}

func TestLogistic_LearnsSeparableData(t *testing.T) {
	// One informative feature, label = feature > 0.
	m := &Logistic{}
	var xs [][]float64
	var train []sample
	w := make([]float64, 0)
	for i := 0; i < 200; i++ {
		v := float64(i%20) - 9.5
		y := 0.0
		if v > 0 {
			y = 1
		}
		xs = append(xs, []float64{v})
		train = append(train, sample{x: []float64{v}, y: y})
		w = append(w, 1)
	}
	m.scaler = fitScaler(xs)
	for i := range xs {
		xs[i] = m.scaler.transform(xs[i])
	}
	m.fit(xs, train, w)

	assert.Greater(t, m.prob([]float64{5}), 0.9)
	assert.Less(t, m.prob([]float64{-5}), 0.1)
}

func TestPrepare_LabelsNextClose(t *testing.T) {
	rows := series(120)
	samples, latest := prepare(rows)
	require.NotEmpty(t, samples)
	require.Len(t, latest, len(featureNames))

	// The first usable row is the first complete one; MACD warms up last
	// among the short indicators but SMA50 gates everything.
	first := -1
	for i := range rows {
		if _, ok := features(rows, i); ok {
			first = i
			break
		}
	}
	require.Equal(t, indicator.SMAPeriod-1, first)

	usable := len(rows) - first
	assert.Len(t, samples, usable-1)
	want := 0.0
	if rows[first+1].Close > rows[first].Close {
		want = 1
	}
	assert.Equal(t, want, samples[0].y)
}

func TestSampleStd(t *testing.T) {
	assert.InDelta(t, 1.2909944, sampleStd([]float64{1, 2, 3, 4}), 1e-6)
	assert.Equal(t, 0.0, sampleStd([]float64{3}))
}

func TestRegressor_FuturePath(t *testing.T) {
	rows := series(200)
	var g Regressor
	g.Train(rows)
	require.True(t, g.trained)

	path := g.FuturePath(rows, PathSteps, 15*time.Minute)
	require.Len(t, path, PathSteps)

	last := rows[len(rows)-1]
	assert.Equal(t, last.TS.Add(15*time.Minute).Unix(), path[0].Time)
	assert.Equal(t, last.Close, path[0].Open)
	for i, p := range path {
		assert.GreaterOrEqual(t, p.High, math.Max(p.Open, p.Close), "step %d", i)
		assert.LessOrEqual(t, p.Low, math.Min(p.Open, p.Close), "step %d", i)
		if i > 0 {
			assert.Equal(t, path[i-1].Close, p.Open)
			assert.Equal(t, int64(15*60), p.Time-path[i-1].Time)
		}
	}
}

func TestRegressor_UntrainedIsFlat(t *testing.T) {
	rows := series(5)
	var g Regressor
	g.Train(rows)
	assert.False(t, g.trained)

	path := g.FuturePath(rows, 3, time.Hour)
	require.Len(t, path, 3)
	for _, p := range path {
		assert.Equal(t, rows[4].Close, p.Close)
	}
}

func TestSolve(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 → x = 1, y = 3
	x, ok := solve([][]float64{{2, 1}, {1, 3}}, []float64{5, 10})
	require.True(t, ok)
	assert.InDelta(t, 1, x[0], 1e-12)
	assert.InDelta(t, 3, x[1], 1e-12)

	_, ok = solve([][]float64{{1, 2}, {2, 4}}, []float64{1, 2})
	assert.False(t, ok)
}
