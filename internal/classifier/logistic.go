// Package classifier predicts the direction of the next bar from engineered
// indicator features, and projects a short future price path.
package classifier

import (
	"math"

	"forex-autopilot/internal/model"
)

const (
	// MinTrainingRows is the smallest prepared set the model will fit on.
	MinTrainingRows = 50
	// DecayRate weights recent samples exponentially higher.
	DecayRate = 0.01
	// TrainFraction is the older share of samples used for fitting.
	TrainFraction = 0.8

	iterations   = 400
	learningRate = 0.5
	l2           = 1e-3
)

// Logistic is a weighted logistic regression over standardized features.
// The zero value is an unfitted model.
type Logistic struct {
	scaler  scaler
	weights []float64
	bias    float64
	fitted  bool
}

// NewLogistic returns an unfitted model. Its signature matches
// model.ClassifierFactory.
func NewLogistic() model.Classifier {
	return &Logistic{}
}

// Train fits on the older TrainFraction of the prepared samples with
// exponential recency weights and returns accuracy on the newer remainder.
// Fewer than MinTrainingRows samples leave the model unfitted and return 0.5.
func (m *Logistic) Train(rows []model.EnrichedRow) float64 {
	samples, _ := prepare(rows)
	if len(samples) < MinTrainingRows {
		m.fitted = false
		return 0.5
	}

	n := len(samples)
	weights := make([]float64, n)
	var wsum float64
	for i := range weights {
		weights[i] = math.Exp(DecayRate * float64(i))
		wsum += weights[i]
	}
	for i := range weights {
		weights[i] = weights[i] / wsum * float64(n)
	}

	split := int(float64(n) * TrainFraction)
	train, test := samples[:split], samples[split:]

	xs := make([][]float64, len(train))
	for i, s := range train {
		xs[i] = s.x
	}
	m.scaler = fitScaler(xs)
	for i := range xs {
		xs[i] = m.scaler.transform(xs[i])
	}
	m.fit(xs, train, weights[:split])
	m.fitted = true

	if len(test) == 0 {
		return 0.5
	}
	correct := 0
	for _, s := range test {
		if p := m.prob(s.x); (p >= 0.5) == (s.y == 1) {
			correct++
		}
	}
	return float64(correct) / float64(len(test))
}

func (m *Logistic) fit(xs [][]float64, train []sample, w []float64) {
	dim := len(xs[0])
	m.weights = make([]float64, dim)
	m.bias = 0

	var wsum float64
	for _, v := range w {
		wsum += v
	}

	grad := make([]float64, dim)
	for it := 0; it < iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, x := range xs {
			diff := w[i] * (sigmoid(dot(m.weights, x)+m.bias) - train[i].y)
			for j, v := range x {
				grad[j] += diff * v
			}
			gb += diff
		}
		for j := range m.weights {
			m.weights[j] -= learningRate * (grad[j]/wsum + l2*m.weights[j])
		}
		m.bias -= learningRate * gb / wsum
	}
}

// prob returns P(up) for a raw feature vector.
func (m *Logistic) prob(x []float64) float64 {
	return sigmoid(dot(m.weights, m.scaler.transform(x)) + m.bias)
}

// Predict classifies the latest usable row and returns the probability of
// the predicted class.
func (m *Logistic) Predict(rows []model.EnrichedRow) (model.Direction, float64, error) {
	if !m.fitted {
		return model.DirectionDown, 0, model.ErrInsufficientTrainingData
	}
	_, latest := prepare(rows)
	if latest == nil {
		return model.DirectionDown, 0, model.ErrInsufficientTrainingData
	}
	p := m.prob(latest)
	if p >= 0.5 {
		return model.DirectionUp, p, nil
	}
	return model.DirectionDown, 1 - p, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
