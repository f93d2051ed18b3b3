package classifier

import "math"

// scaler standardizes columns to zero mean and unit variance.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(xs [][]float64) scaler {
	if len(xs) == 0 {
		return scaler{}
	}
	n := len(xs[0])
	s := scaler{mean: make([]float64, n), std: make([]float64, n)}
	for _, x := range xs {
		for j, v := range x {
			s.mean[j] += v
		}
	}
	for j := range s.mean {
		s.mean[j] /= float64(len(xs))
	}
	for _, x := range xs {
		for j, v := range x {
			d := v - s.mean[j]
			s.std[j] += d * d
		}
	}
	for j := range s.std {
		s.std[j] = math.Sqrt(s.std[j] / float64(len(xs)))
		if s.std[j] < eps {
			s.std[j] = 1
		}
	}
	return s
}

func (s scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.mean[j]) / s.std[j]
	}
	return out
}
