package numerics

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotFinite reports NaN or Inf in a state or weight vector. Divergent
// dynamics are fatal to the owning engine instance.
var ErrNotFinite = errors.New("non-finite value in vector")

// CheckFinite returns ErrNotFinite (wrapped with the offending index) if
// any value is NaN or Inf.
func CheckFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("index %d is %g: %w", i, v, ErrNotFinite)
		}
	}
	return nil
}

// SaturationFraction returns the fraction of entries within epsilon of the
// tanh saturation bound |v| = 1.
func SaturationFraction(state []float64, epsilon float64) float64 {
	if len(state) == 0 {
		return 0
	}
	saturated := 0
	for _, v := range state {
		if math.Abs(v) >= 1-epsilon {
			saturated++
		}
	}
	return float64(saturated) / float64(len(state))
}

// MSE returns the mean squared error across two equal-shape sequences of
// vectors.
func MSE(predicted, expected [][]float64) (float64, error) {
	if len(predicted) != len(expected) {
		return 0, fmt.Errorf("sequence lengths differ: %d vs %d", len(predicted), len(expected))
	}
	if len(predicted) == 0 {
		return 0, fmt.Errorf("sequences must not be empty")
	}
	sum := 0.0
	count := 0
	for t := range predicted {
		if len(predicted[t]) != len(expected[t]) {
			return 0, fmt.Errorf("sample %d dimensions differ: %d vs %d", t, len(predicted[t]), len(expected[t]))
		}
		for j := range predicted[t] {
			diff := predicted[t][j] - expected[t][j]
			sum += diff * diff
			count++
		}
	}
	return sum / float64(count), nil
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("values must not be empty")
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}
