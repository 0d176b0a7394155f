// Package signal generates deterministic benchmark sequences for training
// and evaluating reservoir engines.
package signal

import (
	"fmt"
	"math"
)

// Default parameters for the chaotic generators.
const (
	DefaultLogisticR     = 3.9
	DefaultLogisticX0    = 0.5
	DefaultMackeyBeta    = 0.2
	DefaultMackeyGamma   = 0.1
	DefaultMackeyN       = 10.0
	DefaultMackeyTau     = 17
	DefaultHenonA        = 1.4
	DefaultHenonB        = 0.3
	DefaultSineFrequency = 0.2
)

// Sine returns length samples of sin(frequency * t), t = 0..length-1.
func Sine(length int, frequency float64) ([]float64, error) {
	if length <= 0 {
		return nil, fmt.Errorf("length must be > 0, got %d", length)
	}
	out := make([]float64, length)
	for t := range out {
		out[t] = math.Sin(frequency * float64(t))
	}
	return out, nil
}

// Logistic returns length iterates of the logistic map x' = r*x*(1-x)
// starting from x0. r = 3.9 with x0 in (0, 1) gives a chaotic orbit.
func Logistic(length int, r, x0 float64) ([]float64, error) {
	if length <= 0 {
		return nil, fmt.Errorf("length must be > 0, got %d", length)
	}
	if x0 <= 0 || x0 >= 1 {
		return nil, fmt.Errorf("x0 must be in (0, 1), got %g", x0)
	}
	out := make([]float64, length)
	x := x0
	for t := range out {
		out[t] = x
		x = r * x * (1 - x)
	}
	return out, nil
}

// MackeyGlass returns a discretized Mackey-Glass series
//
//	x' = x + beta*x(t-tau)/(1+x(t-tau)^n) - gamma*x
//
// with unit time step and delay tau in samples. The first tau samples of
// the history buffer are held at the initial value 1.2; a transient of
// 10*tau samples is discarded before recording begins.
func MackeyGlass(length, tau int, beta, gamma, n float64) ([]float64, error) {
	if length <= 0 {
		return nil, fmt.Errorf("length must be > 0, got %d", length)
	}
	if tau <= 0 {
		return nil, fmt.Errorf("tau must be > 0, got %d", tau)
	}
	transient := 10 * tau
	history := make([]float64, tau)
	for i := range history {
		history[i] = 1.2
	}
	x := 1.2
	out := make([]float64, length)
	for t := 0; t < transient+length; t++ {
		delayed := history[t%tau]
		next := x + beta*delayed/(1+math.Pow(delayed, n)) - gamma*x
		history[t%tau] = x
		x = next
		if t >= transient {
			out[t-transient] = x
		}
	}
	return out, nil
}

// Henon returns the x coordinate of the Henon map
//
//	x' = 1 - a*x^2 + y
//	y' = b*x
//
// from the origin. a = 1.4, b = 0.3 is the classic chaotic regime.
func Henon(length int, a, b float64) ([]float64, error) {
	if length <= 0 {
		return nil, fmt.Errorf("length must be > 0, got %d", length)
	}
	out := make([]float64, length)
	x, y := 0.0, 0.0
	for t := range out {
		out[t] = x
		x, y = 1-a*x*x+y, b*x
	}
	return out, nil
}

// ByName builds a named sequence with default parameters. Recognized names
// are sine, logistic, mackey_glass and henon.
func ByName(name string, length int) ([]float64, error) {
	switch name {
	case "sine":
		return Sine(length, DefaultSineFrequency)
	case "logistic":
		return Logistic(length, DefaultLogisticR, DefaultLogisticX0)
	case "mackey_glass":
		return MackeyGlass(length, DefaultMackeyTau, DefaultMackeyBeta, DefaultMackeyGamma, DefaultMackeyN)
	case "henon":
		return Henon(length, DefaultHenonA, DefaultHenonB)
	default:
		return nil, fmt.Errorf("unknown signal %q (known: sine, logistic, mackey_glass, henon)", name)
	}
}

// OneStepPairs converts a scalar series into one-step-ahead prediction
// pairs: inputs[t] = series[t], targets[t] = series[t+1].
func OneStepPairs(series []float64) (inputs, targets [][]float64, err error) {
	if len(series) < 2 {
		return nil, nil, fmt.Errorf("series needs at least 2 samples, got %d", len(series))
	}
	n := len(series) - 1
	inputs = make([][]float64, n)
	targets = make([][]float64, n)
	for t := 0; t < n; t++ {
		inputs[t] = []float64{series[t]}
		targets[t] = []float64{series[t+1]}
	}
	return inputs, targets, nil
}
