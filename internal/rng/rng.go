package rng

import (
	"fmt"
	"math"
)

// Source is a 32-bit xorshift generator with a portable output contract:
// every conforming implementation produces the same integer sequence for the
// same seed. All derived draws are pure functions of the integer stream, so
// the full generator state is the single 32-bit word.
type Source struct {
	state uint32

	hasSpare bool
	spare    float64
}

// NewSource returns a generator for seed. Seed 0 is illegal for xorshift and
// is remapped to 1.
func NewSource(seed uint32) *Source {
	if seed == 0 {
		seed = 1
	}
	return &Source{state: seed}
}

// Next advances the generator and returns the next 32-bit integer.
func (s *Source) Next() uint32 {
	x := s.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.state = x
	return x
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	return float64(s.Next()) / 4294967296.0
}

// IntN returns a uniform draw in [0, n).
func (s *Source) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("range must be > 0, got %d", n)
	}
	return int(s.Float64() * float64(n)), nil
}

// Range returns a uniform draw in [lo, hi).
func (s *Source) Range(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// NormFloat64 returns a standard-normal draw via Box-Muller. The second
// variate of each pair is cached and returned on the following call.
func (s *Source) NormFloat64() float64 {
	if s.hasSpare {
		s.hasSpare = false
		return s.spare
	}
	u1 := s.Float64()
	for u1 == 0 {
		u1 = s.Float64()
	}
	u2 := s.Float64()
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	s.spare = r * math.Sin(theta)
	s.hasSpare = true
	return r * math.Cos(theta)
}

// Fill overwrites values with uniform draws in [lo, hi).
func (s *Source) Fill(values []float64, lo, hi float64) {
	for i := range values {
		values[i] = s.Range(lo, hi)
	}
}

// Shuffle permutes n elements by Fisher-Yates, calling swap for each pair.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j, _ := s.IntN(i + 1)
		swap(i, j)
	}
}

// WeightedIndex returns an index drawn proportionally to weights. All
// weights must be >= 0 and at least one must be > 0.
func (s *Source) WeightedIndex(weights []float64) (int, error) {
	if len(weights) == 0 {
		return 0, fmt.Errorf("weights must not be empty")
	}
	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return 0, fmt.Errorf("weight %d must be >= 0, got %f", i, w)
		}
		total += w
	}
	if total <= 0 {
		return 0, fmt.Errorf("at least one weight must be > 0")
	}
	target := s.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if target < acc {
			return i, nil
		}
	}
	return len(weights) - 1, nil
}

// State exports the generator word for checkpointing. The Box-Muller spare
// is intentionally not part of the checkpoint contract; Restore always
// resumes on a fresh pair.
func (s *Source) State() uint32 {
	return s.state
}

// Restore resets the generator to a previously exported word.
func (s *Source) Restore(state uint32) {
	if state == 0 {
		state = 1
	}
	s.state = state
	s.hasSpare = false
}
