package numerics

import (
	"fmt"

	"pleroma/internal/rng"
)

// RandomSparse synthesizes an n x n reservoir matrix: uniform [-1, 1)
// entries, each zeroed with probability sparsity. Two draws are consumed
// per entry so the stream position is independent of the mask outcome.
func RandomSparse(n int, sparsity float64, src *rng.Source) (*Matrix, error) {
	if n <= 0 {
		return nil, fmt.Errorf("matrix size must be > 0, got %d", n)
	}
	if sparsity < 0 || sparsity >= 1 {
		return nil, fmt.Errorf("sparsity must be in [0, 1), got %f", sparsity)
	}
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}

	m := &Matrix{Rows: n, Cols: n, Data: make([]float64, n*n)}
	for i := range m.Data {
		value := src.Range(-1, 1)
		if src.Float64() >= sparsity {
			m.Data[i] = value
		}
	}
	return m, nil
}

// RandomUniform synthesizes a dense rows x cols matrix with uniform [-1, 1)
// entries.
func RandomUniform(rows, cols int, src *rng.Source) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("matrix dimensions must be > 0, got %dx%d", rows, cols)
	}
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	m := &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	src.Fill(m.Data, -1, 1)
	return m, nil
}

// ScaleToRadius rescales m in place so its spectral radius equals target,
// and returns the radius measured before scaling.
func ScaleToRadius(m *Matrix, target float64, estimator RadiusEstimator) (float64, error) {
	if target <= 0 {
		return 0, fmt.Errorf("target spectral radius must be > 0, got %f", target)
	}
	radius, err := estimator.Estimate(m)
	if err != nil {
		return 0, err
	}
	if radius == 0 {
		return 0, fmt.Errorf("matrix has zero spectral radius and cannot be rescaled")
	}
	m.Scale(target / radius)
	return radius, nil
}
