package numerics

import (
	"fmt"
	"math"
)

// SolveRidge solves W = argmin ||S*W - Y||² + lambda*||W||² through the
// normal equations (SᵀS + lambda*I) W = SᵀY with a Cholesky factorization.
// The system is solved directly; the Gram matrix is never inverted.
func SolveRidge(states, targets *Matrix, lambda float64) (*Matrix, error) {
	if states == nil || targets == nil {
		return nil, fmt.Errorf("states and targets are required")
	}
	if states.Rows != targets.Rows {
		return nil, fmt.Errorf("states has %d rows, targets has %d", states.Rows, targets.Rows)
	}
	if states.Rows == 0 {
		return nil, fmt.Errorf("at least one sample is required")
	}
	if lambda < 0 {
		return nil, fmt.Errorf("ridge lambda must be >= 0, got %f", lambda)
	}

	gram := states.MulTransposeSelf()
	for i := 0; i < gram.Rows; i++ {
		gram.Data[i*gram.Cols+i] += lambda
	}

	rhs, err := states.MulTranspose(targets)
	if err != nil {
		return nil, err
	}

	chol, err := choleskyFactor(gram)
	if err != nil {
		return nil, fmt.Errorf("ridge system is not positive definite (increase lambda): %w", err)
	}

	n := gram.Rows
	out := &Matrix{Rows: n, Cols: rhs.Cols, Data: make([]float64, n*rhs.Cols)}
	y := make([]float64, n)
	for col := 0; col < rhs.Cols; col++ {
		// Forward substitution: L y = b.
		for i := 0; i < n; i++ {
			sum := rhs.At(i, col)
			for k := 0; k < i; k++ {
				sum -= chol.At(i, k) * y[k]
			}
			y[i] = sum / chol.At(i, i)
		}
		// Back substitution: Lᵀ w = y.
		for i := n - 1; i >= 0; i-- {
			sum := y[i]
			for k := i + 1; k < n; k++ {
				sum -= chol.At(k, i) * out.At(k, col)
			}
			out.Set(i, col, sum/chol.At(i, i))
		}
	}
	return out, nil
}

func choleskyFactor(a *Matrix) (*Matrix, error) {
	n := a.Rows
	l := &Matrix{Rows: n, Cols: n, Data: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a.At(i, j)
			for k := 0; k < j; k++ {
				sum -= l.At(i, k) * l.At(j, k)
			}
			if i == j {
				if sum <= 0 {
					return nil, fmt.Errorf("non-positive pivot at %d: %g", i, sum)
				}
				l.Set(i, i, math.Sqrt(sum))
			} else {
				l.Set(i, j, sum/l.At(j, j))
			}
		}
	}
	return l, nil
}
