package numerics

import "fmt"

// Matrix is a dense row-major float64 matrix. Sparsity in the engine is
// represented by zero-valued entries; zero means absent.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

func NewMatrix(rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("matrix dimensions must be > 0, got %dx%d", rows, cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}, nil
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

func (m *Matrix) Clone() *Matrix {
	out := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]float64, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}

// MulVec computes m*x into dst. dst must have length m.Rows and x length
// m.Cols.
func (m *Matrix) MulVec(x, dst []float64) error {
	if len(x) != m.Cols {
		return fmt.Errorf("vector length %d does not match %d columns", len(x), m.Cols)
	}
	if len(dst) != m.Rows {
		return fmt.Errorf("destination length %d does not match %d rows", len(dst), m.Rows)
	}
	for i := 0; i < m.Rows; i++ {
		row := m.Data[i*m.Cols : (i+1)*m.Cols]
		sum := 0.0
		for j, w := range row {
			if w != 0 {
				sum += w * x[j]
			}
		}
		dst[i] = sum
	}
	return nil
}

func (m *Matrix) Scale(factor float64) {
	for i := range m.Data {
		m.Data[i] *= factor
	}
}

// NonZeroCount returns the number of non-zero entries, which the engine
// treats as the active connection count.
func (m *Matrix) NonZeroCount() int {
	count := 0
	for _, v := range m.Data {
		if v != 0 {
			count++
		}
	}
	return count
}

// Bytes returns the allocated size of the backing data in bytes.
func (m *Matrix) Bytes() int {
	return len(m.Data) * 8
}

// MulTransposeSelf computes AᵀA for the receiver (result is Cols x Cols,
// symmetric).
func (m *Matrix) MulTransposeSelf() *Matrix {
	out := &Matrix{Rows: m.Cols, Cols: m.Cols, Data: make([]float64, m.Cols*m.Cols)}
	for t := 0; t < m.Rows; t++ {
		row := m.Data[t*m.Cols : (t+1)*m.Cols]
		for i := 0; i < m.Cols; i++ {
			if row[i] == 0 {
				continue
			}
			for j := i; j < m.Cols; j++ {
				out.Data[i*m.Cols+j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < m.Cols; i++ {
		for j := 0; j < i; j++ {
			out.Data[i*m.Cols+j] = out.Data[j*m.Cols+i]
		}
	}
	return out
}

// MulTranspose computes AᵀB, where A is the receiver and both share row
// count.
func (m *Matrix) MulTranspose(b *Matrix) (*Matrix, error) {
	if m.Rows != b.Rows {
		return nil, fmt.Errorf("row counts differ: %d vs %d", m.Rows, b.Rows)
	}
	out := &Matrix{Rows: m.Cols, Cols: b.Cols, Data: make([]float64, m.Cols*b.Cols)}
	for t := 0; t < m.Rows; t++ {
		aRow := m.Data[t*m.Cols : (t+1)*m.Cols]
		bRow := b.Data[t*b.Cols : (t+1)*b.Cols]
		for i, av := range aRow {
			if av == 0 {
				continue
			}
			for j, bv := range bRow {
				out.Data[i*b.Cols+j] += av * bv
			}
		}
	}
	return out, nil
}

// ToRows copies the matrix out as a slice of row slices, the shape used by
// persistence records.
func (m *Matrix) ToRows() [][]float64 {
	out := make([][]float64, m.Rows)
	for i := 0; i < m.Rows; i++ {
		row := make([]float64, m.Cols)
		copy(row, m.Data[i*m.Cols:(i+1)*m.Cols])
		out[i] = row
	}
	return out
}

// FromRows builds a matrix from a slice of equal-length rows.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("rows must not be empty")
	}
	cols := len(rows[0])
	m := &Matrix{Rows: len(rows), Cols: cols, Data: make([]float64, len(rows)*cols)}
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		copy(m.Data[i*cols:(i+1)*cols], row)
	}
	return m, nil
}
