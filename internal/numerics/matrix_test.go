package numerics

import (
	"math"
	"testing"
)

func TestFromRowsRoundTrip(t *testing.T) {
	rows := [][]float64{{1, 2, 3}, {4, 5, 6}}
	m, err := FromRows(rows)
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	if m.Rows != 2 || m.Cols != 3 {
		t.Fatalf("unexpected shape: %dx%d", m.Rows, m.Cols)
	}
	back := m.ToRows()
	for i := range rows {
		for j := range rows[i] {
			if back[i][j] != rows[i][j] {
				t.Fatalf("entry (%d,%d): got %f, want %f", i, j, back[i][j], rows[i][j])
			}
		}
	}
}

func TestFromRowsRejectsRagged(t *testing.T) {
	if _, err := FromRows([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatal("expected error for ragged rows")
	}
	if _, err := FromRows(nil); err == nil {
		t.Fatal("expected error for empty rows")
	}
}

func TestMulVec(t *testing.T) {
	m, _ := FromRows([][]float64{{1, 2}, {3, 4}, {0, -1}})
	dst := make([]float64, 3)
	if err := m.MulVec([]float64{2, 1}, dst); err != nil {
		t.Fatalf("mulvec: %v", err)
	}
	want := []float64{4, 10, -1}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("entry %d: got %f, want %f", i, dst[i], want[i])
		}
	}
	if err := m.MulVec([]float64{1}, dst); err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m, _ := FromRows([][]float64{{1, 2}, {3, 4}})
	c := m.Clone()
	c.Set(0, 0, 99)
	if m.At(0, 0) != 1 {
		t.Fatalf("clone mutation leaked into source: %f", m.At(0, 0))
	}
}

func TestNonZeroCountAndBytes(t *testing.T) {
	m, _ := FromRows([][]float64{{0, 2}, {3, 0}})
	if got := m.NonZeroCount(); got != 2 {
		t.Fatalf("non-zero count: got %d, want 2", got)
	}
	if got := m.Bytes(); got != 32 {
		t.Fatalf("bytes: got %d, want 32", got)
	}
}

func TestMulTransposeSelf(t *testing.T) {
	m, _ := FromRows([][]float64{{1, 2}, {3, 4}})
	g := m.MulTransposeSelf()
	// AᵀA = [[10, 14], [14, 20]]
	want := [][]float64{{10, 14}, {14, 20}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(g.At(i, j)-want[i][j]) > 1e-12 {
				t.Fatalf("entry (%d,%d): got %f, want %f", i, j, g.At(i, j), want[i][j])
			}
		}
	}
}

func TestMulTranspose(t *testing.T) {
	a, _ := FromRows([][]float64{{1, 2}, {3, 4}})
	b, _ := FromRows([][]float64{{5}, {6}})
	out, err := a.MulTranspose(b)
	if err != nil {
		t.Fatalf("multranspose: %v", err)
	}
	// AᵀB = [[23], [34]]
	if out.At(0, 0) != 23 || out.At(1, 0) != 34 {
		t.Fatalf("unexpected result: %v", out.Data)
	}

	c, _ := FromRows([][]float64{{1}})
	if _, err := a.MulTranspose(c); err == nil {
		t.Fatal("expected row mismatch error")
	}
}
