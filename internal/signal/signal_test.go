package signal

import (
	"math"
	"testing"
)

func TestSine(t *testing.T) {
	s, err := Sine(10, 0.2)
	if err != nil {
		t.Fatalf("Sine: %v", err)
	}
	if s[0] != 0 {
		t.Fatalf("first sample %g, want 0", s[0])
	}
	if got, want := s[5], math.Sin(1.0); got != want {
		t.Fatalf("s[5] = %g, want %g", got, want)
	}
	if _, err := Sine(0, 0.2); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestLogisticChaoticAndBounded(t *testing.T) {
	s, err := Logistic(1000, DefaultLogisticR, DefaultLogisticX0)
	if err != nil {
		t.Fatalf("Logistic: %v", err)
	}
	for i, v := range s {
		if v < 0 || v > 1 {
			t.Fatalf("sample %d = %g escapes [0, 1]", i, v)
		}
	}
	// First iterates: 0.5, 3.9*0.5*0.5 = 0.975, ...
	if math.Abs(s[1]-0.975) > 1e-12 {
		t.Fatalf("s[1] = %g, want 0.975", s[1])
	}
	if _, err := Logistic(10, 3.9, 0); err == nil {
		t.Fatal("expected error for x0 = 0")
	}
}

func TestLogisticDeterministic(t *testing.T) {
	a, _ := Logistic(200, 3.9, 0.5)
	b, _ := Logistic(200, 3.9, 0.5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs across runs", i)
		}
	}
}

func TestMackeyGlass(t *testing.T) {
	s, err := MackeyGlass(2000, DefaultMackeyTau, DefaultMackeyBeta, DefaultMackeyGamma, DefaultMackeyN)
	if err != nil {
		t.Fatalf("MackeyGlass: %v", err)
	}
	lo, hi := s[0], s[0]
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("sample %d not finite", i)
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	// The tau = 17 attractor oscillates roughly between 0.2 and 1.4 and
	// never settles to a fixed point.
	if hi-lo < 0.3 {
		t.Fatalf("series collapsed: range [%g, %g]", lo, hi)
	}
	if lo < 0 || hi > 2 {
		t.Fatalf("series escaped expected band: [%g, %g]", lo, hi)
	}
	if _, err := MackeyGlass(100, 0, 0.2, 0.1, 10); err == nil {
		t.Fatal("expected error for tau = 0")
	}
}

func TestHenon(t *testing.T) {
	s, err := Henon(1000, DefaultHenonA, DefaultHenonB)
	if err != nil {
		t.Fatalf("Henon: %v", err)
	}
	// From the origin: x1 = 1 - 1.4*0 + 0 = 1, then x2 = 1 - 1.4*1 + y1
	// with y1 still 0, so x2 = -0.4.
	if s[1] != 1 {
		t.Fatalf("s[1] = %g, want 1", s[1])
	}
	if math.Abs(s[2]-(-0.4)) > 1e-12 {
		t.Fatalf("s[2] = %g, want -0.4", s[2])
	}
	for i, v := range s {
		if math.Abs(v) > 2 {
			t.Fatalf("sample %d = %g escaped the attractor", i, v)
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"sine", "logistic", "mackey_glass", "henon"} {
		s, err := ByName(name, 50)
		if err != nil {
			t.Fatalf("ByName(%s): %v", name, err)
		}
		if len(s) != 50 {
			t.Fatalf("ByName(%s): got %d samples", name, len(s))
		}
	}
	if _, err := ByName("brownian", 50); err == nil {
		t.Fatal("expected error for unknown name")
	}
}

func TestOneStepPairs(t *testing.T) {
	inputs, targets, err := OneStepPairs([]float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("OneStepPairs: %v", err)
	}
	if len(inputs) != 3 || len(targets) != 3 {
		t.Fatalf("got %d/%d pairs, want 3/3", len(inputs), len(targets))
	}
	if inputs[0][0] != 1 || targets[0][0] != 2 || targets[2][0] != 4 {
		t.Fatalf("pair contents wrong: %v %v", inputs, targets)
	}
	if _, _, err := OneStepPairs([]float64{1}); err == nil {
		t.Fatal("expected error for short series")
	}
}
