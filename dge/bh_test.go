package dge

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestAdjustBH(t *testing.T) {
	// Reference values from R: p.adjust(p, "BH")
	p := []float64{0.01, 0.04, 0.03, 0.005, 0.5, 0.2}
	expected := []float64{0.03, 0.06, 0.06, 0.03, 0.5, 0.24}

	got := AdjustBH(p)
	for i := range expected {
		if !scalar.EqualWithinAbsOrRel(got[i], expected[i], 1e-12, 1e-12) {
			t.Fatalf("index %d: got %v, expected %v (all: %v)", i, got[i], expected[i], got)
		}
	}
}

func TestAdjustBHProperties(t *testing.T) {
	p := []float64{0.9, 0.001, 0.3, 0.3, 0.02, 1, 0.0004, 0.07, 0.6, 0.011}
	q := AdjustBH(p)

	for i := range p {
		if q[i] < p[i] {
			t.Fatalf("index %d: adjusted %v below raw %v", i, q[i], p[i])
		}
		if q[i] > 1 {
			t.Fatalf("index %d: adjusted %v above 1", i, q[i])
		}
		for j := range p {
			if p[i] < p[j] && q[i] > q[j] {
				t.Fatalf("adjustment not monotone: p %v -> %v but p %v -> %v", p[i], q[i], p[j], q[j])
			}
		}
	}

	if q[2] != q[3] {
		t.Fatalf("tied p-values adjusted differently: %v, %v", q[2], q[3])
	}
}

func TestAdjustBHNaN(t *testing.T) {
	q := AdjustBH([]float64{0.01, math.NaN(), 0.02})
	if !math.IsNaN(q[1]) {
		t.Fatalf("NaN p-value adjusted to %v", q[1])
	}
	if !scalar.EqualWithinAbsOrRel(q[0], 0.02, 1e-12, 1e-12) || !scalar.EqualWithinAbsOrRel(q[2], 0.02, 1e-12, 1e-12) {
		t.Fatalf("NaN counted as a test: %v", q)
	}
}
