package glm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestTrigamma(t *testing.T) {
	for _, v := range []struct {
		X        float64
		Expected float64
	}{
		{1, math.Pi * math.Pi / 6},
		{0.5, math.Pi * math.Pi / 2},
		{2, math.Pi*math.Pi/6 - 1},
		{10, 0.105166335681685},
	} {
		if got := trigamma(v.X); !scalar.EqualWithinAbsOrRel(got, v.Expected, 1e-10, 1e-10) {
			t.Fatalf("trigamma(%v): got %.15f, expected %.15f", v.X, got, v.Expected)
		}
	}
}

func TestTetragamma(t *testing.T) {
	// psi''(1) = -2 zeta(3)
	if got, expected := tetragamma(1), -2.4041138063191885; !scalar.EqualWithinAbsOrRel(got, expected, 1e-10, 1e-10) {
		t.Fatalf("tetragamma(1): got %.15f, expected %.15f", got, expected)
	}

	// Recurrence psi''(x+1) = psi''(x) + 2/x^3
	x := 3.7
	if got, expected := tetragamma(x+1), tetragamma(x)+2/(x*x*x); !scalar.EqualWithinAbsOrRel(got, expected, 1e-12, 1e-12) {
		t.Fatalf("tetragamma recurrence: got %.15f, expected %.15f", got, expected)
	}
}

func TestTrigammaInverse(t *testing.T) {
	for _, x := range []float64{0.05, 0.3, 1, 2.5, 50, 1000} {
		if got := trigammaInverse(trigamma(x)); !scalar.EqualWithinAbsOrRel(got, x, 1e-6, 1e-6) {
			t.Fatalf("trigammaInverse(trigamma(%v)) = %v", x, got)
		}
	}
}
