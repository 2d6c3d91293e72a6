package glm

import (
	"math"
)

// trigamma is the second derivative of log Γ(x) for x > 0.
func trigamma(x float64) float64 {
	var acc float64
	for x < 6 {
		acc += 1 / (x * x)
		x++
	}

	x2 := 1 / (x * x)
	return acc + 1/x + x2/2 +
		x2/x*(1.0/6-x2*(1.0/30-x2*(1.0/42-x2/30)))
}

// tetragamma is the third derivative of log Γ(x) for x > 0.
func tetragamma(x float64) float64 {
	var acc float64
	for x < 6 {
		acc -= 2 / (x * x * x)
		x++
	}

	x2 := 1 / (x * x)
	x4 := x2 * x2
	return acc - x2 - x2/x - x4/2 + x4*x2/6 - x4*x4/6 + 3*x4*x4*x2/10
}

// trigammaInverse solves trigamma(x) = y by Newton iteration.
func trigammaInverse(y float64) float64 {
	switch {
	case math.IsNaN(y):
		return math.NaN()
	case y > 1e7:
		return 1 / math.Sqrt(y)
	case y < 1e-6:
		return 1 / y
	}

	x := 0.5 + 1/y
	for iter := 0; iter < 50; iter++ {
		tri := trigamma(x)
		dif := tri * (1 - tri/y) / tetragamma(x)
		x += dif
		if -dif/x < 1e-8 {
			break
		}
	}

	return x
}
