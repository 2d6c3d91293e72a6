package glm

import (
	"errors"
	"fmt"
	"math"

	"github.com/carbocation/tissuedge/design"
	"gonum.org/v1/gonum/mat"
)

const (
	// minMu bounds fitted means away from zero so that logs stay finite.
	minMu = 1e-10

	// minWeight floors IRLS working weights in the Cox-Reid determinant.
	minWeight = 1e-10

	maxIter = 50
	tol     = 1e-10
)

// unitDeviance is the negative binomial deviance contribution of one
// observation with count y, mean mu and dispersion phi.
func unitDeviance(y, mu, phi float64) float64 {
	mu = math.Max(mu, minMu)

	if phi < 1e-12 {
		// Poisson limit
		if y == 0 {
			return 2 * mu
		}
		return 2 * (y*math.Log(y/mu) - (y - mu))
	}

	if y == 0 {
		return 2 / phi * math.Log1p(phi*mu)
	}

	return 2 * (y*math.Log(y/mu) - (y+1/phi)*math.Log((1+phi*y)/(1+phi*mu)))
}

// deviance sums unitDeviance over one gene.
func deviance(y, mu []float64, phi float64) float64 {
	var d float64
	for j := range y {
		d += unitDeviance(y[j], mu[j], phi)
	}

	return d
}

// logLik is the negative binomial log-likelihood of one gene.
func logLik(y, mu []float64, phi float64) float64 {
	var ll float64
	for j := range y {
		m := math.Max(mu[j], minMu)
		if phi < 1e-12 {
			lg, _ := math.Lgamma(y[j] + 1)
			ll += y[j]*math.Log(m) - m - lg
			continue
		}

		r := 1 / phi
		a, _ := math.Lgamma(y[j] + r)
		b, _ := math.Lgamma(r)
		c, _ := math.Lgamma(y[j] + 1)
		ll += a - b - c + r*math.Log(r/(r+m)) + y[j]*math.Log(m/(r+m))
	}

	return ll
}

// coxReid is the Cox-Reid adjustment -0.5 log det(XᵀWX) with NB working
// weights W = mu/(1+phi mu).
func coxReid(x *design.ModelMatrix, mu []float64, phi float64) float64 {
	n, p := x.Dims()
	info := mat.NewSymDense(p, nil)
	for i := 0; i < n; i++ {
		w := math.Max(mu[i]/(1+phi*mu[i]), minWeight)
		row := x.RawRowView(i)
		for a := 0; a < p; a++ {
			if row[a] == 0 {
				continue
			}
			for b := a; b < p; b++ {
				info.SetSym(a, b, info.At(a, b)+w*row[a]*row[b])
			}
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(info) {
		// Singular information: fall back to the product of the diagonal,
		// floored, which is exact for orthogonal designs.
		var ld float64
		for a := 0; a < p; a++ {
			ld += math.Log(math.Max(info.At(a, a), minWeight))
		}
		return -0.5 * ld
	}

	return -0.5 * chol.LogDet()
}

// adjustedProfileLik is the Cox-Reid adjusted profile log-likelihood of one
// gene at dispersion phi given its fitted means.
func adjustedProfileLik(x *design.ModelMatrix, y, mu []float64, phi float64) float64 {
	return logLik(y, mu, phi) + coxReid(x, mu, phi)
}

// geneFit is the maximum-likelihood fit of one gene.
type geneFit struct {
	Beta     []float64
	Mu       []float64
	Deviance float64
}

// fitGene fits a log-link NB GLM to counts y with the given offsets and
// dispersion. One-way layouts are solved group by group; other designs use
// IRLS with step halving.
func fitGene(x *design.ModelMatrix, y, offset []float64, phi float64) (geneFit, error) {
	if groups, oneWay := x.Groups(); oneWay {
		return fitOneWay(groups, x.NCoef(), y, offset, phi), nil
	}

	return fitIRLS(x, y, offset, phi)
}

// fitOneWay solves the score equation of every group exactly. A group whose
// counts are all zero gets a coefficient of -Inf and fitted means of zero.
func fitOneWay(groups []int, ncoef int, y, offset []float64, phi float64) geneFit {
	beta := make([]float64, ncoef)
	members := make([][]int, ncoef)
	for i, g := range groups {
		members[g] = append(members[g], i)
	}

	for g, idx := range members {
		var sumY, sumLib float64
		for _, i := range idx {
			sumY += y[i]
			sumLib += math.Exp(offset[i])
		}
		if sumY == 0 {
			beta[g] = math.Inf(-1)
			continue
		}

		// Poisson solution is the starting point.
		b := math.Log(sumY / sumLib)
		for iter := 0; iter < maxIter; iter++ {
			var score, info float64
			for _, i := range idx {
				mu := math.Exp(b + offset[i])
				denom := 1 + phi*mu
				score += (y[i] - mu) / denom
				info += mu / denom
			}
			step := score / info
			b += step
			if math.Abs(step) < tol {
				break
			}
		}
		beta[g] = b
	}

	mu := make([]float64, len(y))
	for i, g := range groups {
		mu[i] = math.Exp(beta[g] + offset[i])
	}

	return geneFit{Beta: beta, Mu: mu, Deviance: deviance(y, mu, phi)}
}

// fitIRLS fits an arbitrary full-rank design by iteratively reweighted least
// squares, halving the step whenever the deviance increases.
func fitIRLS(x *design.ModelMatrix, y, offset []float64, phi float64) (geneFit, error) {
	n, p := x.Dims()

	// Start from least squares on the log scale.
	z := make([]float64, n)
	w := make([]float64, n)
	for i := range z {
		z[i] = math.Log(y[i]+0.5) - offset[i]
		w[i] = 1
	}
	beta, err := weightedLeastSquares(x, z, w)
	if err != nil {
		return geneFit{}, err
	}

	eta := make([]float64, n)
	mu := make([]float64, n)
	predict := func(b []float64) {
		for i := 0; i < n; i++ {
			row := x.RawRowView(i)
			var e float64
			for k := 0; k < p; k++ {
				e += row[k] * b[k]
			}
			eta[i] = e + offset[i]
			mu[i] = math.Max(math.Exp(eta[i]), minMu)
		}
	}
	predict(beta)
	dev := deviance(y, mu, phi)

	for iter := 0; iter < maxIter; iter++ {
		for i := 0; i < n; i++ {
			w[i] = mu[i] / (1 + phi*mu[i])
			z[i] = eta[i] - offset[i] + (y[i]-mu[i])/mu[i]
		}

		next, err := weightedLeastSquares(x, z, w)
		if err != nil {
			return geneFit{}, err
		}

		step := make([]float64, p)
		for k := range step {
			step[k] = next[k] - beta[k]
		}

		var newDev float64
		trial := make([]float64, p)
		for halving := 0; ; halving++ {
			for k := range trial {
				trial[k] = beta[k] + step[k]
			}
			predict(trial)
			newDev = deviance(y, mu, phi)
			if newDev <= dev || halving >= 30 {
				break
			}
			for k := range step {
				step[k] /= 2
			}
		}

		copy(beta, trial)
		var largest float64
		for _, s := range step {
			largest = math.Max(largest, math.Abs(s))
		}
		converged := largest < 1e-8 || math.Abs(dev-newDev) < 1e-12*(math.Abs(newDev)+0.1)
		dev = newDev
		if converged {
			break
		}
	}

	return geneFit{Beta: beta, Mu: append([]float64(nil), mu...), Deviance: dev}, nil
}

// weightedLeastSquares solves (XᵀWX) b = XᵀWz.
func weightedLeastSquares(x *design.ModelMatrix, z, w []float64) ([]float64, error) {
	n, p := x.Dims()
	xtwx := mat.NewSymDense(p, nil)
	xtwz := mat.NewVecDense(p, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for a := 0; a < p; a++ {
			if row[a] == 0 {
				continue
			}
			xtwz.SetVec(a, xtwz.AtVec(a)+w[i]*row[a]*z[i])
			for b := a; b < p; b++ {
				xtwx.SetSym(a, b, xtwx.At(a, b)+w[i]*row[a]*row[b])
			}
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(xtwx) {
		// Ridge the diagonal slightly and retry once.
		for a := 0; a < p; a++ {
			xtwx.SetSym(a, a, xtwx.At(a, a)+1e-8)
		}
		if !chol.Factorize(xtwx) {
			return nil, fmt.Errorf("weighted least squares: information matrix is not positive definite")
		}
	}

	var b mat.VecDense
	if err := chol.SolveVecTo(&b, xtwz); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}

	return b.RawVector().Data, nil
}
