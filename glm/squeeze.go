package glm

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/sajari/regression"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
)

// fitFDist fits a scaled F distribution to variances x with df1 degrees of
// freedom by the method of moments on the log scale. When covariate is
// non-nil the scale follows a polynomial trend in the covariate. The
// returned scale has one entry per element of x.
func fitFDist(x, df1, covariate []float64) ([]float64, float64, error) {
	n := len(x)
	scale := make([]float64, n)

	ok := make([]int, 0, n)
	for i := range x {
		if !math.IsInf(df1[i], 0) && df1[i] > 1e-15 && !math.IsNaN(x[i]) && x[i] > -1e-15 {
			ok = append(ok, i)
		}
	}

	switch len(ok) {
	case 0:
		return nil, 0, fmt.Errorf("no variances with positive residual degrees of freedom")
	case 1:
		for i := range scale {
			scale[i] = math.Max(x[ok[0]], 0)
		}
		return scale, 0, nil
	}

	vals := make([]float64, len(ok))
	for k, i := range ok {
		vals[k] = math.Max(x[i], 0)
	}
	m, err := stats.Median(vals)
	if err != nil {
		return nil, 0, err
	}
	if m == 0 {
		m = 1
	}

	e := make([]float64, len(ok))
	var meanTri float64
	for k, i := range ok {
		v := math.Max(vals[k], 1e-5*m)
		vals[k] = v
		e[k] = math.Log(v) - mathext.Digamma(df1[i]/2) + math.Log(df1[i]/2)
		meanTri += trigamma(df1[i] / 2)
	}
	meanTri /= float64(len(ok))

	var emean []float64
	var evar float64
	trended := false
	if covariate != nil {
		cov := make([]float64, len(ok))
		for k, i := range ok {
			cov[k] = covariate[i]
		}
		pred, v, fitted, err := abundanceTrend(cov, e, covariate)
		if err != nil {
			return nil, 0, err
		}
		if fitted {
			emean, evar, trended = pred, v, true
		}
	}
	if !trended {
		mu, v := stat.MeanVariance(e, nil)
		emean = make([]float64, n)
		for i := range emean {
			emean[i] = mu
		}
		evar = v
	}

	evar -= meanTri

	var df2 float64
	if evar > 0 {
		df2 = 2 * trigammaInverse(evar)
		for i := range scale {
			scale[i] = math.Exp(emean[i] + mathext.Digamma(df2/2) - math.Log(df2/2))
		}
		return scale, df2, nil
	}

	df2 = math.Inf(1)
	if trended {
		for i := range scale {
			scale[i] = math.Exp(emean[i])
		}
	} else {
		mean := stat.Mean(vals, nil)
		for i := range scale {
			scale[i] = mean
		}
	}

	return scale, df2, nil
}

// abundanceTrend regresses e on a polynomial in the standardized covariate.
// The degree grows with the number of observations, up to a cubic. It
// reports false when the covariate cannot support a trend.
func abundanceTrend(cov, e, predictAt []float64) ([]float64, float64, bool, error) {
	n := len(cov)

	degree := 0
	for _, threshold := range []int{3, 6, 30} {
		if n >= threshold {
			degree++
		}
	}
	if u := countUnique(cov); degree > u-1 {
		degree = u - 1
	}
	if degree < 1 {
		return nil, 0, false, nil
	}

	center, sd := stat.MeanStdDev(cov, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil, 0, false, nil
	}
	powers := func(c float64) []float64 {
		z := (c - center) / sd
		out := make([]float64, degree)
		p := 1.0
		for k := range out {
			p *= z
			out[k] = p
		}
		return out
	}

	r := new(regression.Regression)
	r.SetObserved("log variance")
	for k := 0; k < degree; k++ {
		r.SetVar(k, fmt.Sprintf("AveLogCPM^%d", k+1))
	}
	for i := range cov {
		r.Train(regression.DataPoint(e[i], powers(cov[i])))
	}
	if err := r.Run(); err != nil {
		return nil, 0, false, fmt.Errorf("abundance trend: %w", err)
	}

	var rss float64
	for i := range cov {
		p, err := r.Predict(powers(cov[i]))
		if err != nil {
			return nil, 0, false, err
		}
		rss += (e[i] - p) * (e[i] - p)
	}
	resDF := n - degree - 1
	if resDF < 1 {
		return nil, 0, false, nil
	}

	pred := make([]float64, len(predictAt))
	for i, c := range predictAt {
		p, err := r.Predict(powers(c))
		if err != nil {
			return nil, 0, false, err
		}
		pred[i] = p
	}

	return pred, rss / float64(resDF), true, nil
}

func countUnique(x []float64) int {
	seen := make(map[float64]struct{}, len(x))
	for _, v := range x {
		seen[v] = struct{}{}
	}

	return len(seen)
}

// squeezeVar shrinks variances s2 with df degrees of freedom toward the
// fitted prior. It returns the posterior variances, the prior variances and
// the prior degrees of freedom.
func squeezeVar(s2, df, covariate []float64) ([]float64, []float64, float64, error) {
	prior, dfPrior, err := fitFDist(s2, df, covariate)
	if err != nil {
		return nil, nil, 0, err
	}

	post := make([]float64, len(s2))
	for i := range s2 {
		switch {
		case math.IsInf(dfPrior, 1):
			post[i] = prior[i]
		case df[i]+dfPrior == 0:
			post[i] = prior[i]
		default:
			post[i] = (df[i]*s2[i] + dfPrior*prior[i]) / (df[i] + dfPrior)
		}
	}

	return post, prior, dfPrior, nil
}
