package glm

import (
	"fmt"
	"math"

	"github.com/carbocation/tissuedge/design"
	"github.com/carbocation/tissuedge/norm"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

// QLFit is a quasi-likelihood negative binomial fit of every gene of one
// stratum. Coefficients are on the natural log scale.
type QLFit struct {
	TumorType string
	Factor    *design.Factor
	Design    *design.ModelMatrix
	Data      *norm.DGEList

	Dispersion   *Dispersion
	Coefficients *mat.Dense

	// Shrunk holds coefficients refitted after adding a library-scaled
	// prior count, used for fold changes.
	Shrunk     *mat.Dense
	PriorCount float64

	Deviance   []float64
	DFResidual []float64
	AveLogCPM  []float64

	S2      []float64
	S2Prior []float64
	DFPrior float64
	S2Post  []float64
}

func (f *QLFit) Genes() []string   { return f.Data.Genes }
func (f *QLFit) Columns() []string { return f.Design.Columns }

// NewQLFit fits every gene at its trended dispersion and squeezes the
// resulting quasi-dispersions toward a common or abundance-dependent prior.
func NewQLFit(d *norm.DGEList, x *design.ModelMatrix, disp *Dispersion, aveLogCPM []float64, priorCount float64, abundanceTrend bool) (*QLFit, error) {
	ngenes, ncoef := d.NGenes(), x.NCoef()
	offset := d.Offsets()

	out := &QLFit{
		Design:       x,
		Data:         d,
		Dispersion:   disp,
		Coefficients: mat.NewDense(ngenes, ncoef, nil),
		Shrunk:       mat.NewDense(ngenes, ncoef, nil),
		PriorCount:   priorCount,
		Deviance:     make([]float64, ngenes),
		DFResidual:   make([]float64, ngenes),
		AveLogCPM:    aveLogCPM,
		S2:           make([]float64, ngenes),
	}

	prior := d.ScaledPriorCounts(priorCount)
	shrunkOffset := d.EffectiveLibSizes()
	for j := range shrunkOffset {
		shrunkOffset[j] = math.Log(shrunkOffset[j] + 2*prior[j])
	}
	augmented := make([]float64, d.NSamples())

	for i := 0; i < ngenes; i++ {
		y := d.Row(i)
		phi := disp.Trended[i]

		fit, err := fitGene(x, y, offset, phi)
		if err != nil {
			return nil, fmt.Errorf("gene %s: %w", d.Genes[i], err)
		}
		out.Coefficients.SetRow(i, fit.Beta)
		out.Deviance[i] = fit.Deviance
		out.DFResidual[i] = residualDF(x, zeroFit(y, fit.Mu))
		if out.DFResidual[i] > 0 {
			out.S2[i] = math.Max(fit.Deviance/out.DFResidual[i], 0)
		}

		for j := range augmented {
			augmented[j] = y[j] + prior[j]
		}
		shrunk, err := fitGene(x, augmented, shrunkOffset, phi)
		if err != nil {
			return nil, fmt.Errorf("gene %s: %w", d.Genes[i], err)
		}
		out.Shrunk.SetRow(i, shrunk.Beta)
	}

	var covariate []float64
	if abundanceTrend {
		covariate = aveLogCPM
	}
	post, s2Prior, dfPrior, err := squeezeVar(out.S2, out.DFResidual, covariate)
	if err != nil {
		return nil, err
	}
	out.S2Post, out.S2Prior, out.DFPrior = post, s2Prior, dfPrior

	return out, nil
}

// zeroFit marks observations that are zero and fitted as zero. They carry
// no information about dispersion.
func zeroFit(y, mu []float64) []bool {
	out := make([]bool, len(y))
	for j := range y {
		out[j] = y[j] < 1e-4 && mu[j] < 1e-4
	}

	return out
}

// residualDF is the residual degrees of freedom once zero-fitted
// observations, and the coefficients they alone determine, are removed.
func residualDF(x *design.ModelMatrix, zero []bool) float64 {
	n, p := x.Dims()

	nzero := 0
	for _, z := range zero {
		if z {
			nzero++
		}
	}
	if nzero == 0 {
		return float64(n - p)
	}
	if nzero == n {
		return 0
	}

	if groups, oneWay := x.Groups(); oneWay {
		size := make([]int, p)
		live := make([]int, p)
		for i, g := range groups {
			size[g]++
			if !zero[i] {
				live[g]++
			}
		}
		var df int
		for g := range size {
			if live[g] > 0 {
				df += live[g] - 1
			}
		}
		return float64(df)
	}

	rows := make([]float64, 0, (n-nzero)*p)
	for i := 0; i < n; i++ {
		if !zero[i] {
			rows = append(rows, x.RawRowView(i)...)
		}
	}
	sub := mat.NewDense(n-nzero, p, rows)

	var svd mat.SVD
	if !svd.Factorize(sub, mat.SVDNone) {
		return float64(n - nzero - p)
	}

	return float64(n - nzero - svd.Rank(1e-10))
}

// Test is the outcome of a quasi-likelihood F-test for one contrast, one
// entry per gene in fit order.
type Test struct {
	Genes   []string
	LogFC   []float64
	LogCPM  []float64
	F       []float64
	PValue  []float64
	DFTest  []float64
	DFTotal []float64
}

// QLFTest tests whether contrast, a weight vector over the design columns,
// is zero. The design is rotated so that the contrast is its first
// coefficient, the reduced model without it is fitted at the same
// dispersions, and the deviance difference is compared with the posterior
// quasi-dispersion.
func QLFTest(fit *QLFit, contrast []float64) (*Test, error) {
	ncoef := fit.Design.NCoef()
	if len(contrast) != ncoef {
		return nil, fmt.Errorf("contrast has %d weights but the design has %d columns", len(contrast), ncoef)
	}
	var norm2 float64
	for _, c := range contrast {
		norm2 += c * c
	}
	if norm2 == 0 {
		return nil, fmt.Errorf("contrast is all zero")
	}
	if ncoef < 2 {
		return nil, fmt.Errorf("a contrast needs at least two design columns")
	}

	reduced := reducedDesign(fit.Design, contrast)

	d := fit.Data
	offset := d.Offsets()
	ngenes := d.NGenes()
	maxDF := float64(fit.Design.NSamples() - ncoef)

	out := &Test{
		Genes:   d.Genes,
		LogFC:   make([]float64, ngenes),
		LogCPM:  fit.AveLogCPM,
		F:       make([]float64, ngenes),
		PValue:  make([]float64, ngenes),
		DFTest:  make([]float64, ngenes),
		DFTotal: make([]float64, ngenes),
	}

	for i := 0; i < ngenes; i++ {
		y := d.Row(i)
		null, err := fitGene(reduced, y, offset, fit.Dispersion.Trended[i])
		if err != nil {
			return nil, fmt.Errorf("gene %s: %w", d.Genes[i], err)
		}

		dfTest := residualDF(reduced, zeroFit(y, null.Mu)) - fit.DFResidual[i]
		dfTotal := math.Min(fit.DFPrior+fit.DFResidual[i], float64(ngenes)*maxDF)
		out.DFTest[i] = dfTest
		out.DFTotal[i] = dfTotal

		var lfc float64
		for k, c := range contrast {
			lfc += c * fit.Shrunk.At(i, k)
		}
		out.LogFC[i] = lfc / math.Ln2

		if dfTest <= 0 {
			// Both models fit the retained observations equally well.
			out.F[i], out.PValue[i] = 0, 1
			continue
		}

		lr := math.Max(null.Deviance-fit.Deviance[i], 0)
		out.F[i] = lr / dfTest / fit.S2Post[i]
		out.PValue[i] = fSurvival(out.F[i], dfTest, dfTotal)
	}

	return out, nil
}

// reducedDesign returns the design with the contrast direction removed:
// X·Q with its first column dropped, where Q is the orthogonal factor of
// the QR decomposition of the contrast.
func reducedDesign(x *design.ModelMatrix, contrast []float64) *design.ModelMatrix {
	p := len(contrast)

	var qr mat.QR
	qr.Factorize(mat.NewDense(p, 1, append([]float64(nil), contrast...)))
	var q mat.Dense
	qr.QTo(&q)

	var rotated mat.Dense
	rotated.Mul(x.Dense, &q)

	n := x.NSamples()
	reduced := mat.DenseCopyOf(rotated.Slice(0, n, 1, p))
	columns := make([]string, p-1)
	for k := range columns {
		columns[k] = fmt.Sprintf("reduced%d", k+1)
	}

	return design.FromDense(reduced, columns)
}

// fSurvival is P(F > f) for an F distribution with d1 and d2 degrees of
// freedom. d2 may be infinite.
func fSurvival(f, d1, d2 float64) float64 {
	switch {
	case math.IsNaN(f):
		return math.NaN()
	case f <= 0:
		return 1
	case math.IsInf(f, 1):
		return 0
	case math.IsInf(d2, 1):
		return mathext.GammaIncRegComp(d1/2, d1*f/2)
	}

	return mathext.RegIncBeta(d2/2, d1/2, d2/(d2+d1*f))
}
