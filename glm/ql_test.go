package glm

import (
	"fmt"
	"math"
	"testing"

	"github.com/carbocation/tissuedge/dataset"
	"github.com/carbocation/tissuedge/norm"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestFSurvival(t *testing.T) {
	for _, v := range []struct {
		F, D1, D2 float64
	}{
		{3.2, 1, 10},
		{0.4, 1, 4.5},
		{12, 2, 30},
		{1, 1, 1000},
	} {
		expected := 1 - distuv.F{D1: v.D1, D2: v.D2}.CDF(v.F)
		if got := fSurvival(v.F, v.D1, v.D2); !scalar.EqualWithinAbsOrRel(got, expected, 1e-9, 1e-7) {
			t.Fatalf("%+v: got %v, expected %v", v, got, expected)
		}
	}

	chi := distuv.ChiSquared{K: 1}
	if got, expected := fSurvival(2.5, 1, math.Inf(1)), chi.Survival(2.5); !scalar.EqualWithinAbsOrRel(got, expected, 1e-10, 1e-10) {
		t.Fatalf("infinite denominator df: got %v, expected %v", got, expected)
	}

	if p := fSurvival(0, 1, 5); p != 1 {
		t.Fatalf("F of zero should give p of 1, got %v", p)
	}

	// Far in the tail the p-value stays positive instead of rounding to 0.
	if p := fSurvival(500, 1, 20); p <= 0 || p > 1e-10 {
		t.Fatalf("tail p-value out of range: %v", p)
	}
}

func TestMaximizeInterpolant(t *testing.T) {
	pts, _ := gridPoints()
	y := make([]float64, len(pts))
	for k, x := range pts {
		y[k] = -(x - 1.3) * (x - 1.3)
	}

	if got := maximizeInterpolant(pts, y); !scalar.EqualWithinAbsOrRel(got, 1.3, 1e-12, 1e-12) {
		t.Fatalf("parabola peak: got %v, expected 1.3", got)
	}

	for k := range y {
		y[k] = pts[k]
	}
	if got := maximizeInterpolant(pts, y); got != gridMax {
		t.Fatalf("increasing curve should peak at the boundary, got %v", got)
	}
}

func TestMovingAverage(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}, {5}}
	got := movingAverage(rows, 3)
	expected := []float64{1.5, 2, 3, 4, 4.5}
	for i := range expected {
		if !scalar.EqualWithinAbsOrRel(got[i][0], expected[i], 1e-12, 1e-12) {
			t.Fatalf("row %d: got %v, expected %v", i, got[i][0], expected[i])
		}
	}
}

func TestFitFDistConstantVariance(t *testing.T) {
	// Identical variances carry no between-gene spread, so the prior df is
	// infinite and the prior equals the common value.
	x := []float64{0.2, 0.2, 0.2, 0.2, 0.2}
	df := []float64{4, 4, 4, 4, 4}

	scale, df2, err := fitFDist(x, df, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(df2, 1) {
		t.Fatalf("expected infinite prior df, got %v", df2)
	}
	for _, s := range scale {
		if !scalar.EqualWithinAbsOrRel(s, 0.2, 1e-12, 1e-12) {
			t.Fatalf("expected prior 0.2, got %v", s)
		}
	}
}

func TestSqueezeVarShrinks(t *testing.T) {
	s2 := []float64{0.05, 0.4, 1.2, 0.3, 3.5, 0.15, 0.8, 0.22, 2.1, 0.6, 0.09, 1.7}
	df := make([]float64, len(s2))
	for i := range df {
		df[i] = 4
	}

	post, prior, dfPrior, err := squeezeVar(s2, df, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dfPrior <= 0 {
		t.Fatalf("expected a positive prior df, got %v", dfPrior)
	}

	for i := range s2 {
		lo, hi := math.Min(s2[i], prior[i]), math.Max(s2[i], prior[i])
		if post[i] < lo-1e-12 || post[i] > hi+1e-12 {
			t.Fatalf("gene %d: posterior %v outside [%v, %v]", i, post[i], lo, hi)
		}
	}
}

// twoGroupDGE builds counts for samples A1..A3 and B1..B3. Gene "up" has 400
// reads in A and 1600 in B, gene "down" the reverse, and every other gene
// 1000 reads everywhere, so library sizes are identical.
func twoGroupDGE(t *testing.T, nulls int) (*norm.DGEList, []string) {
	t.Helper()

	genes := []string{"up", "down"}
	data := []float64{
		400, 400, 400, 1600, 1600, 1600,
		1600, 1600, 1600, 400, 400, 400,
	}
	for i := 0; i < nulls; i++ {
		genes = append(genes, fmt.Sprintf("null%02d", i))
		data = append(data, 1000, 1000, 1000, 1000, 1000, 1000)
	}

	d, err := norm.NewDGEList(genes, mat.NewDense(len(genes), 6, data))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.CalcNormFactors(norm.DefaultTMMOptions); err != nil {
		t.Fatal(err)
	}

	return d, []string{"A", "A", "A", "B", "B", "B"}
}

func TestQLFTestFourFold(t *testing.T) {
	d, values := twoGroupDGE(t, 50)
	for j, f := range d.NormFactors {
		if !scalar.EqualWithinAbsOrRel(f, 1, 1e-12, 1e-12) {
			t.Fatalf("sample %d: norm factor %v, expected 1", j, f)
		}
	}

	x := oneWayDesign(t, values)
	ave := d.AveLogCPM(aveLogCPMPrior)
	disp, err := EstimateDisp(d, x, ave, DefaultOptions.PriorDF)
	if err != nil {
		t.Fatal(err)
	}
	fit, err := NewQLFit(d, x, disp, ave, DefaultOptions.PriorCount, true)
	if err != nil {
		t.Fatal(err)
	}

	// A - B would be reversed; B - A is the target over the reference.
	res, err := QLFTest(fit, []float64{-1, 1})
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(res.LogFC[0]-2) > 1e-2 {
		t.Fatalf("up: logFC %v, expected 2", res.LogFC[0])
	}
	if math.Abs(res.LogFC[1]+2) > 1e-2 {
		t.Fatalf("down: logFC %v, expected -2", res.LogFC[1])
	}
	if res.PValue[0] > 1e-6 || res.PValue[1] > 1e-6 {
		t.Fatalf("fold changes not significant: p = %v, %v", res.PValue[0], res.PValue[1])
	}

	for i := 2; i < len(res.Genes); i++ {
		if math.Abs(res.LogFC[i]) > 1e-9 {
			t.Fatalf("%s: logFC %v, expected 0", res.Genes[i], res.LogFC[i])
		}
		if res.PValue[i] < 0.5 {
			t.Fatalf("%s: p-value %v for an unchanged gene", res.Genes[i], res.PValue[i])
		}
	}

	for i, p := range res.PValue {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("%s: p-value %v out of range", res.Genes[i], p)
		}
	}
}

func TestQLFTestRejectsBadContrast(t *testing.T) {
	d, values := twoGroupDGE(t, 10)
	x := oneWayDesign(t, values)
	ave := d.AveLogCPM(aveLogCPMPrior)
	disp, err := EstimateDisp(d, x, ave, 10)
	if err != nil {
		t.Fatal(err)
	}
	fit, err := NewQLFit(d, x, disp, ave, 0.125, false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := QLFTest(fit, []float64{1, -1, 0}); err == nil {
		t.Fatalf("expected an error for a contrast of the wrong length")
	}
	if _, err := QLFTest(fit, []float64{0, 0}); err == nil {
		t.Fatalf("expected an error for an all-zero contrast")
	}
}

func TestEstimateDispNoResidualDF(t *testing.T) {
	d, err := norm.NewDGEList([]string{"g"}, mat.NewDense(1, 2, []float64{5, 9}))
	if err != nil {
		t.Fatal(err)
	}
	x := oneWayDesign(t, []string{"A", "B"})

	if _, err := EstimateDisp(d, x, d.AveLogCPM(2), 10); err != ErrNoResidualDF {
		t.Fatalf("expected ErrNoResidualDF, got %v", err)
	}
}

// syntheticStratum builds a stratum with overdispersed but deterministic
// counts over three tissue subtypes.
func syntheticStratum(tumorType string, ngenes int, shift float64) *dataset.Stratum {
	subs := []string{"Normal", "Normal", "Normal", "Normal", "Tumor", "Tumor", "Tumor", "Tumor", "Met", "Met", "Met"}

	samples := make([]dataset.Sample, len(subs))
	for j, s := range subs {
		samples[j] = dataset.Sample{ID: fmt.Sprintf("%s-%d", tumorType, j), TumorType: tumorType, TissueSub: s}
	}

	genes := make([]string, ngenes)
	counts := mat.NewDense(ngenes, len(subs), nil)
	for i := range genes {
		genes[i] = fmt.Sprintf("gene%03d", i)
		base := 20 + float64((i*53)%400)
		for j, s := range subs {
			wobble := 1 + 0.3*math.Sin(float64(i*7+j*13))
			level := base * wobble
			if s == "Tumor" && i%5 == 0 {
				level *= 3 + shift
			}
			counts.Set(i, j, math.Round(level))
		}
	}

	return &dataset.Stratum{
		TumorType: tumorType,
		Dataset: &dataset.Dataset{
			Genes:           genes,
			Samples:         samples,
			Counts:          counts,
			LogCounts:       mat.DenseCopyOf(counts),
			TissueSubLevels: []string{"Met", "Normal", "Tumor", "Unused"},
		},
	}
}

func TestFitModelsWorkerInvariance(t *testing.T) {
	strata := []*dataset.Stratum{
		syntheticStratum("BRCA", 60, 0),
		syntheticStratum("LUAD", 60, 1),
		syntheticStratum("COAD", 60, 2),
	}
	refs := map[string]string{"BRCA": "Normal", "LUAD": "Normal", "COAD": "Normal"}

	serial, err := FitModels(strata, refs, DefaultOptions, 1)
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := FitModels(strata, refs, DefaultOptions, 4)
	if err != nil {
		t.Fatal(err)
	}

	for i, tumor := range serial.TumorTypes {
		if parallel.TumorTypes[i] != tumor {
			t.Fatalf("tumor type order differs: %v vs %v", serial.TumorTypes, parallel.TumorTypes)
		}

		a, _ := serial.Fit(tumor)
		b, _ := parallel.Fit(tumor)
		if !mat.Equal(a.Coefficients, b.Coefficients) {
			t.Fatalf("%s: coefficients differ between 1 and 4 workers", tumor)
		}
		for g := range a.S2Post {
			if a.S2Post[g] != b.S2Post[g] {
				t.Fatalf("%s: posterior quasi-dispersion differs for gene %d", tumor, g)
			}
		}

		cols, ok := serial.Columns(tumor)
		if !ok {
			t.Fatalf("%s: no columns", tumor)
		}
		if len(cols) != 3 || cols[0] != "Normal" {
			t.Fatalf("%s: columns %v, expected Normal first and the unused level dropped", tumor, cols)
		}
	}
}

func TestFitModelsReferenceAbsent(t *testing.T) {
	strata := []*dataset.Stratum{syntheticStratum("BRCA", 20, 0)}

	_, err := FitModels(strata, map[string]string{"BRCA": "Unused"}, DefaultOptions, 1)
	if err == nil {
		t.Fatalf("expected an error for a reference level with no samples")
	}

	if _, err := FitModels(strata, map[string]string{}, DefaultOptions, 1); err == nil {
		t.Fatalf("expected an error for a tumor type without a reference")
	}
}
