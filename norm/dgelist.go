package norm

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DGEList holds a genes × samples count matrix with its library sizes and
// normalisation factors.
type DGEList struct {
	Genes       []string
	Counts      *mat.Dense
	LibSizes    []float64
	NormFactors []float64
}

// NewDGEList computes library sizes from the column sums of counts and sets
// every normalisation factor to 1.
func NewDGEList(genes []string, counts *mat.Dense) (*DGEList, error) {
	r, c := counts.Dims()
	if r != len(genes) {
		return nil, fmt.Errorf("%d genes but %d count rows", len(genes), r)
	}

	lib := make([]float64, c)
	for i := 0; i < r; i++ {
		for j, v := range counts.RawRowView(i) {
			lib[j] += v
		}
	}

	return &DGEList{
		Genes:       append([]string(nil), genes...),
		Counts:      counts,
		LibSizes:    lib,
		NormFactors: ones(c),
	}, nil
}

func (d *DGEList) NGenes() int   { return len(d.Genes) }
func (d *DGEList) NSamples() int { return len(d.LibSizes) }

// Row returns the counts of gene i. The slice aliases the count matrix.
func (d *DGEList) Row(i int) []float64 { return d.Counts.RawRowView(i) }

// libraries returns one count vector per sample.
func (d *DGEList) libraries() [][]float64 {
	out := make([][]float64, d.NSamples())
	for j := range out {
		out[j] = mat.Col(nil, j, d.Counts)
	}

	return out
}

// CalcNormFactors sets NormFactors with the TMM method.
func (d *DGEList) CalcNormFactors(opts TMMOptions) error {
	f, err := TMM(d.libraries(), opts)
	if err != nil {
		return err
	}
	d.NormFactors = f

	return nil
}

// EffectiveLibSizes returns library sizes multiplied by their factors.
func (d *DGEList) EffectiveLibSizes() []float64 {
	out := make([]float64, d.NSamples())
	for j := range out {
		out[j] = d.LibSizes[j] * d.NormFactors[j]
	}

	return out
}

// Offsets returns the natural log of the effective library sizes, used as
// the GLM offset.
func (d *DGEList) Offsets() []float64 {
	out := d.EffectiveLibSizes()
	for j, v := range out {
		out[j] = math.Log(v)
	}

	return out
}

// ScaledPriorCounts spreads priorCount over the libraries in proportion to
// their effective sizes, so larger libraries receive larger pseudo-counts.
func (d *DGEList) ScaledPriorCounts(priorCount float64) []float64 {
	lib := d.EffectiveLibSizes()

	var mean float64
	for _, v := range lib {
		mean += v
	}
	mean /= float64(len(lib))

	out := make([]float64, len(lib))
	for j, v := range lib {
		out[j] = priorCount * v / mean
	}

	return out
}

// AveLogCPM returns the average log2 counts-per-million of every gene, with
// priorCount added to avoid taking the log of zero.
func (d *DGEList) AveLogCPM(priorCount float64) []float64 {
	lib := d.EffectiveLibSizes()
	prior := d.ScaledPriorCounts(priorCount)

	var adjLib float64
	for j := range lib {
		adjLib += lib[j] + 2*prior[j]
	}

	out := make([]float64, d.NGenes())
	for i := range out {
		var sum float64
		for j, v := range d.Row(i) {
			sum += v + prior[j]
		}
		out[i] = math.Log2(sum / adjLib * 1e6)
	}

	return out
}

// Subset returns a DGEList holding only the listed genes. Library sizes and
// factors are carried over unchanged.
func (d *DGEList) Subset(genes []int) *DGEList {
	_, c := d.Counts.Dims()
	out := &DGEList{
		Genes:       make([]string, len(genes)),
		LibSizes:    append([]float64(nil), d.LibSizes...),
		NormFactors: append([]float64(nil), d.NormFactors...),
	}

	data := make([]float64, 0, len(genes)*c)
	for k, i := range genes {
		out.Genes[k] = d.Genes[i]
		data = append(data, d.Row(i)...)
	}
	if len(genes) > 0 {
		out.Counts = mat.NewDense(len(genes), c, data)
	} else {
		out.Counts = &mat.Dense{}
	}

	return out
}

// NonZeroGenes returns the rows with at least one non-zero count.
func (d *DGEList) NonZeroGenes() []int {
	keep := make([]int, 0, d.NGenes())
	for i := 0; i < d.NGenes(); i++ {
		for _, v := range d.Row(i) {
			if v > 0 {
				keep = append(keep, i)
				break
			}
		}
	}

	return keep
}

// FilterOptions are the thresholds of FilterByExpr.
type FilterOptions struct {
	MinCount      float64
	MinTotalCount float64
	LargeN        float64
	MinProp       float64
}

var DefaultFilterOptions = FilterOptions{
	MinCount:      10,
	MinTotalCount: 15,
	LargeN:        10,
	MinProp:       0.7,
}

// FilterByExpr returns the genes with worthwhile counts: a CPM equivalent to
// MinCount reads in the median library in at least as many samples as the
// smallest group, and at least MinTotalCount reads overall. groupSizes are
// the number of samples in each design group.
func (d *DGEList) FilterByExpr(groupSizes []int, opts FilterOptions) []int {
	minSampleSize := math.Inf(1)
	for _, n := range groupSizes {
		if n > 0 && float64(n) < minSampleSize {
			minSampleSize = float64(n)
		}
	}
	if math.IsInf(minSampleSize, 1) {
		minSampleSize = float64(d.NSamples())
	}
	if minSampleSize > opts.LargeN {
		minSampleSize = opts.LargeN + (minSampleSize-opts.LargeN)*opts.MinProp
	}

	lib := append([]float64(nil), d.LibSizes...)
	sort.Float64s(lib)
	var median float64
	if n := len(lib); n%2 == 1 {
		median = lib[n/2]
	} else {
		median = (lib[n/2-1] + lib[n/2]) / 2
	}
	cpmCutoff := opts.MinCount / median * 1e6

	const tol = 1e-14
	keep := make([]int, 0, d.NGenes())
	for i := 0; i < d.NGenes(); i++ {
		var total, above float64
		for j, v := range d.Row(i) {
			total += v
			if v/d.LibSizes[j]*1e6 >= cpmCutoff {
				above++
			}
		}
		if above >= minSampleSize-tol && total >= opts.MinTotalCount-tol {
			keep = append(keep, i)
		}
	}

	return keep
}
