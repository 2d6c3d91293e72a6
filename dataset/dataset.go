// Package dataset loads a prepared expression dataset (raw counts,
// log-normalised expression and per-sample metadata) and derives the views
// used downstream: exclusion-filtered copies, the long table used for
// plotting, and one stratum per tumor type for modeling.
package dataset

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	ColumnSample    = "sample"
	ColumnTumorType = "TumorType"
	ColumnTissueSub = "TissueSub"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrNoSamples     = errors.New("no samples")
)

// Sample is one observation unit. Meta holds every coldata column other than
// the three required ones.
type Sample struct {
	ID        string
	TumorType string
	TissueSub string
	Meta      map[string]string
}

// Dataset is a genes × samples expression container. Counts and LogCounts
// share row (gene) and column (sample) order.
type Dataset struct {
	Genes       []string
	Samples     []Sample
	MetaColumns []string
	Counts      *mat.Dense
	LogCounts   *mat.Dense

	// TissueSubLevels holds every tissue subtype seen at load time, sorted.
	// Subsets keep this list so that levels left empty by filtering can be
	// recognized and dropped when a design is built.
	TissueSubLevels []string
}

func (d *Dataset) NGenes() int   { return len(d.Genes) }
func (d *Dataset) NSamples() int { return len(d.Samples) }

// GeneIndex returns the row of gene, or -1.
func (d *Dataset) GeneIndex(gene string) int {
	for i, g := range d.Genes {
		if g == gene {
			return i
		}
	}

	return -1
}

func (d *Dataset) validate() error {
	if len(d.Samples) == 0 {
		return ErrNoSamples
	}

	seen := make(map[string]struct{}, len(d.Genes))
	for _, g := range d.Genes {
		if _, exists := seen[g]; exists {
			return fmt.Errorf("duplicate gene symbol %q", g)
		}
		seen[g] = struct{}{}
	}

	r, c := d.Counts.Dims()
	if r != len(d.Genes) || c != len(d.Samples) {
		return fmt.Errorf("counts are %d×%d but there are %d genes and %d samples", r, c, len(d.Genes), len(d.Samples))
	}

	r, c = d.LogCounts.Dims()
	if r != len(d.Genes) || c != len(d.Samples) {
		return fmt.Errorf("logcounts are %d×%d but there are %d genes and %d samples", r, c, len(d.Genes), len(d.Samples))
	}

	for i := 0; i < len(d.Genes); i++ {
		for j, v := range d.Counts.RawRowView(i) {
			if v < 0 {
				return fmt.Errorf("negative count %v for gene %s in sample %s", v, d.Genes[i], d.Samples[j].ID)
			}
		}
	}

	return nil
}

func uniqueSorted(values []string) []string {
	set := make(map[string]struct{})
	for _, v := range values {
		set[v] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)

	return out
}

// TissueSubs returns the tissue subtype label of every sample, in sample
// order.
func (d *Dataset) TissueSubs() []string {
	out := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.TissueSub
	}

	return out
}

// subset returns a new Dataset holding only the given sample columns, in the
// given order. Matrices are copied; the receiver is not modified.
func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		Genes:           append([]string(nil), d.Genes...),
		MetaColumns:     append([]string(nil), d.MetaColumns...),
		Samples:         make([]Sample, 0, len(idx)),
		TissueSubLevels: append([]string(nil), d.TissueSubLevels...),
	}

	for _, j := range idx {
		out.Samples = append(out.Samples, d.Samples[j])
	}

	out.Counts = selectColumns(d.Counts, idx)
	out.LogCounts = selectColumns(d.LogCounts, idx)

	return out
}

func selectColumns(m *mat.Dense, idx []int) *mat.Dense {
	r, _ := m.Dims()
	if r == 0 || len(idx) == 0 {
		return &mat.Dense{}
	}

	out := mat.NewDense(r, len(idx), nil)
	for i := 0; i < r; i++ {
		src := m.RawRowView(i)
		dst := out.RawRowView(i)
		for k, j := range idx {
			dst[k] = src[j]
		}
	}

	return out
}
